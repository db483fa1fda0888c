package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/domain"
)

func TestSender_Reply(t *testing.T) {
	client := newFakeClient()
	s := NewSender(client, testLogger())

	kb := Keyboard(tgbotapi.NewInlineKeyboardRow(Button("Go", "anime", "ask")))
	if err := s.Reply(42, "hello", kb); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	msg, ok := client.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", client.sent[0])
	}
	if msg.ChatID != 42 || msg.Text != "hello" {
		t.Errorf("message = %d/%q", msg.ChatID, msg.Text)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("ParseMode = %q, want HTML", msg.ParseMode)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("ReplyMarkup = %T", msg.ReplyMarkup)
	}
	if got := *markup.InlineKeyboard[0][0].CallbackData; got != "anime:ask" {
		t.Errorf("callback data = %q, want anime:ask", got)
	}
}

func TestSender_Edit(t *testing.T) {
	t.Run("edits existing message", func(t *testing.T) {
		client := newFakeClient()
		s := NewSender(client, testLogger())

		if err := s.Edit(1, 7, "updated", nil); err != nil {
			t.Fatalf("Edit failed: %v", err)
		}
		edit, ok := client.requests[0].(tgbotapi.EditMessageTextConfig)
		if !ok {
			t.Fatalf("request %T, want EditMessageTextConfig", client.requests[0])
		}
		if edit.MessageID != 7 || edit.Text != "updated" {
			t.Errorf("edit = %d/%q", edit.MessageID, edit.Text)
		}
	})

	t.Run("no message falls back to reply", func(t *testing.T) {
		client := newFakeClient()
		s := NewSender(client, testLogger())

		if err := s.Edit(1, 0, "fresh", nil); err != nil {
			t.Fatalf("Edit failed: %v", err)
		}
		if len(client.sent) != 1 || len(client.requests) != 0 {
			t.Errorf("sent=%d requests=%d, want 1/0", len(client.sent), len(client.requests))
		}
	})

	t.Run("not modified is ignored", func(t *testing.T) {
		client := newFakeClient()
		client.requestErr = errors.New("Bad Request: message is not modified")
		s := NewSender(client, testLogger())

		if err := s.Edit(1, 7, "same", nil); err != nil {
			t.Errorf("Edit should ignore not-modified, got %v", err)
		}
	})
}

func TestSender_SendAlbum(t *testing.T) {
	client := newFakeClient()
	s := NewSender(client, testLogger())

	err := s.SendAlbum(context.Background(), 5, []string{"/tmp/a.jpg", "/tmp/b.jpg"}, "caption")
	if err != nil {
		t.Fatalf("SendAlbum failed: %v", err)
	}
	if len(client.groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(client.groups))
	}
	media := client.groups[0].Media
	if len(media) != 2 {
		t.Fatalf("media = %d, want 2", len(media))
	}
	first := media[0].(tgbotapi.InputMediaPhoto)
	second := media[1].(tgbotapi.InputMediaPhoto)
	if first.Caption != "caption" || second.Caption != "" {
		t.Errorf("captions = %q/%q, want caption on first only", first.Caption, second.Caption)
	}
}

func TestSender_SendAlbum_SingleImageSendsPhoto(t *testing.T) {
	client := newFakeClient()
	s := NewSender(client, testLogger())

	if err := s.SendAlbum(context.Background(), 5, []string{"/tmp/a.jpg"}, "c"); err != nil {
		t.Fatalf("SendAlbum failed: %v", err)
	}
	if len(client.groups) != 0 {
		t.Error("single image should not be sent as a group")
	}
	if _, ok := client.sent[0].(tgbotapi.PhotoConfig); !ok {
		t.Errorf("sent %T, want PhotoConfig", client.sent[0])
	}
}

func TestSender_SendVideo_CanceledContext(t *testing.T) {
	client := newFakeClient()
	s := NewSender(client, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.SendVideo(ctx, 1, "/tmp/v.mp4", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(client.sent) != 0 {
		t.Error("nothing should be sent after cancel")
	}
}

func TestSender_NotifyJob(t *testing.T) {
	tests := []struct {
		name string
		job  *domain.Job
		want string
	}{
		{
			name: "retrying",
			job:  &domain.Job{ID: "dl_1", ChatID: 3, Status: domain.JobStatusRetrying, Attempts: 1, MaxRetries: 2, LastError: "boom"},
			want: "attempt 1/2",
		},
		{
			name: "failed",
			job:  &domain.Job{ID: "dl_2", ChatID: 3, Status: domain.JobStatusFailed, LastError: "no <media>"},
			want: "❌ Job <code>dl_2</code> failed: no &lt;media&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			s := NewSender(client, testLogger())

			if err := s.NotifyJob(context.Background(), tt.job); err != nil {
				t.Fatalf("NotifyJob failed: %v", err)
			}
			texts := client.texts()
			if len(texts) != 1 || !strings.Contains(texts[0], tt.want) {
				t.Errorf("texts = %q, want containing %q", texts, tt.want)
			}
		})
	}
}

func TestSender_FileURL(t *testing.T) {
	client := newFakeClient()
	client.fileURL = "https://api.telegram.org/file/bot/"
	s := NewSender(client, testLogger())

	got, err := s.FileURL(context.Background(), "abc")
	if err != nil {
		t.Fatalf("FileURL failed: %v", err)
	}
	if got != "https://api.telegram.org/file/bot/abc" {
		t.Errorf("FileURL = %q", got)
	}
}
