package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/domain"
)

// Sender renders messages and uploads media.
type Sender struct {
	client Client
	logger *slog.Logger
}

// NewSender creates a sender over client.
func NewSender(client Client, logger *slog.Logger) *Sender {
	return &Sender{client: client, logger: logger}
}

// Reply sends an HTML message, optionally with an inline keyboard.
func (s *Sender) Reply(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := s.client.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Edit replaces a message's text and keyboard. Falls back to a new message
// when there is nothing to edit.
func (s *Sender) Edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if messageID == 0 {
		return s.Reply(chatID, text, markup)
	}

	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true

	if _, err := s.client.Request(edit); err != nil {
		// Pressing the same button twice is harmless.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// Answer acknowledges a callback query, optionally with a toast.
func (s *Sender) Answer(callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := s.client.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Action shows a chat action such as "upload_video".
func (s *Sender) Action(chatID int64, action string) {
	if _, err := s.client.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		s.logger.Debug("chat action failed", "chat_id", chatID, "error", err)
	}
}

// SetCommands publishes the command list shown in Telegram's menu.
func (s *Sender) SetCommands(cmds []tgbotapi.BotCommand) error {
	if len(cmds) == 0 {
		return nil
	}
	if _, err := s.client.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// SendVideo uploads a video file.
func (s *Sender) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Action(chatID, tgbotapi.ChatUploadVideo)
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	v.Caption = caption
	v.SupportsStreaming = true
	_, err := s.client.Send(v)
	return err
}

// SendAudio uploads an audio file.
func (s *Sender) SendAudio(ctx context.Context, chatID int64, path, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Action(chatID, tgbotapi.ChatUploadVoice)
	a := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(path))
	a.Title = title
	_, err := s.client.Send(a)
	return err
}

// SendPhoto uploads an image.
func (s *Sender) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Action(chatID, tgbotapi.ChatUploadPhoto)
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	p.Caption = caption
	_, err := s.client.Send(p)
	return err
}

// SendAlbum uploads up to ten images as one media group.
func (s *Sender) SendAlbum(ctx context.Context, chatID int64, paths []string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) == 1 {
		return s.SendPhoto(ctx, chatID, paths[0], caption)
	}

	s.Action(chatID, tgbotapi.ChatUploadPhoto)
	files := make([]interface{}, 0, len(paths))
	for i, p := range paths {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(p))
		if i == 0 {
			photo.Caption = caption
		}
		files = append(files, photo)
	}
	_, err := s.client.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files))
	return err
}

// SendDocument uploads a file without media processing.
func (s *Sender) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Action(chatID, tgbotapi.ChatUploadDocument)
	d := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	d.Caption = caption
	_, err := s.client.Send(d)
	return err
}

// NotifyJob tells the job's chat that an attempt failed.
func (s *Sender) NotifyJob(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var text string
	switch job.Status {
	case domain.JobStatusRetrying:
		text = fmt.Sprintf("⚠️ Job <code>%s</code> failed (attempt %d/%d), retrying…\n%s",
			job.ID, job.Attempts, job.MaxRetries, html.EscapeString(job.LastError))
	case domain.JobStatusFailed:
		text = fmt.Sprintf("❌ Job <code>%s</code> failed: %s", job.ID, html.EscapeString(job.LastError))
	default:
		text = fmt.Sprintf("ℹ️ Job <code>%s</code> is %s", job.ID, job.Status)
	}
	return s.Reply(job.ChatID, text, nil)
}

// FileURL resolves a Telegram file ID to a download URL.
func (s *Sender) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := s.client.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	return u, nil
}
