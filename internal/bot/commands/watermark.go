package commands

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/state"
	"github.com/iconidentify/mediabot/internal/watermark"
)

const watermarkAskMedia = "await_media"

// Watermark stamps a style onto a user's photo or video.
type Watermark struct {
	sender *bot.Sender
	users  state.UserStore
	queue  DownloadQueue
}

// NewWatermark creates the watermark command.
func NewWatermark(d Deps) *Watermark {
	return &Watermark{sender: d.Sender, users: d.Users, queue: d.Queue}
}

func (c *Watermark) Name() string        { return "watermark" }
func (c *Watermark) Description() string { return "Stamp a watermark on a photo or video" }

func (c *Watermark) HandleCommand(ctx context.Context, req *bot.Request) error {
	return c.list(req)
}

func (c *Watermark) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	switch data.Action {
	case "list":
		return c.list(req)
	case "pick":
		return c.pick(req, data.Arg(0))
	case "preview":
		style, err := watermark.Lookup(data.Arg(0))
		if err != nil {
			return err
		}
		// Callback toasts are capped at 200 characters.
		req.Toast(truncateRunes(style.Describe(), 200))
		return nil
	default:
		return fmt.Errorf("unknown watermark action %q", data.Action)
	}
}

func (c *Watermark) list(req *bot.Request) error {
	styles := watermark.All()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(styles)+1)
	for _, s := range styles {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			bot.Button(s.Name, c.Name(), "pick", s.Key),
			bot.Button("👁 Preview", c.Name(), "preview", s.Key),
		))
	}
	rows = append(rows, bot.MenuRow())
	return show(c.sender, req, "💧 Pick a watermark style:", bot.Keyboard(rows...))
}

func (c *Watermark) pick(req *bot.Request, key string) error {
	style, err := watermark.Lookup(key)
	if err != nil {
		return err
	}
	c.users.Set(req.UserID, state.NewUserState(c.Name(), watermarkAskMedia).With("style", style.Key))
	text := fmt.Sprintf("💧 Style <b>%s</b> selected.\n\nNow send me a photo or a video.", html.EscapeString(style.Name))
	return show(c.sender, req, text, bot.Keyboard(cancelRow()))
}

func (c *Watermark) HandleInput(ctx context.Context, req *bot.Request, st state.UserState) error {
	fileID, isImage, ok := mediaOf(req.Message)
	if !ok {
		return c.sender.Reply(req.ChatID, "Please send a photo or a video.", bot.Keyboard(cancelRow()))
	}

	job, err := c.queue.EnqueueWatermark(ctx, req.UserID, req.ChatID, fileID, isImage, st.Param("style"))
	if err != nil {
		return err
	}
	c.users.Delete(req.UserID)
	return c.sender.Reply(req.ChatID, queuedText(job), statusKeyboard("downloads", job.ID))
}

// mediaOf returns the file ID of the photo or video in msg.
func mediaOf(msg *tgbotapi.Message) (fileID string, isImage bool, ok bool) {
	if msg == nil {
		return "", false, false
	}
	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		return msg.Photo[len(msg.Photo)-1].FileID, true, true
	case msg.Video != nil:
		return msg.Video.FileID, false, true
	case msg.Animation != nil:
		return msg.Animation.FileID, false, true
	case msg.Document != nil:
		switch {
		case strings.HasPrefix(msg.Document.MimeType, "image/"):
			return msg.Document.FileID, true, true
		case strings.HasPrefix(msg.Document.MimeType, "video/"):
			return msg.Document.FileID, false, true
		}
	}
	return "", false, false
}
