package commands

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/state"
	"github.com/iconidentify/mediabot/internal/tiktok"
)

const (
	tiktokAskURL  = "await_url"
	tiktokAskMode = "await_mode"
)

// TikTok queues TikTok downloads.
type TikTok struct {
	sender *bot.Sender
	users  state.UserStore
	queue  DownloadQueue
}

// NewTikTok creates the tiktok command.
func NewTikTok(d Deps) *TikTok {
	return &TikTok{sender: d.Sender, users: d.Users, queue: d.Queue}
}

func (c *TikTok) Name() string        { return "tiktok" }
func (c *TikTok) Description() string { return "Download a TikTok video, slideshow or sound" }

func (c *TikTok) HandleCommand(ctx context.Context, req *bot.Request) error {
	if link, ok := tiktok.ExtractURL(req.Args); ok {
		return c.chooseMode(req, link)
	}
	return c.ask(req)
}

// Matches claims TikTok links pasted outside any wizard.
func (c *TikTok) Matches(req *bot.Request) bool {
	return tiktok.Match(req.Text)
}

func (c *TikTok) HandleInput(ctx context.Context, req *bot.Request, st state.UserState) error {
	link, ok := tiktok.ExtractURL(req.Text)
	if !ok {
		c.users.Set(req.UserID, state.NewUserState(c.Name(), tiktokAskURL))
		return domain.ErrInvalidURL
	}
	return c.chooseMode(req, link)
}

func (c *TikTok) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	switch data.Action {
	case "ask":
		return c.ask(req)
	case "mode":
		return c.enqueue(ctx, req, domain.ParseDownloadMode(data.Arg(0)))
	case "status":
		return showStatus(ctx, c.sender, c.queue, req, c.Name(), data.Arg(0))
	default:
		return fmt.Errorf("unknown tiktok action %q", data.Action)
	}
}

func (c *TikTok) ask(req *bot.Request) error {
	c.users.Set(req.UserID, state.NewUserState(c.Name(), tiktokAskURL))
	return show(c.sender, req, "🎵 Send me a TikTok link.", bot.Keyboard(cancelRow()))
}

func (c *TikTok) chooseMode(req *bot.Request, link string) error {
	c.users.Set(req.UserID, state.NewUserState(c.Name(), tiktokAskMode).With("url", link))
	text := fmt.Sprintf("🎵 %s\n\nHow would you like it?", html.EscapeString(link))
	return c.sender.Reply(req.ChatID, text, bot.Keyboard(
		tgbotapi.NewInlineKeyboardRow(
			bot.Button("🎬 Video", c.Name(), "mode", string(domain.ModeVideo)),
			bot.Button("✨ HD, no watermark", c.Name(), "mode", string(domain.ModeHD)),
		),
		tgbotapi.NewInlineKeyboardRow(
			bot.Button("🎧 Audio only", c.Name(), "mode", string(domain.ModeAudio)),
		),
		cancelRow(),
	))
}

func (c *TikTok) enqueue(ctx context.Context, req *bot.Request, mode domain.DownloadMode) error {
	st, ok := c.users.Get(req.UserID)
	if !ok || st.Operation != c.Name() || st.Param("url") == "" {
		return errSessionExpired
	}

	job, err := c.queue.EnqueueTikTok(ctx, req.UserID, req.ChatID, st.Param("url"), mode)
	if err != nil {
		return err
	}
	c.users.Delete(req.UserID)
	req.Toast("Queued")
	return show(c.sender, req, queuedText(job), statusKeyboard(c.Name(), job.ID))
}
