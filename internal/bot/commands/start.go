package commands

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
)

// Start shows the main menu.
type Start struct {
	sender *bot.Sender
}

// NewStart creates the start command.
func NewStart(d Deps) *Start {
	return &Start{sender: d.Sender}
}

func (c *Start) Name() string        { return "start" }
func (c *Start) Description() string { return "Open the main menu" }
func (c *Start) Aliases() []string   { return []string{"menu"} }

func (c *Start) HandleCommand(ctx context.Context, req *bot.Request) error {
	name := "there"
	if req.Message != nil && req.Message.From != nil && req.Message.From.FirstName != "" {
		name = req.Message.From.FirstName
	}
	text := fmt.Sprintf("👋 Hi %s!\n\n%s", html.EscapeString(name), menuText)
	return c.sender.Reply(req.ChatID, text, mainMenu())
}

func (c *Start) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	return show(c.sender, req, menuText, mainMenu())
}

const menuText = "What would you like to do?\n\n" +
	"🎌 <b>Anime</b>: find a title and get episode links\n" +
	"🎵 <b>TikTok</b>: download videos, slideshows and sounds\n" +
	"💧 <b>Watermark</b>: stamp your photos and videos\n" +
	"📥 <b>Downloads</b>: check on your jobs"

func mainMenu() *tgbotapi.InlineKeyboardMarkup {
	return bot.Keyboard(
		tgbotapi.NewInlineKeyboardRow(
			bot.Button("🎌 Anime", "anime", "ask"),
			bot.Button("🎵 TikTok", "tiktok", "ask"),
		),
		tgbotapi.NewInlineKeyboardRow(
			bot.Button("💧 Watermark", "watermark", "list"),
			bot.Button("📥 Downloads", "downloads", "list"),
		),
		tgbotapi.NewInlineKeyboardRow(
			bot.Button("❓ Help", "help", "show"),
		),
	)
}
