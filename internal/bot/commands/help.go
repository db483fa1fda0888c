package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
)

// Help lists the registered commands.
type Help struct {
	sender   *bot.Sender
	registry *bot.Registry
}

// NewHelp creates the help command.
func NewHelp(d Deps, reg *bot.Registry) *Help {
	return &Help{sender: d.Sender, registry: reg}
}

func (c *Help) Name() string        { return "help" }
func (c *Help) Description() string { return "List available commands" }

func (c *Help) HandleCommand(ctx context.Context, req *bot.Request) error {
	return c.sender.Reply(req.ChatID, c.text(req.IsAdmin), bot.Keyboard(bot.MenuRow()))
}

func (c *Help) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	return show(c.sender, req, c.text(req.IsAdmin), bot.Keyboard(bot.MenuRow()))
}

func (c *Help) text(admin bool) string {
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n\n")
	for _, cmd := range c.registry.Commands() {
		if r, ok := cmd.(bot.Restricted); ok && r.AdminOnly() && !admin {
			continue
		}
		fmt.Fprintf(&b, "/%s - %s\n", cmd.Name(), cmd.Description())
	}
	b.WriteString("\nYou can also just paste a TikTok link.")
	return b.String()
}
