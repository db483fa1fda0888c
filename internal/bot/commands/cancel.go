package commands

import (
	"context"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/state"
)

// Cancel leaves the current wizard.
type Cancel struct {
	sender *bot.Sender
	users  state.UserStore
}

// NewCancel creates the cancel command.
func NewCancel(d Deps) *Cancel {
	return &Cancel{sender: d.Sender, users: d.Users}
}

func (c *Cancel) Name() string        { return "cancel" }
func (c *Cancel) Description() string { return "Cancel the current operation" }

func (c *Cancel) HandleCommand(ctx context.Context, req *bot.Request) error {
	return c.cancel(req)
}

func (c *Cancel) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	return c.cancel(req)
}

func (c *Cancel) cancel(req *bot.Request) error {
	_, active := c.users.Get(req.UserID)
	c.users.Delete(req.UserID)

	text := "✖️ Cancelled."
	if !active {
		text = "Nothing to cancel."
	}
	return show(c.sender, req, text, bot.Keyboard(bot.MenuRow()))
}
