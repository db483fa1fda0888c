package commands

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/mediabot/internal/bot"
)

const historyLimit = 10

// History lists the user's delivered downloads.
type History struct {
	sender *bot.Sender
	queue  DownloadQueue
}

// NewHistory creates the history command.
func NewHistory(d Deps) *History {
	return &History{sender: d.Sender, queue: d.Queue}
}

func (c *History) Name() string        { return "history" }
func (c *History) Description() string { return "Show your last downloads" }

func (c *History) HandleCommand(ctx context.Context, req *bot.Request) error {
	entries, err := c.queue.History(ctx, req.UserID, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return c.sender.Reply(req.ChatID, "📭 Nothing delivered yet.", bot.Keyboard(bot.MenuRow()))
	}

	var b strings.Builder
	b.WriteString("🗂 <b>Recent downloads</b>\n\n")
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.Source
		}
		fmt.Fprintf(&b, "• %s\n  <i>%s", html.EscapeString(truncateRunes(title, 80)), e.Kind)
		if e.Strategy != "" {
			fmt.Fprintf(&b, " via %s", html.EscapeString(e.Strategy))
		}
		if e.SizeBytes > 0 {
			fmt.Fprintf(&b, ", %s", humanize.Bytes(uint64(e.SizeBytes)))
		}
		fmt.Fprintf(&b, ", %s</i>\n", humanize.Time(e.CreatedAt))
	}
	return c.sender.Reply(req.ChatID, b.String(), bot.Keyboard(bot.MenuRow()))
}
