package commands

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
)

const maxListedJobs = 10

// Downloads lists the user's jobs.
type Downloads struct {
	sender *bot.Sender
	queue  DownloadQueue
}

// NewDownloads creates the downloads command.
func NewDownloads(d Deps) *Downloads {
	return &Downloads{sender: d.Sender, queue: d.Queue}
}

func (c *Downloads) Name() string        { return "downloads" }
func (c *Downloads) Description() string { return "Show your queued and recent jobs" }

func (c *Downloads) HandleCommand(ctx context.Context, req *bot.Request) error {
	return c.list(ctx, req)
}

func (c *Downloads) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	switch data.Action {
	case "list":
		return c.list(ctx, req)
	case "status":
		return showStatus(ctx, c.sender, c.queue, req, c.Name(), data.Arg(0))
	default:
		return fmt.Errorf("unknown downloads action %q", data.Action)
	}
}

func (c *Downloads) list(ctx context.Context, req *bot.Request) error {
	jobs, err := c.queue.UserJobs(ctx, req.UserID)
	if err != nil {
		return err
	}

	refresh := tgbotapi.NewInlineKeyboardRow(bot.Button("🔄 Refresh", c.Name(), "list"))
	if len(jobs) == 0 {
		return show(c.sender, req, "📭 You have no jobs right now.", bot.Keyboard(refresh, bot.MenuRow()))
	}

	var b strings.Builder
	b.WriteString("📥 <b>Your jobs</b>\n\n")
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, maxListedJobs+2)
	for i, job := range jobs {
		if i == maxListedJobs {
			fmt.Fprintf(&b, "\n…and %d more", len(jobs)-maxListedJobs)
			break
		}
		b.WriteString(jobLine(job))
		b.WriteString("\n")
		if !job.Status.Finished() {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				bot.Button("🔎 "+job.ID.String(), c.Name(), "status", job.ID.String()),
			))
		}
	}
	rows = append(rows, refresh, bot.MenuRow())
	return show(c.sender, req, b.String(), bot.Keyboard(rows...))
}
