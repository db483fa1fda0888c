package commands

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/callback"
	"github.com/iconidentify/mediabot/internal/state"
)

// Stats shows queue and cache statistics to admins.
type Stats struct {
	sender  *bot.Sender
	users   state.UserStore
	anime   AnimeFinder
	queue   DownloadQueue
	started time.Time
}

// NewStats creates the stats command.
func NewStats(d Deps) *Stats {
	return &Stats{sender: d.Sender, users: d.Users, anime: d.Anime, queue: d.Queue, started: d.Started}
}

func (c *Stats) Name() string        { return "stats" }
func (c *Stats) Description() string { return "Bot statistics (admin)" }
func (c *Stats) AdminOnly() bool     { return true }

func (c *Stats) HandleCommand(ctx context.Context, req *bot.Request) error {
	return c.render(ctx, req)
}

func (c *Stats) HandleCallback(ctx context.Context, req *bot.Request, data callback.Data) error {
	return c.render(ctx, req)
}

func (c *Stats) render(ctx context.Context, req *bot.Request) error {
	qs, delivered, err := c.queue.Stats(ctx)
	if err != nil {
		return err
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var b strings.Builder
	b.WriteString("📊 <b>Stats</b>\n\n")
	fmt.Fprintf(&b, "Uptime: %s\n", time.Since(c.started).Round(time.Second))
	fmt.Fprintf(&b, "Queue: %d queued, %d processing, %d retrying\n", qs.Queued, qs.Processing, qs.Retrying)
	fmt.Fprintf(&b, "Finished: %d completed, %d failed\n", qs.Completed, qs.Failed)
	fmt.Fprintf(&b, "Delivered all-time: %d\n", delivered)
	fmt.Fprintf(&b, "Active wizards: %d\n", c.users.Len())
	fmt.Fprintf(&b, "Anime cache: %d entries\n", c.anime.CacheSize())
	fmt.Fprintf(&b, "Memory: %s, goroutines: %d", humanize.Bytes(mem.Alloc), runtime.NumGoroutine())

	return show(c.sender, req, b.String(), bot.Keyboard(
		tgbotapi.NewInlineKeyboardRow(bot.Button("🔄 Refresh", c.Name(), "refresh")),
	))
}
