// Package commands implements the bot's menu, wizards and admin commands.
package commands

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/anime"
	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/repository"
	"github.com/iconidentify/mediabot/internal/state"
)

// AnimeFinder searches anime sources.
type AnimeFinder interface {
	Search(ctx context.Context, query string) ([]anime.Result, error)
	Details(ctx context.Context, r anime.Result) (*anime.Anime, error)
	Streams(ctx context.Context, a *anime.Anime, ep anime.Episode) ([]anime.Stream, error)
	CacheSize() int
}

// DownloadQueue queues and reports on download jobs.
type DownloadQueue interface {
	EnqueueTikTok(ctx context.Context, userID, chatID int64, text string, mode domain.DownloadMode) (*domain.Job, error)
	EnqueueWatermark(ctx context.Context, userID, chatID int64, fileID string, isImage bool, styleKey string) (*domain.Job, error)
	Job(ctx context.Context, id domain.JobID) (*domain.Job, error)
	UserJobs(ctx context.Context, userID int64) ([]*domain.Job, error)
	History(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error)
	Stats(ctx context.Context) (*repository.QueueStats, int, error)
}

// Deps are the collaborators shared by commands.
type Deps struct {
	Sender   *bot.Sender
	Users    state.UserStore
	Anime    AnimeFinder
	Queue    DownloadQueue
	PageSize int
	Started  time.Time
}

// Register adds every command to reg. Menu order follows registration order.
func Register(reg *bot.Registry, d Deps) error {
	if d.PageSize <= 0 {
		d.PageSize = 5
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}
	return reg.Register(
		NewStart(d),
		NewAnime(d),
		NewTikTok(d),
		NewWatermark(d),
		NewDownloads(d),
		NewHistory(d),
		NewCancel(d),
		NewHelp(d, reg),
		NewStats(d),
	)
}

var errSessionExpired = errors.New("this menu has expired, please start again")

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(bot.Button("✖️ Cancel", "cancel", "now"))
}

// show edits the pressed message for callbacks and replies otherwise.
func show(s *bot.Sender, req *bot.Request, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if req.MessageID != 0 {
		return s.Edit(req.ChatID, req.MessageID, text, markup)
	}
	return s.Reply(req.ChatID, text, markup)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
