package bot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/config"
)

// Bot long-polls Telegram and hands each update to the router.
type Bot struct {
	client   Client
	router   *Router
	sender   *Sender
	registry *Registry
	cfg      config.TelegramConfig
	logger   *slog.Logger

	ready    atomic.Bool
	inflight sync.WaitGroup
}

// New creates a bot.
func New(client Client, router *Router, sender *Sender, registry *Registry, cfg config.TelegramConfig, logger *slog.Logger) *Bot {
	return &Bot{
		client:   client,
		router:   router,
		sender:   sender,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Username returns the bot's @username.
func (b *Bot) Username() string {
	return b.client.Self().UserName
}

// Ready reports whether the bot is receiving updates.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Run polls for updates until ctx is canceled, then waits for in-flight
// handlers.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.sender.SetCommands(b.registry.BotCommands()); err != nil {
		b.logger.Warn("failed to publish command list", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.client.GetUpdatesChan(u)

	b.ready.Store(true)
	defer b.ready.Store(false)
	b.logger.Info("bot polling for updates", "username", b.Username())

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			b.inflight.Wait()
			b.logger.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.inflight.Wait()
				return nil
			}
			b.inflight.Add(1)
			go b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	defer b.inflight.Done()

	// Shutdown lets in-flight handlers finish within their own deadline.
	wait := b.cfg.HandlerWait
	if wait <= 0 {
		wait = 3 * time.Minute
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), wait)
	defer cancel()

	b.router.Dispatch(hctx, update)
}
