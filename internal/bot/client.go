// Package bot wires Telegram updates to registered commands and sends
// replies and media back to chats.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/config"
)

// ErrNotConnected is returned by APIClient calls made before Connect succeeds.
var ErrNotConnected = errors.New("telegram client not connected")

// Client is the subset of the Bot API the bot uses.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Self() tgbotapi.User
}

// APIClient adapts *tgbotapi.BotAPI to Client. It is usable once Connect
// has authorised the token.
type APIClient struct {
	cfg        config.TelegramConfig
	httpClient *http.Client
	logger     *slog.Logger

	retryDelay    time.Duration
	maxRetryDelay time.Duration

	mu  sync.RWMutex
	api *tgbotapi.BotAPI
}

// NewAPIClient creates a client for cfg. No request is made until Connect.
func NewAPIClient(cfg config.TelegramConfig, logger *slog.Logger) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		cfg:           cfg,
		httpClient:    &http.Client{},
		logger:        logger,
		retryDelay:    2 * time.Second,
		maxRetryDelay: time.Minute,
	}
}

// Connect authorises the token, retrying while the Bot API is unreachable.
// A rejected token fails immediately.
func (c *APIClient) Connect(ctx context.Context) error {
	endpoint := c.cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		api, err := tgbotapi.NewBotAPIWithClient(c.cfg.Token, endpoint, c.httpClient)
		if err == nil {
			api.Debug = c.cfg.Debug
			c.mu.Lock()
			c.api = api
			c.mu.Unlock()
			c.logger.Info("authorised bot", "username", api.Self.UserName, "attempts", attempt)
			return nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound) {
			return fmt.Errorf("authorise bot: %w", err)
		}

		c.logger.Warn("telegram unreachable, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("authorise bot: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxRetryDelay)
	}
}

func (c *APIClient) bot() (*tgbotapi.BotAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, ErrNotConnected
	}
	return c.api, nil
}

func (c *APIClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	api, err := c.bot()
	if err != nil {
		return tgbotapi.Message{}, err
	}
	return api.Send(msg)
}

func (c *APIClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	api, err := c.bot()
	if err != nil {
		return nil, err
	}
	return api.Request(msg)
}

func (c *APIClient) SendMediaGroup(group tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	api, err := c.bot()
	if err != nil {
		return nil, err
	}
	return api.SendMediaGroup(group)
}

func (c *APIClient) GetFileDirectURL(fileID string) (string, error) {
	api, err := c.bot()
	if err != nil {
		return "", err
	}
	return api.GetFileDirectURL(fileID)
}

// GetUpdatesChan returns a closed channel when called before Connect.
func (c *APIClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	api, err := c.bot()
	if err != nil {
		ch := make(chan tgbotapi.Update)
		close(ch)
		return ch
	}
	return api.GetUpdatesChan(cfg)
}

func (c *APIClient) StopReceivingUpdates() {
	if api, err := c.bot(); err == nil {
		api.StopReceivingUpdates()
	}
}

// Self returns the bot's own user, or a zero User before Connect.
func (c *APIClient) Self() tgbotapi.User {
	api, err := c.bot()
	if err != nil {
		return tgbotapi.User{}
	}
	return api.Self
}
