package bot

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient records everything sent through it.
type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	updates  chan tgbotapi.Update
	stopped  bool

	sendErr    error
	requestErr error
	fileURL    string
}

func newFakeClient() *fakeClient {
	return &fakeClient{updates: make(chan tgbotapi.Update, 10)}
}

func (c *fakeClient) Send(m tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return tgbotapi.Message{MessageID: len(c.sent)}, c.sendErr
}

func (c *fakeClient) Request(m tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, m)
	if c.requestErr != nil {
		return nil, c.requestErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (c *fakeClient) SendMediaGroup(g tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = append(c.groups, g)
	return nil, c.sendErr
}

func (c *fakeClient) GetFileDirectURL(fileID string) (string, error) {
	if c.fileURL == "" {
		return "", errors.New("file not found")
	}
	return c.fileURL + fileID, nil
}

func (c *fakeClient) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.updates
}

func (c *fakeClient) StopReceivingUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *fakeClient) Self() tgbotapi.User {
	return tgbotapi.User{ID: 1, UserName: "media_test_bot", IsBot: true}
}

// texts returns the text of every message sent or edited.
func (c *fakeClient) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if msg, ok := m.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	for _, m := range c.requests {
		if edit, ok := m.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit.Text)
		}
	}
	return out
}

func (c *fakeClient) callbacks() []tgbotapi.CallbackConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, m := range c.requests {
		if cb, ok := m.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}
