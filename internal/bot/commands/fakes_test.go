package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/mediabot/internal/anime"
	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/repository"
	"github.com/iconidentify/mediabot/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	log      []tgbotapi.Chattable
}

func (c *fakeClient) Send(m tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	c.log = append(c.log, m)
	return tgbotapi.Message{}, nil
}

func (c *fakeClient) Request(m tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, m)
	c.log = append(c.log, m)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (c *fakeClient) SendMediaGroup(tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	return nil, nil
}

func (c *fakeClient) GetFileDirectURL(string) (string, error) { return "", errors.New("unused") }

func (c *fakeClient) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return nil }

func (c *fakeClient) StopReceivingUpdates() {}

func (c *fakeClient) Self() tgbotapi.User { return tgbotapi.User{UserName: "test_bot"} }

// screen is a rendered message or edit.
type screen struct {
	text   string
	markup *tgbotapi.InlineKeyboardMarkup
	edited bool
}

// callbackData returns all callback payloads on the screen's buttons.
func (s screen) callbackData() []string {
	if s.markup == nil {
		return nil
	}
	var out []string
	for _, row := range s.markup.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				out = append(out, *b.CallbackData)
			}
		}
	}
	return out
}

func (s screen) hasButton(data string) bool {
	for _, d := range s.callbackData() {
		if d == data {
			return true
		}
	}
	return false
}

func (c *fakeClient) screens() []screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []screen
	for _, m := range c.log {
		switch msg := m.(type) {
		case tgbotapi.MessageConfig:
			s := screen{text: msg.Text}
			if kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
				s.markup = &kb
			}
			out = append(out, s)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, screen{text: msg.Text, markup: msg.ReplyMarkup, edited: true})
		}
	}
	return out
}

func (c *fakeClient) last(t *testing.T) screen {
	t.Helper()
	all := c.screens()
	if len(all) == 0 {
		t.Fatal("nothing was shown")
	}
	return all[len(all)-1]
}

type fakeFinder struct {
	results  []anime.Result
	anime    *anime.Anime
	streams  []anime.Stream
	err      error
	searches []string
	picked   []anime.Result
}

func (f *fakeFinder) Search(ctx context.Context, query string) ([]anime.Result, error) {
	f.searches = append(f.searches, query)
	return f.results, f.err
}

func (f *fakeFinder) Details(ctx context.Context, r anime.Result) (*anime.Anime, error) {
	f.picked = append(f.picked, r)
	return f.anime, f.err
}

func (f *fakeFinder) Streams(ctx context.Context, a *anime.Anime, ep anime.Episode) ([]anime.Stream, error) {
	return f.streams, f.err
}

func (f *fakeFinder) CacheSize() int { return len(f.searches) }

type fakeQueue struct {
	jobs     map[domain.JobID]*domain.Job
	history  []domain.HistoryEntry
	enqueued []*domain.Job
	err      error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[domain.JobID]*domain.Job)}
}

func (q *fakeQueue) add(job *domain.Job) {
	q.jobs[job.ID] = job
	q.enqueued = append(q.enqueued, job)
}

func (q *fakeQueue) EnqueueTikTok(ctx context.Context, userID, chatID int64, text string, mode domain.DownloadMode) (*domain.Job, error) {
	if q.err != nil {
		return nil, q.err
	}
	job := domain.NewJob(domain.JobID("dl_tt"), domain.JobKindTikTok, userID, chatID, text, 2)
	job.Mode = mode
	q.add(job)
	return job, nil
}

func (q *fakeQueue) EnqueueWatermark(ctx context.Context, userID, chatID int64, fileID string, isImage bool, styleKey string) (*domain.Job, error) {
	if q.err != nil {
		return nil, q.err
	}
	job := domain.NewJob(domain.JobID("dl_wm"), domain.JobKindWatermark, userID, chatID, fileID, 2)
	job.IsImage = isImage
	job.Style = styleKey
	q.add(job)
	return job, nil
}

func (q *fakeQueue) Job(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	job, ok := q.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (q *fakeQueue) UserJobs(ctx context.Context, userID int64) ([]*domain.Job, error) {
	var out []*domain.Job
	for _, j := range q.enqueued {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out, q.err
}

func (q *fakeQueue) History(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	return q.history, q.err
}

func (q *fakeQueue) Stats(ctx context.Context) (*repository.QueueStats, int, error) {
	if q.err != nil {
		return nil, 0, q.err
	}
	return &repository.QueueStats{Queued: len(q.jobs)}, len(q.history), nil
}

type fixture struct {
	client *fakeClient
	users  *state.MemoryStore[int64, state.UserState]
	finder *fakeFinder
	queue  *fakeQueue
	deps   Deps
}

func newFixture() *fixture {
	client := &fakeClient{}
	f := &fixture{
		client: client,
		users:  state.NewUserStore(time.Minute),
		finder: &fakeFinder{},
		queue:  newFakeQueue(),
	}
	f.deps = Deps{
		Sender:   bot.NewSender(client, testLogger()),
		Users:    f.users,
		Anime:    f.finder,
		Queue:    f.queue,
		PageSize: 5,
		Started:  time.Now(),
	}
	return f
}

func messageReq(userID int64, text string) *bot.Request {
	return &bot.Request{
		UserID:  userID,
		ChatID:  userID,
		Text:    text,
		Message: &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: userID}},
	}
}

func callbackReq(userID int64) *bot.Request {
	return &bot.Request{UserID: userID, ChatID: userID, MessageID: 50, CallbackID: "cb"}
}
