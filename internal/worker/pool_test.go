package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository implements repository.JobRepository for testing.
type mockJobRepository struct {
	mu           sync.Mutex
	jobs         []*domain.Job
	dequeueErr   error
	updateErr    error
	dequeueCalls int
	updateCalls  int
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			c := *j
			return &c, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	for i, j := range m.jobs {
		if j.ID == job.ID {
			c := *job
			m.jobs[i] = &c
			return nil
		}
	}
	return domain.ErrJobNotFound
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeueCalls++
	if m.dequeueErr != nil {
		return nil, m.dequeueErr
	}
	now := time.Now()
	for _, j := range m.jobs {
		if (j.Status == domain.JobStatusQueued || j.Status == domain.JobStatusRetrying) && j.Due(now) {
			j.MarkProcessing()
			c := *j
			return &c, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return &repository.QueueStats{}, nil
}

func (m *mockJobRepository) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (m *mockJobRepository) job(id domain.JobID) *domain.Job {
	j, _ := m.Get(context.Background(), id)
	return j
}

type mockProcessor struct {
	mu       sync.Mutex
	errs     []error // returned in order, then nil
	panicOn  bool
	calls    int
	finished []domain.JobStatus
}

func (m *mockProcessor) Process(ctx context.Context, job *domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.panicOn {
		panic("boom")
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	return "done", nil
}

func (m *mockProcessor) JobFinished(ctx context.Context, job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, job.Status)
}

func (m *mockProcessor) snapshot() (int, []domain.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]domain.JobStatus(nil), m.finished...)
}

func runPool(t *testing.T, repo repository.JobRepository, proc Processor, wait time.Duration) {
	t.Helper()
	pool := NewPool(Config{Workers: 1, PollInterval: 5 * time.Millisecond}, repo, proc, testLogger())
	pool.Start()
	time.Sleep(wait)
	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestNewPool(t *testing.T) {
	pool := NewPool(Config{Workers: 3, PollInterval: 10 * time.Second}, &mockJobRepository{}, nil, testLogger())

	if pool.workers != 3 {
		t.Errorf("workers = %d, want 3", pool.workers)
	}
	if pool.pollInterval != 10*time.Second {
		t.Errorf("pollInterval = %v, want 10s", pool.pollInterval)
	}
}

func TestNewPool_DefaultValues(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero", Config{}},
		{"negative", Config{Workers: -1, PollInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.cfg, &mockJobRepository{}, nil, testLogger())
			if pool.workers != 2 {
				t.Errorf("workers = %d, want 2", pool.workers)
			}
			if pool.pollInterval != time.Second {
				t.Errorf("pollInterval = %v, want 1s", pool.pollInterval)
			}
			if pool.retryDelay != time.Second || pool.maxRetryDelay != time.Minute {
				t.Errorf("retry delays = %v/%v, want 1s/1m", pool.retryDelay, pool.maxRetryDelay)
			}
		})
	}
}

func TestPool_StartStop(t *testing.T) {
	repo := &mockJobRepository{dequeueErr: domain.ErrNoJobs}
	runPool(t, repo, &mockProcessor{}, 50*time.Millisecond)
}

func TestPool_StopTimeout(t *testing.T) {
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Second}, &mockJobRepository{}, nil, testLogger())

	// Simulate a worker that never exits.
	pool.wg.Add(1)
	err := pool.Stop(50 * time.Millisecond)
	pool.wg.Done()

	if !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("expected ErrShutdownTimeout, got %v", err)
	}
}

func TestPool_Run(t *testing.T) {
	pool := NewPool(Config{Workers: 2, PollInterval: 5 * time.Millisecond}, &mockJobRepository{}, &mockProcessor{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx, time.Second) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPool_CompletesJob(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindTikTok, 1, 1, "u", 2))
	proc := &mockProcessor{}

	var observed []string
	var mu sync.Mutex
	pool := NewPool(Config{Workers: 1, PollInterval: 5 * time.Millisecond}, repo, proc, testLogger())
	pool.SetObserver(func(kind string, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, kind)
	})
	pool.Start()
	time.Sleep(50 * time.Millisecond)
	pool.Stop(time.Second)

	job := repo.job("j1")
	if job.Status != domain.JobStatusCompleted || job.Result != "done" {
		t.Errorf("job = %+v", job)
	}
	calls, finished := proc.snapshot()
	if calls != 1 {
		t.Errorf("Process calls = %d, want 1", calls)
	}
	if len(finished) != 0 {
		t.Errorf("JobFinished should not be called on success: %v", finished)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0] != "tiktok" {
		t.Errorf("observed = %v", observed)
	}
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindTikTok, 1, 1, "u", 2))
	proc := &mockProcessor{errs: []error{errors.New("network blip")}}

	runPool(t, repo, proc, 80*time.Millisecond)

	job := repo.job("j1")
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}
	calls, finished := proc.snapshot()
	if calls != 2 {
		t.Errorf("Process calls = %d, want 2", calls)
	}
	if len(finished) != 1 || finished[0] != domain.JobStatusRetrying {
		t.Errorf("finished = %v, want [retrying]", finished)
	}
}

func TestPool_PermanentFailure(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindTikTok, 1, 1, "u", 5))
	proc := &mockProcessor{errs: []error{domain.ErrFileTooLarge}}

	runPool(t, repo, proc, 50*time.Millisecond)

	job := repo.job("j1")
	if job.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if calls, _ := proc.snapshot(); calls != 1 {
		t.Errorf("Process calls = %d, want 1 (no retry)", calls)
	}
}

func TestPool_ExhaustsRetries(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindTikTok, 1, 1, "u", 2))
	boom := errors.New("down")
	proc := &mockProcessor{errs: []error{boom, boom, boom, boom}}

	runPool(t, repo, proc, 100*time.Millisecond)

	job := repo.job("j1")
	if job.Status != domain.JobStatusFailed || job.Attempts != 2 {
		t.Errorf("job = %s after %d attempts, want failed after 2", job.Status, job.Attempts)
	}
	_, finished := proc.snapshot()
	if len(finished) != 2 || finished[1] != domain.JobStatusFailed {
		t.Errorf("finished = %v", finished)
	}
}

// stampingProcessor always fails and records when each attempt started.
type stampingProcessor struct {
	mu    sync.Mutex
	times []time.Time
}

func (p *stampingProcessor) Process(ctx context.Context, job *domain.Job) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.times = append(p.times, time.Now())
	return "", domain.ErrRateLimited
}

func (p *stampingProcessor) attempts() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.times...)
}

func TestPool_BacksOffBetweenAttempts(t *testing.T) {
	repo := repository.NewInMemoryJobRepository()
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindTikTok, 1, 1, "u", 3))
	proc := &stampingProcessor{}

	pool := NewPool(Config{
		Workers:       1,
		PollInterval:  5 * time.Millisecond,
		RetryDelay:    60 * time.Millisecond,
		MaxRetryDelay: time.Second,
	}, repo, proc, testLogger())
	pool.Start()
	defer pool.Stop(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for len(proc.attempts()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	times := proc.attempts()
	if len(times) != 3 {
		t.Fatalf("attempts = %d, want 3", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < 60*time.Millisecond {
		t.Errorf("gap between attempt 1 and 2 = %v, want >= 60ms", gap)
	}
	if gap := times[2].Sub(times[1]); gap < 120*time.Millisecond {
		t.Errorf("gap between attempt 2 and 3 = %v, want >= 120ms", gap)
	}

	var job *domain.Job
	for {
		job, _ = repo.Get(context.Background(), "j1")
		if job.Status.Finished() || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if job.Status != domain.JobStatusFailed || job.Attempts != 3 {
		t.Errorf("job = %s after %d attempts, want failed after 3", job.Status, job.Attempts)
	}
}

func TestPool_RecoversPanic(t *testing.T) {
	repo := &mockJobRepository{}
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindWatermark, 1, 1, "f", 0))

	runPool(t, repo, &mockProcessor{panicOn: true}, 50*time.Millisecond)

	job := repo.job("j1")
	if job.Status != domain.JobStatusFailed || job.LastError != "job panicked: boom" {
		t.Errorf("job = %+v", job)
	}
}

func TestPool_DequeueError(t *testing.T) {
	repo := &mockJobRepository{dequeueErr: errors.New("database connection error")}

	runPool(t, repo, &mockProcessor{}, 30*time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.dequeueCalls == 0 {
		t.Error("expected at least one dequeue call")
	}
}

func TestPool_UpdateError(t *testing.T) {
	repo := &mockJobRepository{updateErr: errors.New("update failed")}
	repo.Enqueue(context.Background(), domain.NewJob("j1", domain.JobKindTikTok, 1, 1, "u", 2))

	runPool(t, repo, &mockProcessor{}, 30*time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.updateCalls == 0 {
		t.Error("expected update calls")
	}
}

func TestErrShutdownTimeout(t *testing.T) {
	if ErrShutdownTimeout.Error() != "worker pool shutdown timed out" {
		t.Errorf("unexpected error message: %s", ErrShutdownTimeout.Error())
	}
}
