// Package worker runs queued jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/repository"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// Processor runs one attempt of a job and returns a short result.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) (string, error)
}

// Notifier is told when a job attempt ends without completing it for good.
type Notifier interface {
	JobFinished(ctx context.Context, job *domain.Job)
}

// Observer receives the duration and outcome of every attempt.
type Observer func(kind string, d time.Duration, err error)

// Pool manages a pool of workers for processing queued jobs.
type Pool struct {
	workers       int
	pollInterval  time.Duration
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	jobRepo      repository.JobRepository
	processor    Processor
	observer     Observer
	logger       *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers      int
	PollInterval time.Duration

	// RetryDelay is the wait before the first retry; it doubles per
	// attempt up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewPool creates a new worker pool.
func NewPool(
	cfg Config,
	jobRepo repository.JobRepository,
	processor Processor,
	logger *slog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = cfg.PollInterval
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = max(time.Minute, cfg.RetryDelay)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:       cfg.Workers,
		pollInterval:  cfg.PollInterval,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		jobRepo:       jobRepo,
		processor:     processor,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetObserver installs a callback invoked after every job attempt.
func (p *Pool) SetObserver(o Observer) {
	p.observer = o
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Run starts the pool, blocks until ctx is done and then stops it.
func (p *Pool) Run(ctx context.Context, stopTimeout time.Duration) error {
	p.Start()
	<-ctx.Done()
	return p.Stop(stopTimeout)
}

// Stop gracefully stops all workers.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for p.processNextJob(logger) {
				if p.ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processNextJob reports whether a job was taken from the queue.
func (p *Pool) processNextJob(logger *slog.Logger) bool {
	job, err := p.jobRepo.Dequeue(p.ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoJobs) {
			logger.Error("failed to dequeue job", "error", err)
		}
		return false
	}

	logger = logger.With("job_id", job.ID, "kind", job.Kind, "user_id", job.UserID)
	logger.Info("processing job", "attempt", job.Attempts+1)

	job.MarkProcessing()
	start := time.Now()
	result, err := p.process(job)
	if p.observer != nil {
		p.observer(string(job.Kind), time.Since(start), err)
	}

	if err != nil {
		p.handleJobFailure(logger, job, err)
		return true
	}

	job.MarkCompleted(result)
	if err := p.jobRepo.Update(p.ctx, job); err != nil {
		logger.Error("failed to mark job completed", "error", err)
	}
	logger.Info("job completed successfully", "duration", time.Since(start))
	return true
}

// process guards the pool against panics inside a processor.
func (p *Pool) process(job *domain.Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.processor.Process(p.ctx, job)
}

func (p *Pool) handleJobFailure(logger *slog.Logger, job *domain.Job, err error) {
	if domain.IsPermanent(err) {
		job.MarkPermanentFailure(err.Error())
	} else {
		job.MarkFailed(err.Error())
	}

	if job.Status == domain.JobStatusRetrying {
		job.ScheduleRetry(p.retryDelay, p.maxRetryDelay)
		logger.Warn("job failed, will retry",
			"error", err,
			"attempt", job.Attempts,
			"max_retries", job.MaxRetries,
			"next_attempt_at", job.NextAttemptAt,
		)
	} else {
		logger.Error("job failed permanently",
			"error", err,
			"attempts", job.Attempts,
		)
	}

	if updateErr := p.jobRepo.Update(p.ctx, job); updateErr != nil {
		logger.Error("failed to update job after failure", "error", updateErr)
	}

	if n, ok := p.processor.(Notifier); ok {
		n.JobFinished(p.ctx, job)
	}
}
