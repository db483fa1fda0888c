package repository

import (
	"context"
	"time"

	"github.com/iconidentify/mediabot/internal/domain"
)

// JobRepository manages the download queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// ListByUser returns a user's jobs, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*domain.Job, error)

	// ListPending returns all pending/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)

	// Prune drops finished jobs last updated before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// HistoryRepository stores delivered downloads.
type HistoryRepository interface {
	// Record appends an entry.
	Record(ctx context.Context, entry domain.HistoryEntry) error

	// ListByUser returns the user's most recent entries, newest first.
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Retrying   int `json:"retrying"`
}
