package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iconidentify/mediabot/internal/domain"
)

// DefaultRetention is how long finished jobs stay visible to /downloads.
const DefaultRetention = time.Hour

// InMemoryJobRepository implements JobRepository using in-memory storage.
// Jobs are copied in and out so callers never share state with workers.
type InMemoryJobRepository struct {
	mu        sync.RWMutex
	jobs      map[domain.JobID]*domain.Job
	byUser    map[int64][]domain.JobID
	queue     []domain.JobID // FIFO queue of pending job IDs
	retention time.Duration
}

// NewInMemoryJobRepository creates a new in-memory job repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs:      make(map[domain.JobID]*domain.Job),
		byUser:    make(map[int64][]domain.JobID),
		queue:     make([]domain.JobID, 0),
		retention: DefaultRetention,
	}
}

// SetRetention changes how long finished jobs are kept by Sweep.
func (r *InMemoryJobRepository) SetRetention(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.retention = d
	}
}

func clone(j *domain.Job) *domain.Job {
	c := *j
	return &c
}

// Enqueue adds a job to the queue.
func (r *InMemoryJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = clone(job)
	r.byUser[job.UserID] = append(r.byUser[job.UserID], job.ID)
	r.queue = append(r.queue, job.ID)

	return nil
}

// Dequeue retrieves the next pending job (FIFO). Retrying jobs wait until
// their next attempt is due.
func (r *InMemoryJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for i, jobID := range r.queue {
		job, ok := r.jobs[jobID]
		if !ok {
			continue
		}

		if (job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying) && job.Due(now) {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			// Claim under the lock so no other worker picks it up.
			job.MarkProcessing()
			return clone(job), nil
		}
	}

	return nil, domain.ErrNoJobs
}

// Update modifies job state.
func (r *InMemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}

	r.jobs[job.ID] = clone(job)

	if job.Status == domain.JobStatusRetrying {
		r.queue = append(r.queue, job.ID)
	}

	return nil
}

// Get retrieves a job by ID.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	return clone(job), nil
}

// ListByUser returns a user's jobs, newest first.
func (r *InMemoryJobRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	result := make([]*domain.Job, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if job, ok := r.jobs[ids[i]]; ok {
			result = append(result, clone(job))
		}
	}

	return result, nil
}

// ListPending returns all pending/retrying jobs ordered by creation time.
func (r *InMemoryJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Job
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying {
			result = append(result, clone(job))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

// Stats returns queue statistics.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &QueueStats{}
	for _, job := range r.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		case domain.JobStatusRetrying:
			stats.Retrying++
		}
	}

	return stats, nil
}

// Prune drops finished jobs last updated before cutoff.
func (r *InMemoryJobRepository) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if job.Status.Finished() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	for user, ids := range r.byUser {
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := r.jobs[id]; ok {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(r.byUser, user)
		} else {
			r.byUser[user] = kept
		}
	}

	return removed, nil
}

// Sweep prunes jobs finished longer than the retention ago, so the
// repository can share the state sweeper loop.
func (r *InMemoryJobRepository) Sweep() int {
	r.mu.RLock()
	retention := r.retention
	r.mu.RUnlock()

	n, _ := r.Prune(context.Background(), time.Now().Add(-retention))
	return n
}

// Clear removes all jobs (useful for testing).
func (r *InMemoryJobRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs = make(map[domain.JobID]*domain.Job)
	r.byUser = make(map[int64][]domain.JobID)
	r.queue = make([]domain.JobID, 0)
}
