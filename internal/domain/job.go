package domain

import (
	"time"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind identifies what a job does.
type JobKind string

const (
	JobKindTikTok    JobKind = "tiktok"
	JobKindWatermark JobKind = "watermark"
)

// DownloadMode selects which TikTok rendition is delivered.
type DownloadMode string

const (
	ModeVideo DownloadMode = "video"
	ModeHD    DownloadMode = "hd"
	ModeAudio DownloadMode = "audio"
)

// ParseDownloadMode maps a string to a mode, defaulting to ModeVideo.
func ParseDownloadMode(s string) DownloadMode {
	switch DownloadMode(s) {
	case ModeHD:
		return ModeHD
	case ModeAudio:
		return ModeAudio
	default:
		return ModeVideo
	}
}

// Job is a unit of queued work for a chat user.
type Job struct {
	ID     JobID
	Kind   JobKind
	UserID int64
	ChatID int64

	// Source is a TikTok URL for download jobs and a Telegram file ID for watermark jobs.
	Source  string
	IsImage bool
	Mode    DownloadMode
	Style   string

	Status     JobStatus
	Attempts   int
	MaxRetries int
	LastError  string
	Result     string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// NextAttemptAt holds a retrying job back until then.
	NextAttemptAt time.Time

	// AlbumChunksSent counts slideshow albums already delivered, so a retry
	// resumes after them.
	AlbumChunksSent int
}

// NewJob creates a new queued job.
func NewJob(id JobID, kind JobKind, userID, chatID int64, source string, maxRetries int) *Job {
	now := time.Now()
	return &Job{
		ID:         id,
		Kind:       kind,
		UserID:     userID,
		ChatID:     chatID,
		Source:     source,
		Mode:       ModeVideo,
		Status:     JobStatusQueued,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// MarkProcessing updates the job status to processing.
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted(result string) {
	j.Status = JobStatusCompleted
	j.Result = result
	j.UpdatedAt = time.Now()
}

// MarkFailed records a failed attempt. The job goes back to retrying while
// attempts remain.
func (j *Job) MarkFailed(err string) {
	j.Attempts++
	j.LastError = err
	j.UpdatedAt = time.Now()

	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}

// ScheduleRetry holds the job back for base doubled per attempt already
// made, capped at ceiling.
func (j *Job) ScheduleRetry(base, ceiling time.Duration) {
	delay := base
	for i := 1; i < j.Attempts && delay < ceiling; i++ {
		delay *= 2
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	j.NextAttemptAt = time.Now().Add(delay)
}

// Due reports whether the job may be attempted at now.
func (j *Job) Due(now time.Time) bool {
	return !now.Before(j.NextAttemptAt)
}

// MarkPermanentFailure fails the job regardless of remaining attempts.
func (j *Job) MarkPermanentFailure(err string) {
	j.Attempts++
	j.LastError = err
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
}
