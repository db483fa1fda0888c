package domain

import "time"

// HistoryEntry records a delivered job.
type HistoryEntry struct {
	JobID     JobID
	Kind      JobKind
	UserID    int64
	Source    string
	Title     string
	Strategy  string
	SizeBytes int64
	CreatedAt time.Time
}
