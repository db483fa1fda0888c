package state

import (
	"strings"
	"time"
)

// UserState records where a user is in a multi-step wizard.
type UserState struct {
	// Operation names the command that owns the wizard, e.g. "anime".
	Operation string
	// Step is the command-specific step, e.g. "await_query".
	Step      string
	Params    map[string]string
	UpdatedAt time.Time
}

// NewUserState creates a state for operation at step.
func NewUserState(operation, step string) UserState {
	return UserState{
		Operation: operation,
		Step:      step,
		Params:    make(map[string]string),
		UpdatedAt: time.Now(),
	}
}

// With returns a copy with an extra parameter set.
func (s UserState) With(key, value string) UserState {
	params := make(map[string]string, len(s.Params)+1)
	for k, v := range s.Params {
		params[k] = v
	}
	params[key] = value
	s.Params = params
	s.UpdatedAt = time.Now()
	return s
}

// Param returns a parameter or "".
func (s UserState) Param(key string) string {
	return s.Params[key]
}

// UserStore holds wizard state keyed by Telegram user ID.
type UserStore = Store[int64, UserState]

// NewUserStore creates an in-memory user store.
func NewUserStore(ttl time.Duration) *MemoryStore[int64, UserState] {
	return NewMemoryStore[int64, UserState](ttl)
}

// CacheKey joins the parts of a composite cache key.
func CacheKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}
