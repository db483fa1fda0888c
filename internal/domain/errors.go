package domain

import "errors"

// Domain errors.
var (
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrNotFound is returned on a state or cache miss.
	ErrNotFound = errors.New("not found")

	// ErrInvalidURL is returned when a link cannot be handled by any downloader.
	ErrInvalidURL = errors.New("unsupported or invalid URL")

	// ErrNoMedia is returned when a source resolved but carried no downloadable media.
	ErrNoMedia = errors.New("no media found")

	// ErrAllStrategiesFailed is returned when every download strategy failed.
	ErrAllStrategiesFailed = errors.New("all download strategies failed")

	// ErrDownloadFailed is returned when fetching media bytes fails.
	ErrDownloadFailed = errors.New("download failed")

	// ErrURLExpired is returned when a media URL is no longer accessible.
	ErrURLExpired = errors.New("media URL has expired")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrFileTooLarge is returned when media exceeds the upload limit.
	ErrFileTooLarge = errors.New("file exceeds upload limit")

	// ErrStyleNotFound is returned for an unknown watermark style.
	ErrStyleNotFound = errors.New("watermark style not found")

	// ErrInsufficientSpace is returned when the temp volume is too full to take a job.
	ErrInsufficientSpace = errors.New("not enough disk space")

	// ErrScrapeFailed is returned when a page could not be scraped.
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrInvalidCallback is returned for malformed callback data.
	ErrInvalidCallback = errors.New("invalid callback data")

	// ErrCallbackTooLong is returned when encoded callback data exceeds Telegram's limit.
	ErrCallbackTooLong = errors.New("callback data too long")

	// ErrUnknownCommand is returned when no command matches.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrForbidden is returned when a user may not run a command.
	ErrForbidden = errors.New("not allowed")
)

// StrategyError wraps an error with the download strategy that produced it.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return e.Strategy + ": " + e.Err.Error()
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// NewStrategyError creates a new StrategyError.
func NewStrategyError(strategy string, err error) *StrategyError {
	return &StrategyError{
		Strategy: strategy,
		Err:      err,
	}
}

// IsPermanent reports whether retrying the job cannot help. A failed
// strategy chain is always worth another attempt, and so is an expired
// link since every attempt resolves fresh ones.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrAllStrategiesFailed) {
		return false
	}
	for _, target := range []error{
		ErrInvalidURL,
		ErrNoMedia,
		ErrFileTooLarge,
		ErrStyleNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
