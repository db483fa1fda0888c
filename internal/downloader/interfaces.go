package downloader

import (
	"context"
	"io"
)

// Downloader fetches media content from URLs.
type Downloader interface {
	// Download fetches url, returning a content reader and its size (-1 if unknown).
	// Caller is responsible for closing the reader.
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)

	// DownloadToFile stores url at path, failing once more than maxBytes
	// would be written. maxBytes <= 0 disables the cap.
	DownloadToFile(ctx context.Context, url, path string, maxBytes int64) (int64, error)
}
