package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/domain"
)

// HTTPDownloader implements Downloader using HTTP requests.
type HTTPDownloader struct {
	// streamClient has no overall timeout; stalls are caught per read.
	streamClient *http.Client
	userAgent    string
	referer      string
	cfg          config.DownloadConfig
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	streamTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &HTTPDownloader{
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		userAgent: cfg.UserAgent,
		referer:   cfg.Referer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Download fetches url with retry logic.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	type result struct {
		body io.ReadCloser
		size int64
	}

	retryCfg := RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  d.cfg.RetryDelay,
		MaxDelay:      d.cfg.MaxRetryDelay,
		BackoffFactor: 2,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			d.logger.Warn("download attempt failed, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		},
	}

	res, err := RetryWithCheck(ctx, retryCfg, func() (result, error) {
		body, size, err := d.downloadOnce(ctx, url)
		return result{body, size}, err
	}, isRetryableError)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	return res.body, res.size, nil
}

func (d *HTTPDownloader) downloadOnce(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if d.referer != "" {
		req.Header.Set("Referer", d.referer)
	}

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, 0, domain.ErrURLExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, 0, domain.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	size := resp.ContentLength
	if size < 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				size = n
			}
		}
	}

	return newProgressReader(resp.Body, size, d.cfg.ReadTimeout, d.logger), size, nil
}

// DownloadToFile stores url at path. The partial file is removed on failure.
func (d *HTTPDownloader) DownloadToFile(ctx context.Context, url, path string, maxBytes int64) (int64, error) {
	body, size, err := d.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if maxBytes > 0 && size > maxBytes {
		return 0, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, size)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	var src io.Reader = body
	if maxBytes > 0 {
		// One extra byte tells an oversized body apart from an exact fit.
		src = io.LimitReader(body, maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(path)
		return 0, fmt.Errorf("write file: %w", copyErr)
	case closeErr != nil:
		os.Remove(path)
		return 0, fmt.Errorf("close file: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		os.Remove(path)
		return 0, fmt.Errorf("%w: more than %d bytes", domain.ErrFileTooLarge, maxBytes)
	}

	return n, nil
}

func isRetryableError(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	if errors.Is(err, domain.ErrURLExpired) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// progressReader wraps an io.ReadCloser to track download progress
// and detect stalls. A watchdog closes the body when no data arrives for
// readTimeout, which unblocks a Read stuck on a hung connection.
type progressReader struct {
	reader      io.ReadCloser
	total       int64
	downloaded  int64
	readTimeout time.Duration
	watchdog    *time.Timer
	lastLog     time.Time
	logger      *slog.Logger
	mu          sync.Mutex
	stalled     bool
	closed      bool
}

func newProgressReader(r io.ReadCloser, total int64, readTimeout time.Duration, logger *slog.Logger) *progressReader {
	p := &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		lastLog:     time.Now(),
		logger:      logger,
	}
	if readTimeout > 0 {
		p.watchdog = time.AfterFunc(readTimeout, p.stall)
	}
	return p
}

func (p *progressReader) stall() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.stalled = true
	p.mu.Unlock()
	p.reader.Close()
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stalled {
		return n, fmt.Errorf("download stalled: no data received for %v", p.readTimeout)
	}

	if n > 0 {
		p.downloaded += int64(n)
		if p.watchdog != nil {
			p.watchdog.Reset(p.readTimeout)
		}
		if time.Since(p.lastLog) > 15*time.Second {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
	stalled := p.stalled
	p.mu.Unlock()
	if stalled {
		return nil
	}
	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Debug("download progress",
			"downloaded_kb", p.downloaded/1024,
			"total_kb", p.total/1024,
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
		return
	}
	p.logger.Debug("download progress", "downloaded_kb", p.downloaded/1024)
}
