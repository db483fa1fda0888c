package anime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/iconidentify/mediabot/internal/config"
)

// Browser renders a page and returns its final HTML.
type Browser interface {
	HTML(ctx context.Context, url, waitSelector string) (string, error)
}

// ChromeBrowser renders pages with chromedp, either on browserless.io or on
// a local Chrome/Chromium binary.
type ChromeBrowser struct {
	allocCtx    context.Context
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancel      context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewChromeBrowser starts the browser allocator. The browser process is
// launched lazily on first use.
func NewChromeBrowser(cfg config.BrowserConfig, logger *slog.Logger) *ChromeBrowser {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if cfg.Remote() {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL())
		logger.Info("using remote browser", "url", cfg.BrowserlessURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.NoSandbox,
			chromedp.DisableGPU,
		)
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		if cfg.ExecutablePath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("using local browser", "exec_path", cfg.ExecutablePath)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &ChromeBrowser{
		allocCtx:    allocCtx,
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancel:      cancel,
		timeout:     timeout,
		logger:      logger,
	}
}

// HTML opens url in a new tab, waits for waitSelector (or the body) and
// returns the document's outer HTML.
func (b *ChromeBrowser) HTML(ctx context.Context, url, waitSelector string) (string, error) {
	if err := b.start(); err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if waitSelector == "" {
		waitSelector = "body"
	}

	start := time.Now()
	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	b.logger.Debug("page rendered", "url", url, "duration", time.Since(start), "bytes", len(html))
	return html, nil
}

// start launches the browser on first use. Tabs opened before that would
// each get a browser of their own.
func (b *ChromeBrowser) start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := chromedp.Run(b.browserCtx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	b.started = true
	return nil
}

// Close shuts the browser down.
func (b *ChromeBrowser) Close() {
	b.cancel()
	b.cancelAlloc()
}
