package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/mediabot/internal/anime"
	"github.com/iconidentify/mediabot/internal/api"
	"github.com/iconidentify/mediabot/internal/api/handler"
	"github.com/iconidentify/mediabot/internal/bot"
	"github.com/iconidentify/mediabot/internal/bot/commands"
	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/downloader"
	"github.com/iconidentify/mediabot/internal/metrics"
	"github.com/iconidentify/mediabot/internal/repository"
	"github.com/iconidentify/mediabot/internal/service"
	"github.com/iconidentify/mediabot/internal/state"
	"github.com/iconidentify/mediabot/internal/tiktok"
	"github.com/iconidentify/mediabot/internal/watermark"
	"github.com/iconidentify/mediabot/internal/worker"
	"github.com/iconidentify/mediabot/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	poolStopTimeout   = 25 * time.Second
	serverStopTimeout = 10 * time.Second
	queueGaugeEvery   = 15 * time.Second
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediabot %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting mediabot",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("mediabot stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ensure storage directories exist
	if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.HistoryPath), 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	collector := metrics.NewCollector()

	// Storage
	jobRepo := repository.NewInMemoryJobRepository()
	jobRepo.SetRetention(cfg.State.JobTTL)
	history, err := repository.NewSQLiteHistoryRepository(cfg.Storage.HistoryPath)
	if err != nil {
		return err
	}
	defer history.Close()

	// Media tooling
	proc, err := ffmpeg.NewProcessor(cfg.Watermark.FFmpegPath, cfg.Watermark.FFprobePath)
	if err != nil {
		return err
	}
	marker := watermark.NewService(proc, cfg.Watermark, logger)
	dl := downloader.NewHTTPDownloader(cfg.Download, logger)

	resolver := tiktok.NewDefaultResolver(cfg.TikTok, cfg.Download.UserAgent, logger)
	resolver.SetObserver(collector.ObserveStrategy)

	// Anime sources: rendered site first, JSON API as fallback
	browser := anime.NewChromeBrowser(cfg.Browser, logger)
	defer browser.Close()
	site, err := anime.NewSiteScraper(browser, cfg.Anime, logger)
	if err != nil {
		return err
	}
	searchCache := state.NewMemoryStore[string, []anime.Result](cfg.State.CacheTTL)
	detailCache := state.NewMemoryStore[string, *anime.Anime](cfg.State.CacheTTL)
	animeSvc := anime.NewService(searchCache, detailCache, logger, site, anime.NewAPIClient(cfg.Anime, logger))

	// Telegram; authorised in the background so /health answers meanwhile
	client := bot.NewAPIClient(cfg.Telegram, logger)

	sender := bot.NewSender(client, logger)
	users := state.NewUserStore(cfg.State.TTL)

	downloads := service.NewDownloadService(
		jobRepo,
		history,
		resolver,
		dl,
		proc,
		marker,
		sender,
		cfg.Storage,
		cfg.Worker,
		cfg.Download,
		logger,
	)

	registry := bot.NewRegistry()
	if err := commands.Register(registry, commands.Deps{
		Sender:   sender,
		Users:    users,
		Anime:    animeSvc,
		Queue:    downloads,
		PageSize: cfg.Anime.PageSize,
		Started:  time.Now(),
	}); err != nil {
		return err
	}
	router := bot.NewRouter(registry, users, sender, cfg.Telegram.IsAdmin, collector, logger)
	tg := bot.New(client, router, sender, registry, cfg.Telegram, logger)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:       cfg.Worker.Count,
			PollInterval:  cfg.Worker.PollInterval,
			RetryDelay:    cfg.Worker.RetryDelay,
			MaxRetryDelay: cfg.Worker.MaxRetryDelay,
		},
		jobRepo,
		downloads,
		logger,
	)
	pool.SetObserver(collector.ObserveJob)

	// Setup HTTP server
	healthHandler := handler.NewHealthHandler(tg, downloads, map[string]func() int{
		"user_state":    users.Len,
		"anime_search":  searchCache.Len,
		"anime_details": detailCache.Len,
	}, cfg.Storage.TempPath)
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.NewRouter(healthHandler, collector, cfg.Server.StatusToken, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := client.Connect(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}
		return tg.Run(gctx)
	})

	g.Go(func() error {
		return pool.Run(gctx, poolStopTimeout)
	})

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		state.RunSweeper(gctx, cfg.State.SweepInterval, func(removed int) {
			if removed > 0 {
				logger.Debug("swept expired entries", "removed", removed)
			}
		}, users, searchCache, detailCache, jobRepo)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(queueGaugeEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if stats, err := jobRepo.Stats(gctx); err == nil {
					collector.SetQueue(stats)
				}
			}
		}
	})

	<-gctx.Done()
	logger.Info("shutting down")
	return g.Wait()
}
