package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iconidentify/mediabot/internal/config"
)

// Overlayer renders a filter graph onto a media file.
type Overlayer interface {
	Overlay(ctx context.Context, in, out, filter string, isImage bool) error
}

// Service applies styles with a bound on concurrent ffmpeg processes.
type Service struct {
	proc    Overlayer
	fontDir string
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewService creates a watermark service.
func NewService(proc Overlayer, cfg config.WatermarkConfig, logger *slog.Logger) *Service {
	limit := cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	return &Service{
		proc:    proc,
		fontDir: cfg.FontDir,
		sem:     semaphore.NewWeighted(int64(limit)),
		logger:  logger,
	}
}

// Apply renders style onto inPath and writes outPath.
func (s *Service) Apply(ctx context.Context, style Style, inPath, outPath string, isImage bool) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for ffmpeg slot: %w", err)
	}
	defer s.sem.Release(1)

	start := time.Now()
	filter := style.WithFontDir(s.fontDir).Filter()
	if err := s.proc.Overlay(ctx, inPath, outPath, filter, isImage); err != nil {
		return fmt.Errorf("apply style %s: %w", style.Key, err)
	}

	s.logger.Info("watermark applied",
		"style", style.Key,
		"image", isImage,
		"duration", time.Since(start),
	)
	return nil
}
