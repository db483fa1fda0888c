package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/repository"
	"github.com/iconidentify/mediabot/internal/tiktok"
	"github.com/iconidentify/mediabot/internal/watermark"
)

// Telegram limits.
const (
	maxAlbumSize  = 10
	maxCaptionLen = 1024
)

// Resolver turns a TikTok link into media URLs.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*tiktok.Media, string, error)
}

// FileFetcher stores a remote file on disk.
type FileFetcher interface {
	DownloadToFile(ctx context.Context, url, path string, maxBytes int64) (int64, error)
}

// MediaProcessor post-processes downloaded files with ffmpeg.
type MediaProcessor interface {
	Remux(ctx context.Context, in, out string) error
	ExtractAudio(ctx context.Context, in, out string) error
	ConvertImage(ctx context.Context, in, out string) error
}

// Watermarker renders a style onto a file.
type Watermarker interface {
	Apply(ctx context.Context, style watermark.Style, inPath, outPath string, isImage bool) error
}

// Delivery sends finished media and job notices back to a chat.
type Delivery interface {
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	SendAudio(ctx context.Context, chatID int64, path, title string) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
	SendAlbum(ctx context.Context, chatID int64, paths []string, caption string) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
	NotifyJob(ctx context.Context, job *domain.Job) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

// DownloadService queues and processes TikTok downloads and watermark jobs.
type DownloadService struct {
	jobRepo   repository.JobRepository
	history   repository.HistoryRepository
	resolver  Resolver
	fetcher   FileFetcher
	processor MediaProcessor
	marker    Watermarker
	delivery  Delivery
	storage   config.StorageConfig
	workerCfg config.WorkerConfig
	timeout   time.Duration
	freeSpace func(path string) int64
	logger    *slog.Logger
}

// NewDownloadService creates a new download service.
func NewDownloadService(
	jobRepo repository.JobRepository,
	history repository.HistoryRepository,
	resolver Resolver,
	fetcher FileFetcher,
	processor MediaProcessor,
	marker Watermarker,
	delivery Delivery,
	storageCfg config.StorageConfig,
	workerCfg config.WorkerConfig,
	downloadCfg config.DownloadConfig,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		jobRepo:   jobRepo,
		history:   history,
		resolver:  resolver,
		fetcher:   fetcher,
		processor: processor,
		marker:    marker,
		delivery:  delivery,
		storage:   storageCfg,
		workerCfg: workerCfg,
		timeout:   downloadCfg.Timeout,
		freeSpace: getFreeDiskSpace,
		logger:    logger,
	}
}

func newJobID() domain.JobID {
	return domain.JobID("dl_" + uuid.New().String()[:8])
}

// EnqueueTikTok queues a TikTok download. text may contain the link
// anywhere.
func (s *DownloadService) EnqueueTikTok(ctx context.Context, userID, chatID int64, text string, mode domain.DownloadMode) (*domain.Job, error) {
	link, ok := tiktok.ExtractURL(text)
	if !ok {
		return nil, domain.ErrInvalidURL
	}

	job := domain.NewJob(newJobID(), domain.JobKindTikTok, userID, chatID, link, s.workerCfg.MaxRetries)
	job.Mode = mode
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("tiktok download queued",
		"job_id", job.ID,
		"user_id", userID,
		"url", link,
		"mode", mode,
	)
	return job, nil
}

// EnqueueWatermark queues a watermark job for a Telegram file.
func (s *DownloadService) EnqueueWatermark(ctx context.Context, userID, chatID int64, fileID string, isImage bool, styleKey string) (*domain.Job, error) {
	if fileID == "" {
		return nil, domain.ErrNoMedia
	}
	if _, err := watermark.Lookup(styleKey); err != nil {
		return nil, err
	}

	job := domain.NewJob(newJobID(), domain.JobKindWatermark, userID, chatID, fileID, s.workerCfg.MaxRetries)
	job.IsImage = isImage
	job.Style = styleKey
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("watermark job queued",
		"job_id", job.ID,
		"user_id", userID,
		"style", styleKey,
		"image", isImage,
	)
	return job, nil
}

// Job returns a job by ID.
func (s *DownloadService) Job(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return s.jobRepo.Get(ctx, id)
}

// UserJobs returns a user's jobs, newest first.
func (s *DownloadService) UserJobs(ctx context.Context, userID int64) ([]*domain.Job, error) {
	return s.jobRepo.ListByUser(ctx, userID)
}

// History returns a user's last delivered downloads.
func (s *DownloadService) History(ctx context.Context, userID int64, limit int) ([]domain.HistoryEntry, error) {
	return s.history.ListByUser(ctx, userID, limit)
}

// Stats returns queue statistics and the number of history entries.
func (s *DownloadService) Stats(ctx context.Context) (*repository.QueueStats, int, error) {
	qs, err := s.jobRepo.Stats(ctx)
	if err != nil {
		return nil, 0, err
	}
	n, err := s.history.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return qs, n, nil
}

// Process runs one attempt of job and returns a short result description.
func (s *DownloadService) Process(ctx context.Context, job *domain.Job) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// Keep room for the download plus its processed copy.
	if need := 2 * s.storage.MaxFileSize; need > 0 {
		if free := s.freeSpace(s.storage.TempPath); free > 0 && free < need {
			return "", fmt.Errorf("%w: %d bytes free in %s", domain.ErrInsufficientSpace, free, s.storage.TempPath)
		}
	}

	dir := filepath.Join(s.storage.TempPath, job.ID.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove work dir", "dir", dir, "error", err)
		}
	}()

	switch job.Kind {
	case domain.JobKindTikTok:
		return s.processTikTok(ctx, job, dir)
	case domain.JobKindWatermark:
		return s.processWatermark(ctx, job, dir)
	default:
		return "", fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// JobFinished tells the user about failed and retried jobs. Completed jobs
// already delivered their media.
func (s *DownloadService) JobFinished(ctx context.Context, job *domain.Job) {
	if job.Status == domain.JobStatusCompleted {
		return
	}
	if err := s.delivery.NotifyJob(ctx, job); err != nil {
		s.logger.Warn("failed to notify job status", "job_id", job.ID, "error", err)
	}
}

func (s *DownloadService) processTikTok(ctx context.Context, job *domain.Job, dir string) (string, error) {
	logger := s.logger.With("job_id", job.ID, "url", job.Source)

	media, strategy, err := s.resolver.Resolve(ctx, job.Source)
	if err != nil {
		return "", err
	}
	logger.Info("tiktok resolved", "strategy", strategy, "media_id", media.ID, "slideshow", media.IsSlideshow())

	caption := buildCaption(media)
	var size int64

	switch {
	case job.Mode == domain.ModeAudio:
		size, err = s.deliverAudio(ctx, job, media, dir)
	case media.IsSlideshow():
		size, err = s.deliverSlideshow(ctx, job, media, dir, caption)
	default:
		size, err = s.deliverVideo(ctx, job, media, dir, caption)
	}
	if err != nil {
		return "", err
	}

	title := media.Title
	if title == "" {
		title = "TikTok " + media.ID
	}
	s.record(ctx, job, title, strategy, size)
	return title, nil
}

func (s *DownloadService) deliverVideo(ctx context.Context, job *domain.Job, media *tiktok.Media, dir, caption string) (int64, error) {
	raw := filepath.Join(dir, "raw.mp4")

	link := media.URLFor(job.Mode)
	if link == "" {
		return 0, domain.ErrNoMedia
	}
	size, err := s.fetcher.DownloadToFile(ctx, link, raw, s.storage.MaxFileSize)
	if errors.Is(err, domain.ErrFileTooLarge) && job.Mode == domain.ModeHD && media.VideoURL != "" && media.VideoURL != link {
		s.logger.Info("hd rendition too large, falling back to sd", "job_id", job.ID)
		size, err = s.fetcher.DownloadToFile(ctx, media.VideoURL, raw, s.storage.MaxFileSize)
	}
	if err != nil {
		return 0, err
	}

	out := filepath.Join(dir, "video.mp4")
	if err := s.processor.Remux(ctx, raw, out); err != nil {
		s.logger.Warn("remux failed, sending original", "job_id", job.ID, "error", err)
		out = raw
	}

	if err := s.delivery.SendVideo(ctx, job.ChatID, out, caption); err != nil {
		return 0, fmt.Errorf("send video: %w", err)
	}
	return size, nil
}

func (s *DownloadService) deliverAudio(ctx context.Context, job *domain.Job, media *tiktok.Media, dir string) (int64, error) {
	out := filepath.Join(dir, "audio.mp3")
	var size int64
	var err error

	if media.MusicURL != "" {
		size, err = s.fetcher.DownloadToFile(ctx, media.MusicURL, out, s.storage.MaxFileSize)
	} else {
		// No separate track: pull it out of the video.
		link := media.URLFor(domain.ModeVideo)
		if link == "" {
			return 0, domain.ErrNoMedia
		}
		raw := filepath.Join(dir, "raw.mp4")
		if size, err = s.fetcher.DownloadToFile(ctx, link, raw, s.storage.MaxFileSize); err == nil {
			err = s.processor.ExtractAudio(ctx, raw, out)
		}
	}
	if err != nil {
		return 0, err
	}

	title := media.Title
	if media.Author != "" {
		title = "@" + media.Author + " - " + title
	}
	if err := s.delivery.SendAudio(ctx, job.ChatID, out, truncate(title, 64)); err != nil {
		return 0, fmt.Errorf("send audio: %w", err)
	}
	return size, nil
}

func (s *DownloadService) deliverSlideshow(ctx context.Context, job *domain.Job, media *tiktok.Media, dir, caption string) (int64, error) {
	// Albums delivered by an earlier attempt are not fetched or sent again.
	skip := min(job.AlbumChunksSent*maxAlbumSize, len(media.Images))
	images := media.Images[skip:]
	paths := make([]string, len(images))
	sizes := make([]int64, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for j, link := range images {
		i := skip + j
		g.Go(func() error {
			raw := filepath.Join(dir, fmt.Sprintf("img_%02d%s", i, imageExt(link)))
			n, err := s.fetcher.DownloadToFile(gctx, link, raw, s.storage.MaxFileSize)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			sizes[j] = n

			if strings.EqualFold(filepath.Ext(raw), ".jpg") {
				paths[j] = raw
				return nil
			}
			out := filepath.Join(dir, fmt.Sprintf("img_%02d.jpg", i))
			if err := s.processor.ConvertImage(gctx, raw, out); err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			paths[j] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for start := 0; start < len(paths); start += maxAlbumSize {
		end := min(start+maxAlbumSize, len(paths))
		chunkCaption := ""
		if job.AlbumChunksSent == 0 {
			chunkCaption = caption
		}
		if err := s.delivery.SendAlbum(ctx, job.ChatID, paths[start:end], chunkCaption); err != nil {
			return 0, fmt.Errorf("send album %d: %w", job.AlbumChunksSent+1, err)
		}
		job.AlbumChunksSent++
	}

	var total int64
	for _, n := range sizes {
		total += n
	}
	return total, nil
}

func (s *DownloadService) processWatermark(ctx context.Context, job *domain.Job, dir string) (string, error) {
	style, err := watermark.Lookup(job.Style)
	if err != nil {
		return "", err
	}

	link, err := s.delivery.FileURL(ctx, job.Source)
	if err != nil {
		return "", fmt.Errorf("locate file: %w", err)
	}

	ext := ".mp4"
	if job.IsImage {
		ext = ".jpg"
	}
	in := filepath.Join(dir, "source"+ext)
	out := filepath.Join(dir, "watermarked"+ext)

	size, err := s.fetcher.DownloadToFile(ctx, link, in, s.storage.MaxFileSize)
	if err != nil {
		return "", err
	}
	if err := s.marker.Apply(ctx, style, in, out, job.IsImage); err != nil {
		return "", err
	}

	caption := "✅ Style: " + style.Name
	if job.IsImage {
		err = s.delivery.SendPhoto(ctx, job.ChatID, out, caption)
	} else {
		err = s.delivery.SendVideo(ctx, job.ChatID, out, caption)
	}
	if err != nil {
		// Large renders are rejected as media but accepted as files.
		s.logger.Warn("media upload failed, retrying as document", "job_id", job.ID, "error", err)
		if docErr := s.delivery.SendDocument(ctx, job.ChatID, out, caption); docErr != nil {
			return "", fmt.Errorf("send result: %w", errors.Join(err, docErr))
		}
	}

	result := "watermark " + style.Key
	s.record(ctx, job, result, style.Key, size)
	return result, nil
}

func (s *DownloadService) record(ctx context.Context, job *domain.Job, title, strategy string, size int64) {
	entry := domain.HistoryEntry{
		JobID:     job.ID,
		Kind:      job.Kind,
		UserID:    job.UserID,
		Source:    job.Source,
		Title:     title,
		Strategy:  strategy,
		SizeBytes: size,
		CreatedAt: time.Now(),
	}
	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record history", "job_id", job.ID, "error", err)
	}
}

func buildCaption(m *tiktok.Media) string {
	var b strings.Builder
	if m.Author != "" {
		b.WriteString("👤 @" + m.Author)
	}
	if m.Title != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Title)
	}
	return truncate(b.String(), maxCaptionLen)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func imageExt(link string) string {
	p := link
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".jpeg", ".jpg":
		return ".jpg"
	case ".png", ".webp", ".heic":
		return ext
	default:
		return ".img"
	}
}
