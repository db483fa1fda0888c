package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/repository"
	"github.com/iconidentify/mediabot/internal/tiktok"
	"github.com/iconidentify/mediabot/internal/watermark"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockResolver struct {
	media    *tiktok.Media
	strategy string
	err      error
	calls    int
}

func (m *mockResolver) Resolve(ctx context.Context, url string) (*tiktok.Media, string, error) {
	m.calls++
	if m.err != nil {
		return nil, "", m.err
	}
	c := *m.media
	return &c, m.strategy, nil
}

type mockFetcher struct {
	mu      sync.Mutex
	urls    []string
	tooBig  map[string]bool
	failErr error
}

func (m *mockFetcher) DownloadToFile(ctx context.Context, url, path string, maxBytes int64) (int64, error) {
	m.mu.Lock()
	m.urls = append(m.urls, url)
	m.mu.Unlock()

	if m.failErr != nil {
		return 0, m.failErr
	}
	if m.tooBig[url] {
		return 0, domain.ErrFileTooLarge
	}
	data := []byte("data:" + url)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type mockProcessor struct {
	mu        sync.Mutex
	calls     []string
	remuxErr  error
	converted int
}

func (m *mockProcessor) touch(name, out string) error {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
	return os.WriteFile(out, []byte(name), 0644)
}

func (m *mockProcessor) Remux(ctx context.Context, in, out string) error {
	if m.remuxErr != nil {
		return m.remuxErr
	}
	return m.touch("remux", out)
}

func (m *mockProcessor) ExtractAudio(ctx context.Context, in, out string) error {
	return m.touch("audio", out)
}

func (m *mockProcessor) ConvertImage(ctx context.Context, in, out string) error {
	m.mu.Lock()
	m.converted++
	m.mu.Unlock()
	return m.touch("image", out)
}

type mockWatermarker struct {
	style string
	err   error
}

func (m *mockWatermarker) Apply(ctx context.Context, style watermark.Style, in, out string, isImage bool) error {
	m.style = style.Key
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(out, []byte("wm"), 0644)
}

type sent struct {
	kind    string
	chatID  int64
	paths   []string
	caption string
}

type mockDelivery struct {
	mu       sync.Mutex
	sent     []sent
	notified []*domain.Job
	videoErr error
	fileURL  string
	// albumFail makes that SendAlbum call (counted from 1) fail.
	albumFail  int
	albumCalls int
}

func (m *mockDelivery) add(kind string, chatID int64, caption string, paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{kind: kind, chatID: chatID, paths: paths, caption: caption})
}

func (m *mockDelivery) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	if m.videoErr != nil {
		return m.videoErr
	}
	m.add("video", chatID, caption, path)
	return nil
}

func (m *mockDelivery) SendAudio(ctx context.Context, chatID int64, path, title string) error {
	m.add("audio", chatID, title, path)
	return nil
}

func (m *mockDelivery) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	m.add("photo", chatID, caption, path)
	return nil
}

func (m *mockDelivery) SendAlbum(ctx context.Context, chatID int64, paths []string, caption string) error {
	m.mu.Lock()
	m.albumCalls++
	fail := m.albumCalls == m.albumFail
	m.mu.Unlock()
	if fail {
		return errors.New("telegram: Bad Gateway")
	}
	m.add("album", chatID, caption, paths...)
	return nil
}

func (m *mockDelivery) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	m.add("document", chatID, caption, path)
	return nil
}

func (m *mockDelivery) NotifyJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, job)
	return nil
}

func (m *mockDelivery) FileURL(ctx context.Context, fileID string) (string, error) {
	return m.fileURL + fileID, nil
}

type fixture struct {
	svc       *DownloadService
	jobs      *repository.InMemoryJobRepository
	history   *repository.SQLiteHistoryRepository
	resolver  *mockResolver
	fetcher   *mockFetcher
	processor *mockProcessor
	marker    *mockWatermarker
	delivery  *mockDelivery
	tempDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	history, err := repository.NewSQLiteHistoryRepository(":memory:")
	if err != nil {
		t.Fatalf("history repo: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	f := &fixture{
		jobs:      repository.NewInMemoryJobRepository(),
		history:   history,
		resolver:  &mockResolver{strategy: "tikwm", media: &tiktok.Media{ID: "1", Author: "creator", Title: "clip", VideoURL: "https://cdn/sd.mp4", HDURL: "https://cdn/hd.mp4", MusicURL: "https://cdn/m.mp3"}},
		fetcher:   &mockFetcher{tooBig: map[string]bool{}},
		processor: &mockProcessor{},
		marker:    &mockWatermarker{},
		delivery:  &mockDelivery{fileURL: "https://api.telegram.org/file/"},
		tempDir:   t.TempDir(),
	}
	f.svc = NewDownloadService(
		f.jobs, f.history, f.resolver, f.fetcher, f.processor, f.marker, f.delivery,
		config.StorageConfig{TempPath: f.tempDir, MaxFileSize: 50 << 20},
		config.WorkerConfig{MaxRetries: 2},
		config.DownloadConfig{Timeout: time.Minute},
		testLogger(),
	)
	f.svc.freeSpace = func(string) int64 { return 1 << 40 }
	return f
}

const tiktokLink = "https://www.tiktok.com/@creator/video/1"

func TestEnqueueTikTok(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.EnqueueTikTok(ctx, 10, 20, "please get "+tiktokLink+" thanks", domain.ModeHD)
	if err != nil {
		t.Fatalf("EnqueueTikTok failed: %v", err)
	}
	if !strings.HasPrefix(job.ID.String(), "dl_") || len(job.ID) != 11 {
		t.Errorf("job ID = %q", job.ID)
	}
	if job.Source != tiktokLink || job.Mode != domain.ModeHD || job.Kind != domain.JobKindTikTok {
		t.Errorf("job = %+v", job)
	}

	jobs, _ := f.svc.UserJobs(ctx, 10)
	if len(jobs) != 1 {
		t.Errorf("UserJobs = %d, want 1", len(jobs))
	}
}

func TestEnqueueTikTok_InvalidURL(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.EnqueueTikTok(context.Background(), 1, 1, "https://example.com/video", domain.ModeVideo); !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}

func TestEnqueueWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.EnqueueWatermark(ctx, 1, 2, "file-abc", true, "banner")
	if err != nil {
		t.Fatalf("EnqueueWatermark failed: %v", err)
	}
	if job.Kind != domain.JobKindWatermark || !job.IsImage || job.Style != "banner" {
		t.Errorf("job = %+v", job)
	}

	if _, err := f.svc.EnqueueWatermark(ctx, 1, 2, "file-abc", true, "nope"); !errors.Is(err, domain.ErrStyleNotFound) {
		t.Errorf("err = %v, want ErrStyleNotFound", err)
	}
	if _, err := f.svc.EnqueueWatermark(ctx, 1, 2, "", true, "banner"); !errors.Is(err, domain.ErrNoMedia) {
		t.Errorf("err = %v, want ErrNoMedia", err)
	}
}

func newTikTokJob(mode domain.DownloadMode) *domain.Job {
	job := domain.NewJob("dl_test0001", domain.JobKindTikTok, 10, 20, tiktokLink, 2)
	job.Mode = mode
	return job
}

func TestProcess_Video(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Process(ctx, newTikTokJob(domain.ModeVideo))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result != "clip" {
		t.Errorf("result = %q", result)
	}

	if len(f.delivery.sent) != 1 || f.delivery.sent[0].kind != "video" {
		t.Fatalf("sent = %+v", f.delivery.sent)
	}
	s := f.delivery.sent[0]
	if s.chatID != 20 || filepath.Base(s.paths[0]) != "video.mp4" {
		t.Errorf("sent = %+v, want remuxed video to chat 20", s)
	}
	if !strings.Contains(s.caption, "@creator") || !strings.Contains(s.caption, "clip") {
		t.Errorf("caption = %q", s.caption)
	}
	if f.fetcher.urls[0] != "https://cdn/sd.mp4" {
		t.Errorf("downloaded %v", f.fetcher.urls)
	}

	entries, _ := f.svc.History(ctx, 10, 5)
	if len(entries) != 1 || entries[0].Strategy != "tikwm" || entries[0].Title != "clip" {
		t.Errorf("history = %+v", entries)
	}

	if _, err := os.Stat(filepath.Join(f.tempDir, "dl_test0001")); !os.IsNotExist(err) {
		t.Error("work dir should be removed")
	}
}

func TestProcess_HDTooLargeFallsBackToSD(t *testing.T) {
	f := newFixture(t)
	f.fetcher.tooBig["https://cdn/hd.mp4"] = true

	if _, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeHD)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(f.fetcher.urls) != 2 || f.fetcher.urls[1] != "https://cdn/sd.mp4" {
		t.Errorf("downloaded %v, want hd then sd", f.fetcher.urls)
	}
}

func TestProcess_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.fetcher.tooBig["https://cdn/sd.mp4"] = true

	_, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeVideo))
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Errorf("err = %v, want ErrFileTooLarge", err)
	}
	if len(f.delivery.sent) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestProcess_RemuxFailureSendsOriginal(t *testing.T) {
	f := newFixture(t)
	f.processor.remuxErr = errors.New("ffmpeg missing")

	if _, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeVideo)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := filepath.Base(f.delivery.sent[0].paths[0]); got != "raw.mp4" {
		t.Errorf("sent %s, want raw.mp4", got)
	}
}

func TestProcess_Audio(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeAudio)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if f.delivery.sent[0].kind != "audio" || f.fetcher.urls[0] != "https://cdn/m.mp3" {
		t.Errorf("sent = %+v, urls = %v", f.delivery.sent, f.fetcher.urls)
	}
	if f.delivery.sent[0].caption != "@creator - clip" {
		t.Errorf("title = %q", f.delivery.sent[0].caption)
	}
}

func TestProcess_AudioExtractedFromVideo(t *testing.T) {
	f := newFixture(t)
	f.resolver.media.MusicURL = ""

	if _, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeAudio)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(f.processor.calls) != 1 || f.processor.calls[0] != "audio" {
		t.Errorf("processor calls = %v", f.processor.calls)
	}
}

func TestProcess_Slideshow(t *testing.T) {
	f := newFixture(t)
	images := make([]string, 12)
	for i := range images {
		images[i] = "https://img.example/" + string(rune('a'+i)) + ".webp?sig=1"
	}
	images[0] = "https://img.example/first.jpeg"
	f.resolver.media = &tiktok.Media{ID: "2", Title: "pics", Images: images}

	if _, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeVideo)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(f.delivery.sent) != 2 {
		t.Fatalf("albums = %d, want 2", len(f.delivery.sent))
	}
	if len(f.delivery.sent[0].paths) != 10 || len(f.delivery.sent[1].paths) != 2 {
		t.Errorf("album sizes = %d, %d", len(f.delivery.sent[0].paths), len(f.delivery.sent[1].paths))
	}
	if f.delivery.sent[0].caption != "pics" || f.delivery.sent[1].caption != "" {
		t.Errorf("captions = %q, %q", f.delivery.sent[0].caption, f.delivery.sent[1].caption)
	}
	if f.processor.converted != 11 {
		t.Errorf("converted = %d, want 11 (jpeg kept as is)", f.processor.converted)
	}
	if filepath.Base(f.delivery.sent[0].paths[0]) != "img_00.jpg" {
		t.Errorf("first path = %s", f.delivery.sent[0].paths[0])
	}
}

func TestProcess_SlideshowRetryResumesAfterSentAlbums(t *testing.T) {
	f := newFixture(t)
	f.delivery.albumFail = 2
	images := make([]string, 12)
	for i := range images {
		images[i] = fmt.Sprintf("https://img.example/%02d.jpg", i)
	}
	f.resolver.media = &tiktok.Media{ID: "3", Title: "pics", Images: images}
	job := newTikTokJob(domain.ModeVideo)

	if _, err := f.svc.Process(context.Background(), job); err == nil {
		t.Fatal("expected the second album to fail")
	}
	if job.AlbumChunksSent != 1 {
		t.Fatalf("AlbumChunksSent = %d, want 1", job.AlbumChunksSent)
	}

	f.fetcher.urls = nil
	if _, err := f.svc.Process(context.Background(), job); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if len(f.delivery.sent) != 2 {
		t.Fatalf("albums sent = %d, want 2", len(f.delivery.sent))
	}
	if len(f.delivery.sent[0].paths) != 10 || f.delivery.sent[0].caption != "pics" {
		t.Errorf("first album = %d paths, caption %q", len(f.delivery.sent[0].paths), f.delivery.sent[0].caption)
	}
	second := f.delivery.sent[1]
	if len(second.paths) != 2 || second.caption != "" {
		t.Errorf("second album = %d paths, caption %q", len(second.paths), second.caption)
	}
	if filepath.Base(second.paths[0]) != "img_10.jpg" {
		t.Errorf("second album starts at %s", second.paths[0])
	}
	if len(f.fetcher.urls) != 2 {
		t.Errorf("retry fetched %d images, want 2", len(f.fetcher.urls))
	}
}

func TestProcess_LowDisk(t *testing.T) {
	f := newFixture(t)
	f.svc.freeSpace = func(string) int64 { return 1024 }

	_, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeVideo))
	if !errors.Is(err, domain.ErrInsufficientSpace) {
		t.Fatalf("err = %v, want ErrInsufficientSpace", err)
	}
	if domain.IsPermanent(err) {
		t.Error("low disk space should be retried")
	}
	if len(f.fetcher.urls) != 0 || f.resolver.calls != 0 {
		t.Errorf("nothing should be fetched, got urls=%v resolves=%d", f.fetcher.urls, f.resolver.calls)
	}
}

func TestProcess_ResolveFailure(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.Join(domain.ErrAllStrategiesFailed, domain.NewStrategyError("tikwm", errors.New("down")))

	_, err := f.svc.Process(context.Background(), newTikTokJob(domain.ModeVideo))
	if !errors.Is(err, domain.ErrAllStrategiesFailed) {
		t.Errorf("err = %v", err)
	}
	entries, _ := f.svc.History(context.Background(), 10, 5)
	if len(entries) != 0 {
		t.Error("failures must not be recorded in history")
	}
}

func TestProcess_Watermark(t *testing.T) {
	f := newFixture(t)
	job := domain.NewJob("dl_wm000001", domain.JobKindWatermark, 10, 20, "file-xyz", 2)
	job.IsImage = true
	job.Style = "classic"

	result, err := f.svc.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result != "watermark classic" || f.marker.style != "classic" {
		t.Errorf("result = %q, style = %q", result, f.marker.style)
	}
	if f.fetcher.urls[0] != "https://api.telegram.org/file/file-xyz" {
		t.Errorf("fetched %v", f.fetcher.urls)
	}
	if f.delivery.sent[0].kind != "photo" {
		t.Errorf("sent = %+v", f.delivery.sent)
	}
}

func TestProcess_WatermarkVideoFallsBackToDocument(t *testing.T) {
	f := newFixture(t)
	f.delivery.videoErr = errors.New("Request Entity Too Large")
	job := domain.NewJob("dl_wm000002", domain.JobKindWatermark, 10, 20, "file-xyz", 2)
	job.Style = "corner"

	if _, err := f.svc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if f.delivery.sent[0].kind != "document" {
		t.Errorf("sent = %+v, want document", f.delivery.sent)
	}
}

func TestProcess_UnknownKind(t *testing.T) {
	f := newFixture(t)
	job := domain.NewJob("dl_x", "mystery", 1, 1, "", 0)
	if _, err := f.svc.Process(context.Background(), job); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestJobFinished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := newTikTokJob(domain.ModeVideo)
	done.MarkCompleted("ok")
	f.svc.JobFinished(ctx, done)

	failed := newTikTokJob(domain.ModeVideo)
	failed.MarkPermanentFailure("boom")
	f.svc.JobFinished(ctx, failed)

	if len(f.delivery.notified) != 1 || f.delivery.notified[0].Status != domain.JobStatusFailed {
		t.Errorf("notified = %+v", f.delivery.notified)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.EnqueueTikTok(ctx, 1, 1, tiktokLink, domain.ModeVideo)
	f.svc.Process(ctx, newTikTokJob(domain.ModeVideo))

	qs, n, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if qs.Queued != 1 || n != 1 {
		t.Errorf("stats = %+v, history = %d", qs, n)
	}
}

func TestBuildCaption(t *testing.T) {
	if got := buildCaption(&tiktok.Media{Author: "a", Title: "t"}); got != "👤 @a\nt" {
		t.Errorf("caption = %q", got)
	}
	if got := buildCaption(&tiktok.Media{Title: "only"}); got != "only" {
		t.Errorf("caption = %q", got)
	}

	long := strings.Repeat("é", 2000)
	got := buildCaption(&tiktok.Media{Title: long})
	if n := len([]rune(got)); n != maxCaptionLen {
		t.Errorf("caption runes = %d, want %d", n, maxCaptionLen)
	}
}

func TestImageExt(t *testing.T) {
	tests := map[string]string{
		"https://x/a.jpeg":          ".jpg",
		"https://x/a.JPG?sig=1":     ".jpg",
		"https://x/a.webp?x-expires": ".webp",
		"https://x/a.heic":          ".heic",
		"https://x/noext":           ".img",
	}
	for in, want := range tests {
		if got := imageExt(in); got != want {
			t.Errorf("imageExt(%q) = %q, want %q", in, got, want)
		}
	}
}
