// Package ffmpeg wraps the ffmpeg and ffprobe binaries for post-processing
// downloaded media and compositing watermarks.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// RunFunc executes a binary and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Processor runs ffmpeg/ffprobe commands.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	run         RunFunc
}

// NewProcessor resolves the ffmpeg and ffprobe binaries. Bare names are
// looked up in PATH.
func NewProcessor(ffmpegPath, ffprobePath string) (*Processor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	resolvedFFmpeg, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	resolvedFFprobe, err := exec.LookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return NewProcessorWithRunner(resolvedFFmpeg, resolvedFFprobe, runCommand), nil
}

// NewProcessorWithRunner creates a processor with a custom command runner.
func NewProcessorWithRunner(ffmpegPath, ffprobePath string, run RunFunc) *Processor {
	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		run:         run,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%w: %s", err, lastLine(stderr.String()))
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// VideoInfo contains metadata about a media file.
type VideoInfo struct {
	Duration   float64 // Duration in seconds
	Width      int
	Height     int
	HasAudio   bool
	HasVideo   bool
	AudioCodec string
	VideoCodec string
	Bitrate    int64
	FrameRate  float64
	FileSize   int64
}

// GetVideoInfo extracts metadata from a media file.
func (p *Processor) GetVideoInfo(ctx context.Context, path string) (*VideoInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	output, err := p.run(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, err
	}
	info.FileSize = stat.Size()
	return info, nil
}

func parseProbeOutput(output []byte) (*VideoInfo, error) {
	type ffprobeFormat struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	}
	type ffprobeStream struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	}
	type ffprobeOutput struct {
		Format  ffprobeFormat   `json:"format"`
		Streams []ffprobeStream `json:"streams"`
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = dur
	}
	if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
			if info.Width == 0 && s.Width > 0 {
				info.Width = s.Width
				info.Height = s.Height
			}
			if info.FrameRate == 0 {
				info.FrameRate = parseFrameRate(s.AvgFrameRate)
			}
		}
	}

	return info, nil
}

func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// Remux rewrites the container with the moov atom up front so Telegram can
// stream the video before it is fully downloaded. Streams are copied.
func (p *Processor) Remux(ctx context.Context, in, out string) error {
	if err := ensureDir(out); err != nil {
		return err
	}
	if _, err := p.run(ctx, p.ffmpegPath, remuxArgs(in, out)...); err != nil {
		return fmt.Errorf("remux: %w", err)
	}
	return nil
}

func remuxArgs(in, out string) []string {
	return []string{
		"-nostdin", "-v", "error",
		"-i", in,
		"-map", "0",
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", out,
	}
}

// ExtractAudio writes the audio track of in to out as MP3.
func (p *Processor) ExtractAudio(ctx context.Context, in, out string) error {
	if err := ensureDir(out); err != nil {
		return err
	}
	if _, err := p.run(ctx, p.ffmpegPath, audioArgs(in, out)...); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

func audioArgs(in, out string) []string {
	return []string{
		"-nostdin", "-v", "error",
		"-i", in,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "192k",
		"-y", out,
	}
}

// ConvertImage re-encodes a still image (webp, heic, png) to JPEG.
func (p *Processor) ConvertImage(ctx context.Context, in, out string) error {
	if err := ensureDir(out); err != nil {
		return err
	}
	if _, err := p.run(ctx, p.ffmpegPath, imageArgs(in, out)...); err != nil {
		return fmt.Errorf("convert image: %w", err)
	}
	return nil
}

func imageArgs(in, out string) []string {
	return []string{
		"-nostdin", "-v", "error",
		"-i", in,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", out,
	}
}

// Overlay renders in through a -vf filter graph into out. Images produce
// a single JPEG frame; videos are re-encoded with H.264 and the audio copied.
func (p *Processor) Overlay(ctx context.Context, in, out, filter string, image bool) error {
	if filter == "" {
		return fmt.Errorf("overlay: empty filter graph")
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if _, err := p.run(ctx, p.ffmpegPath, filterArgs(in, out, filter, image)...); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	return nil
}

func filterArgs(in, out, filter string, image bool) []string {
	args := []string{
		"-nostdin", "-v", "error",
		"-i", in,
		"-vf", filter,
	}
	if image {
		args = append(args, "-frames:v", "1", "-q:v", "2")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "23",
			"-pix_fmt", "yuv420p",
			"-c:a", "copy",
			"-movflags", "+faststart",
		)
	}
	return append(args, "-y", out)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
