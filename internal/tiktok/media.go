// Package tiktok resolves TikTok links to downloadable media by chaining
// several resolution strategies behind circuit breakers.
package tiktok

import (
	"context"
	"regexp"
	"strings"

	"github.com/iconidentify/mediabot/internal/domain"
)

// Media is a resolved TikTok post.
type Media struct {
	ID           string
	Author       string
	Title        string
	VideoURL     string
	HDURL        string
	WatermarkURL string
	MusicURL     string
	Images       []string
	Duration     int // seconds
}

// IsSlideshow reports whether the post is a photo carousel.
func (m *Media) IsSlideshow() bool {
	return len(m.Images) > 0
}

// URLFor returns the best URL for mode, falling back to lower renditions.
func (m *Media) URLFor(mode domain.DownloadMode) string {
	switch mode {
	case domain.ModeAudio:
		return m.MusicURL
	case domain.ModeHD:
		if m.HDURL != "" {
			return m.HDURL
		}
	}
	if m.VideoURL != "" {
		return m.VideoURL
	}
	if m.HDURL != "" {
		return m.HDURL
	}
	return m.WatermarkURL
}

// Strategy resolves a TikTok URL into media links.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, url string) (*Media, error)
}

var urlPattern = regexp.MustCompile(
	`https?://(?:(?:www|m)\.)?tiktok\.com/@[\w.-]+/(?:video|photo)/\d+[^\s]*` +
		`|https?://(?:vm|vt)\.tiktok\.com/[\w-]+/?` +
		`|https?://(?:www\.)?tiktok\.com/t/[\w-]+/?`,
)

var videoIDPattern = regexp.MustCompile(`/(?:video|photo)/(\d+)`)

// ExtractURL returns the first TikTok link found in text.
func ExtractURL(text string) (string, bool) {
	u := urlPattern.FindString(text)
	if u == "" {
		return "", false
	}
	return strings.TrimRight(u, ".,;!?)"), true
}

// Match reports whether text contains a TikTok link.
func Match(text string) bool {
	_, ok := ExtractURL(text)
	return ok
}

// VideoID extracts the numeric post ID from a full TikTok URL.
func VideoID(u string) string {
	m := videoIDPattern.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}
