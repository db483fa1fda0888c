package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/iconidentify/mediabot/internal/domain"
)

// FallbackAPI resolves links through a tiklydown-compatible JSON API.
type FallbackAPI struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewFallbackAPI creates the second strategy.
func NewFallbackAPI(baseURL string, client *http.Client, userAgent string) *FallbackAPI {
	return &FallbackAPI{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		userAgent: userAgent,
	}
}

// Name implements Strategy.
func (f *FallbackAPI) Name() string { return "fallback-api" }

type fallbackResponse struct {
	ID     json.Number `json:"id"`
	Title  string      `json:"title"`
	Author struct {
		UniqueID string `json:"unique_id"`
		Name     string `json:"name"`
	} `json:"author"`
	Video struct {
		NoWatermark string `json:"noWatermark"`
		Watermark   string `json:"watermark"`
		Duration    int    `json:"duration"`
	} `json:"video"`
	Music struct {
		PlayURL string `json:"play_url"`
	} `json:"music"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Message string `json:"message"`
}

// Resolve implements Strategy.
func (f *FallbackAPI) Resolve(ctx context.Context, link string) (*Media, error) {
	endpoint := f.baseURL + "/api/download?url=" + url.QueryEscape(link)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body fallbackResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, 10<<20))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	author := body.Author.UniqueID
	if author == "" {
		author = body.Author.Name
	}
	m := &Media{
		ID:           body.ID.String(),
		Author:       author,
		Title:        body.Title,
		VideoURL:     body.Video.NoWatermark,
		WatermarkURL: body.Video.Watermark,
		MusicURL:     body.Music.PlayURL,
		Duration:     body.Video.Duration,
	}
	for _, img := range body.Images {
		if img.URL != "" {
			m.Images = append(m.Images, img.URL)
		}
	}

	if m.VideoURL == "" && m.WatermarkURL == "" && len(m.Images) == 0 {
		if body.Message != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoMedia, body.Message)
		}
		return nil, domain.ErrNoMedia
	}
	return m, nil
}
