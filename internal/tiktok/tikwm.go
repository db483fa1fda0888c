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

// TikWM resolves links through the tikwm.com form API.
type TikWM struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewTikWM creates the tikwm strategy.
func NewTikWM(baseURL string, client *http.Client, userAgent string) *TikWM {
	return &TikWM{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		userAgent: userAgent,
	}
}

// Name implements Strategy.
func (t *TikWM) Name() string { return "tikwm" }

type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ID       string   `json:"id"`
		Title    string   `json:"title"`
		Duration int      `json:"duration"`
		Play     string   `json:"play"`
		HDPlay   string   `json:"hdplay"`
		WMPlay   string   `json:"wmplay"`
		Music    string   `json:"music"`
		Images   []string `json:"images"`
		Author   struct {
			UniqueID string `json:"unique_id"`
			Nickname string `json:"nickname"`
		} `json:"author"`
	} `json:"data"`
}

// Resolve implements Strategy.
func (t *TikWM) Resolve(ctx context.Context, link string) (*Media, error) {
	form := url.Values{
		"url": {link},
		"hd":  {"1"},
		"web": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
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

	var body tikwmResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if body.Code != 0 {
		return nil, fmt.Errorf("tikwm error %d: %s", body.Code, body.Msg)
	}

	d := body.Data
	author := d.Author.UniqueID
	if author == "" {
		author = d.Author.Nickname
	}
	m := &Media{
		ID:           d.ID,
		Author:       author,
		Title:        d.Title,
		VideoURL:     t.absolute(d.Play),
		HDURL:        t.absolute(d.HDPlay),
		WatermarkURL: t.absolute(d.WMPlay),
		MusicURL:     t.absolute(d.Music),
		Duration:     d.Duration,
	}
	for _, img := range d.Images {
		m.Images = append(m.Images, t.absolute(img))
	}

	if m.VideoURL == "" && m.HDURL == "" && len(m.Images) == 0 {
		return nil, domain.ErrNoMedia
	}
	return m, nil
}

// tikwm sometimes returns paths relative to its own host.
func (t *TikWM) absolute(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return t.baseURL + "/" + strings.TrimLeft(u, "/")
}
