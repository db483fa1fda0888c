package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/mediabot/internal/domain"
)

// PageScrape fetches the TikTok page itself and reads the rehydration JSON
// embedded for the web client.
type PageScrape struct {
	client    *http.Client
	userAgent string
}

// NewPageScrape creates the last-resort strategy.
func NewPageScrape(client *http.Client, userAgent string) *PageScrape {
	return &PageScrape{client: client, userAgent: userAgent}
}

// Name implements Strategy.
func (p *PageScrape) Name() string { return "page-scrape" }

type rehydrationData struct {
	DefaultScope struct {
		VideoDetail struct {
			StatusCode int `json:"statusCode"`
			ItemInfo   struct {
				ItemStruct itemStruct `json:"itemStruct"`
			} `json:"itemInfo"`
		} `json:"webapp.video-detail"`
	} `json:"__DEFAULT_SCOPE__"`
}

type itemStruct struct {
	ID     string `json:"id"`
	Desc   string `json:"desc"`
	Author struct {
		UniqueID string `json:"uniqueId"`
	} `json:"author"`
	Video struct {
		PlayAddr     string `json:"playAddr"`
		DownloadAddr string `json:"downloadAddr"`
		Duration     int    `json:"duration"`
	} `json:"video"`
	Music struct {
		PlayURL string `json:"playUrl"`
	} `json:"music"`
	ImagePost struct {
		Images []struct {
			ImageURL struct {
				URLList []string `json:"urlList"`
			} `json:"imageURL"`
		} `json:"images"`
	} `json:"imagePost"`
}

// Resolve implements Strategy.
func (p *PageScrape) Resolve(ctx context.Context, link string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return parsePage(io.LimitReader(resp.Body, 20<<20))
}

func parsePage(r io.Reader) (*Media, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	raw := doc.Find("script#__UNIVERSAL_DATA_FOR_REHYDRATION__").First().Text()
	if raw == "" {
		return nil, fmt.Errorf("%w: no rehydration data on page", domain.ErrNoMedia)
	}

	var data rehydrationData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse rehydration data: %w", err)
	}

	item := data.DefaultScope.VideoDetail.ItemInfo.ItemStruct
	if item.ID == "" {
		return nil, fmt.Errorf("%w: video detail status %d", domain.ErrNoMedia, data.DefaultScope.VideoDetail.StatusCode)
	}

	m := &Media{
		ID:           item.ID,
		Author:       item.Author.UniqueID,
		Title:        item.Desc,
		VideoURL:     item.Video.PlayAddr,
		WatermarkURL: item.Video.DownloadAddr,
		MusicURL:     item.Music.PlayURL,
		Duration:     item.Video.Duration,
	}
	for _, img := range item.ImagePost.Images {
		if len(img.ImageURL.URLList) > 0 {
			m.Images = append(m.Images, img.ImageURL.URLList[0])
		}
	}

	if m.VideoURL == "" && m.WatermarkURL == "" && len(m.Images) == 0 {
		return nil, domain.ErrNoMedia
	}
	return m, nil
}
