package anime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/domain"
)

// APIClient reads anime data from a JSON API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAPIClient creates a client for cfg.APIURL.
func NewAPIClient(cfg config.AnimeConfig, logger *slog.Logger) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		logger:     logger,
	}
}

// Name implements Source.
func (c *APIClient) Name() string { return "api" }

type apiResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Image       string `json:"image"`
	ReleaseDate string `json:"releaseDate"`
	Type        string `json:"type"`
	SubOrDub    string `json:"subOrDub"`
}

type apiEpisode struct {
	ID     string          `json:"id"`
	Number json.RawMessage `json:"number"`
	Title  string          `json:"title"`
}

type apiAnime struct {
	apiResult
	Description string       `json:"description"`
	Genres      []string     `json:"genres"`
	Status      string       `json:"status"`
	Episodes    []apiEpisode `json:"episodes"`
}

type apiSource struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Server  string `json:"server"`
}

// Search implements Source.
func (c *APIClient) Search(ctx context.Context, query string) ([]Result, error) {
	var resp struct {
		Results []apiResult `json:"results"`
	}
	if err := c.get(ctx, "/search?q="+url.QueryEscape(query), &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ID == "" {
			continue
		}
		results = append(results, r.toResult(c.Name()))
	}
	return results, nil
}

// Details implements Source. link is the API id of the title.
func (c *APIClient) Details(ctx context.Context, link string) (*Anime, error) {
	var resp apiAnime
	if err := c.get(ctx, "/anime/"+url.PathEscape(link), &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" && resp.Title == "" {
		return nil, fmt.Errorf("%w: anime %s", domain.ErrNotFound, link)
	}
	if resp.ID == "" {
		resp.ID = link
	}

	a := &Anime{
		Result:      resp.toResult(c.Name()),
		Description: resp.Description,
		Genres:      resp.Genres,
		Status:      resp.Status,
	}
	for _, ep := range resp.Episodes {
		num := episodeNumber(ep.Number)
		title := ep.Title
		if title == "" {
			title = "Episode " + num
		}
		a.Episodes = append(a.Episodes, Episode{Number: num, Title: title, Link: ep.ID})
	}
	return a, nil
}

// Episode implements Source. link is the API id of the episode.
func (c *APIClient) Episode(ctx context.Context, link string) ([]Stream, error) {
	var resp struct {
		Sources []apiSource `json:"sources"`
	}
	if err := c.get(ctx, "/episode/"+url.PathEscape(link), &resp); err != nil {
		return nil, err
	}
	if len(resp.Sources) == 0 {
		return nil, fmt.Errorf("%w: episode %s", domain.ErrNoMedia, link)
	}

	streams := make([]Stream, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		server := s.Server
		if server == "" {
			server = c.Name()
		}
		streams = append(streams, Stream{Quality: s.Quality, URL: s.URL, Server: server})
	}
	return streams, nil
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anime api: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("anime api: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("anime api: decode: %w", err)
	}
	return nil
}

func (r apiResult) toResult(source string) Result {
	typ := r.Type
	if typ == "" {
		typ = r.SubOrDub
	}
	return Result{
		ID:     r.ID,
		Title:  r.Title,
		Link:   r.ID,
		Poster: r.Image,
		Year:   r.ReleaseDate,
		Type:   typ,
		Source: source,
	}
}

// episodeNumber accepts both 12 and "12".
func episodeNumber(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}
