package anime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/downloader"
)

// Selectors the site scraper waits for before reading the DOM.
const (
	searchReady  = "ul.items"
	detailsReady = "div.anime_info_body_bg"
	episodeReady = "div.anime_muti_link"
)

// SiteScraper scrapes a gogoanime-style site through a Browser.
type SiteScraper struct {
	browser    Browser
	baseURL    *url.URL
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewSiteScraper creates a scraper for cfg.SiteURL.
func NewSiteScraper(browser Browser, cfg config.AnimeConfig, logger *slog.Logger) (*SiteScraper, error) {
	base, err := url.Parse(cfg.SiteURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid anime site URL %q", cfg.SiteURL)
	}
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &SiteScraper{
		browser:    browser,
		baseURL:    base,
		attempts:   attempts,
		retryDelay: 2 * time.Second,
		logger:     logger,
	}, nil
}

// Name implements Source.
func (s *SiteScraper) Name() string { return "site" }

// Search looks up titles matching query.
func (s *SiteScraper) Search(ctx context.Context, query string) ([]Result, error) {
	u := s.resolve("/search.html")
	u.RawQuery = url.Values{"keyword": {query}}.Encode()

	doc, err := s.load(ctx, u.String(), searchReady)
	if err != nil {
		return nil, err
	}
	return parseSearch(doc, s.baseURL), nil
}

// Details loads a title page.
func (s *SiteScraper) Details(ctx context.Context, link string) (*Anime, error) {
	doc, err := s.load(ctx, link, detailsReady)
	if err != nil {
		return nil, err
	}
	a := parseDetails(doc, s.baseURL)
	if a.Title == "" {
		return nil, fmt.Errorf("%w: no title on %s", domain.ErrScrapeFailed, link)
	}
	a.Link = link
	a.Source = s.Name()
	if a.ID == "" {
		a.ID = path.Base(link)
	}
	return a, nil
}

// Episode loads an episode page and returns its streaming links.
func (s *SiteScraper) Episode(ctx context.Context, link string) ([]Stream, error) {
	doc, err := s.load(ctx, link, episodeReady)
	if err != nil {
		return nil, err
	}
	streams := parseEpisode(doc, s.baseURL)
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: no streams on %s", domain.ErrScrapeFailed, link)
	}
	return streams, nil
}

func (s *SiteScraper) load(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error) {
	retryCfg := downloader.FixedRetryConfig(s.attempts, s.retryDelay)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("page load failed, retrying",
			"url", pageURL,
			"attempt", attempt,
			"error", err,
		)
	}

	html, err := downloader.RetryWithCheck(ctx, retryCfg, func() (string, error) {
		return s.browser.HTML(ctx, pageURL, waitSelector)
	}, func(err error) bool {
		return ctx.Err() == nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrScrapeFailed, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", domain.ErrScrapeFailed, err)
	}
	return doc, nil
}

func (s *SiteScraper) resolve(ref string) *url.URL {
	return resolveURL(s.baseURL, ref)
}

func resolveURL(base *url.URL, ref string) *url.URL {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		u := *base
		return &u
	}
	return base.ResolveReference(r)
}

func parseSearch(doc *goquery.Document, base *url.URL) []Result {
	var results []Result
	doc.Find("ul.items li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("p.name a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(a.AttrOr("title", a.Text()))
		if title == "" {
			return
		}

		link := resolveURL(base, href)
		year := strings.TrimSpace(li.Find("p.released").Text())
		year = strings.TrimSpace(strings.TrimPrefix(year, "Released:"))

		results = append(results, Result{
			ID:     path.Base(link.Path),
			Title:  title,
			Link:   link.String(),
			Poster: li.Find("div.img img").AttrOr("src", ""),
			Year:   year,
			Source: "site",
		})
	})
	return results
}

func parseDetails(doc *goquery.Document, base *url.URL) *Anime {
	info := doc.Find("div.anime_info_body_bg").First()

	a := &Anime{
		Result: Result{
			Title:  strings.TrimSpace(info.Find("h1").First().Text()),
			Poster: info.Find("img").AttrOr("src", ""),
		},
	}

	info.Find("p.type").Each(func(_ int, p *goquery.Selection) {
		label := strings.TrimSpace(p.Find("span").First().Text())
		value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p.Text()), label))

		switch strings.TrimSuffix(strings.ToLower(label), ":") {
		case "type":
			a.Type = value
		case "plot summary":
			a.Description = value
		case "genre":
			p.Find("a").Each(func(_ int, g *goquery.Selection) {
				if name := strings.Trim(strings.TrimSpace(g.Text()), ", "); name != "" {
					a.Genres = append(a.Genres, name)
				}
			})
		case "released":
			a.Year = value
		case "status":
			a.Status = value
		}
	})

	if desc := strings.TrimSpace(doc.Find("div.description").First().Text()); a.Description == "" && desc != "" {
		a.Description = desc
	}

	doc.Find("ul#episode_related li a").Each(func(_ int, ep *goquery.Selection) {
		href, ok := ep.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(ep.Find("div.name").Contents().Not("span").Text())
		num := strings.TrimSpace(strings.TrimPrefix(name, "EP"))
		a.Episodes = append(a.Episodes, Episode{
			Number: num,
			Title:  "Episode " + num,
			Link:   resolveURL(base, href).String(),
		})
	})

	// The site lists newest first.
	for i, j := 0, len(a.Episodes)-1; i < j; i, j = i+1, j-1 {
		a.Episodes[i], a.Episodes[j] = a.Episodes[j], a.Episodes[i]
	}
	return a
}

func parseEpisode(doc *goquery.Document, base *url.URL) []Stream {
	var streams []Stream

	doc.Find("div.anime_muti_link ul li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		src, ok := a.Attr("data-video")
		if !ok || src == "" {
			return
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		server := strings.TrimSpace(a.Contents().Not("span").Text())
		if server == "" {
			server = strings.TrimSpace(li.AttrOr("class", ""))
		}
		streams = append(streams, Stream{
			Quality: "embed",
			URL:     resolveURL(base, src).String(),
			Server:  server,
		})
	})

	doc.Find("div.cf-download a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		streams = append(streams, Stream{
			Quality: strings.TrimSpace(a.Text()),
			URL:     resolveURL(base, href).String(),
			Server:  "download",
		})
	})

	return streams
}
