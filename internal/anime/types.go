// Package anime finds anime titles, episodes and streaming links using a
// headless-browser site scraper with a JSON API as fallback.
package anime

import "context"

// Result is one search hit.
type Result struct {
	ID     string
	Title  string
	Link   string // page URL for the site scraper, API id for the API client
	Poster string
	Year   string
	Type   string
	Source string // name of the source that produced the result
}

// Anime is a title with its episode list.
type Anime struct {
	Result
	Description string
	Genres      []string
	Status      string
	Episodes    []Episode
}

// Episode is one playable episode.
type Episode struct {
	Number string
	Title  string
	Link   string
}

// Stream is a playable or downloadable link for an episode.
type Stream struct {
	Quality string
	URL     string
	Server  string
}

// Source is a place anime data can be fetched from.
type Source interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
	Details(ctx context.Context, link string) (*Anime, error)
	Episode(ctx context.Context, link string) ([]Stream, error)
}
