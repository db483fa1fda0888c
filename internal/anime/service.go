package anime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iconidentify/mediabot/internal/domain"
	"github.com/iconidentify/mediabot/internal/state"
)

// Service queries sources in order and caches results.
type Service struct {
	sources  []Source
	searches state.Store[string, []Result]
	details  state.Store[string, *Anime]
	logger   *slog.Logger
}

// NewService creates a service over sources, tried in the given order.
func NewService(
	searches state.Store[string, []Result],
	details state.Store[string, *Anime],
	logger *slog.Logger,
	sources ...Source,
) *Service {
	return &Service{
		sources:  sources,
		searches: searches,
		details:  details,
		logger:   logger,
	}
}

// Search returns results from the first source that finds any.
func (s *Service) Search(ctx context.Context, query string) ([]Result, error) {
	key := state.CacheKey("search", query)
	if cached, ok := s.searches.Get(key); ok {
		return cached, nil
	}

	var errs []error
	for _, src := range s.sources {
		results, err := src.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("anime search failed", "source", src.Name(), "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if len(results) == 0 {
			continue
		}
		s.searches.Set(key, results)
		return results, nil
	}

	if len(errs) == len(s.sources) && len(errs) > 0 {
		return nil, errors.Join(append([]error{domain.ErrScrapeFailed}, errs...)...)
	}
	return nil, nil
}

// Details loads a title from the source that produced r.
func (s *Service) Details(ctx context.Context, r Result) (*Anime, error) {
	key := state.CacheKey("details", r.Source, r.Link)
	if cached, ok := s.details.Get(key); ok {
		return cached, nil
	}

	src, err := s.source(r.Source)
	if err != nil {
		return nil, err
	}
	a, err := src.Details(ctx, r.Link)
	if err != nil {
		return nil, fmt.Errorf("%s details: %w", src.Name(), err)
	}
	if a.Source == "" {
		a.Source = src.Name()
	}
	s.details.Set(key, a)
	return a, nil
}

// Streams returns the streaming links of an episode of a.
func (s *Service) Streams(ctx context.Context, a *Anime, ep Episode) ([]Stream, error) {
	src, err := s.source(a.Source)
	if err != nil {
		return nil, err
	}
	streams, err := src.Episode(ctx, ep.Link)
	if err != nil {
		return nil, fmt.Errorf("%s episode %s: %w", src.Name(), ep.Number, err)
	}
	return streams, nil
}

// CacheSize reports the number of cached searches and titles.
func (s *Service) CacheSize() int {
	return s.searches.Len() + s.details.Len()
}

func (s *Service) source(name string) (Source, error) {
	for _, src := range s.sources {
		if src.Name() == name {
			return src, nil
		}
	}
	if len(s.sources) > 0 && name == "" {
		return s.sources[0], nil
	}
	return nil, fmt.Errorf("%w: anime source %q", domain.ErrNotFound, name)
}
