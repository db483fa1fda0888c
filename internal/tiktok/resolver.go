package tiktok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/iconidentify/mediabot/internal/config"
	"github.com/iconidentify/mediabot/internal/domain"
)

// Observer is told about every strategy attempt.
type Observer func(strategy string, err error)

type guardedStrategy struct {
	Strategy
	breaker *gobreaker.CircuitBreaker
}

// Resolver tries strategies in order until one yields media.
type Resolver struct {
	strategies []guardedStrategy
	observer   Observer
	logger     *slog.Logger
}

// NewResolver wraps each strategy in its own circuit breaker.
func NewResolver(breakerTimeout time.Duration, logger *slog.Logger, strategies ...Strategy) *Resolver {
	r := &Resolver{logger: logger}
	for _, s := range strategies {
		r.strategies = append(r.strategies, guardedStrategy{
			Strategy: s,
			breaker:  newBreaker(s.Name(), breakerTimeout, logger),
		})
	}
	return r
}

// NewDefaultResolver builds the tikwm, fallback API and page scrape chain.
func NewDefaultResolver(cfg config.TikTokConfig, userAgent string, logger *slog.Logger) *Resolver {
	client := &http.Client{Timeout: cfg.Timeout}
	return NewResolver(cfg.BreakerTimeout, logger,
		NewTikWM(cfg.TikWMURL, client, userAgent),
		NewFallbackAPI(cfg.FallbackAPIURL, client, userAgent),
		NewPageScrape(client, userAgent),
	)
}

func newBreaker(name string, timeout time.Duration, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("strategy circuit breaker changed state",
				"strategy", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A cancelled request says nothing about the upstream's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// SetObserver installs a callback invoked after every attempt.
func (r *Resolver) SetObserver(o Observer) {
	r.observer = o
}

// Resolve returns the media and the name of the strategy that produced it.
// When every strategy fails the error wraps ErrAllStrategiesFailed and each
// StrategyError.
func (r *Resolver) Resolve(ctx context.Context, link string) (*Media, string, error) {
	if !Match(link) {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrInvalidURL, link)
	}

	errs := []error{domain.ErrAllStrategiesFailed}
	for _, s := range r.strategies {
		res, err := s.breaker.Execute(func() (interface{}, error) {
			return s.Resolve(ctx, link)
		})
		if r.observer != nil {
			r.observer(s.Name(), err)
		}
		if err == nil {
			m := res.(*Media)
			if m.ID == "" {
				m.ID = VideoID(link)
			}
			return m, s.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		r.logger.Warn("tiktok strategy failed", "strategy", s.Name(), "url", link, "error", err)
		errs = append(errs, domain.NewStrategyError(s.Name(), err))
	}

	return nil, "", errors.Join(errs...)
}

// Strategies returns the strategy names in order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}
