package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type rateLimitedSearcher struct {
	inner   Searcher
	limiter *rate.Limiter
}

// NewRateLimited spaces calls to inner at least minInterval apart. A
// non-positive interval returns inner unchanged.
func NewRateLimited(inner Searcher, minInterval time.Duration) Searcher {
	if inner == nil || minInterval <= 0 {
		return inner
	}
	return &rateLimitedSearcher{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

func (s *rateLimitedSearcher) Search(ctx context.Context, q Query) ([]Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Search(ctx, q)
}
