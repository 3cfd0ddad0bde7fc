package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"laundry-notifier/metrics"
)

// Fetcher loads the current server-side result of a named query.
type Fetcher interface {
	Fetch(ctx context.Context, query string) ([]byte, error)
}

// Store keeps the last fetched result per query and refetches on read when
// the registry says the result is stale.
type Store struct {
	fetcher  Fetcher
	registry *Registry
	results  *gocache.Cache
	logger   *slog.Logger
}

// NewStore creates a store whose cached results expire after ttl even
// without a stale marker.
func NewStore(fetcher Fetcher, registry *Registry, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		fetcher:  fetcher,
		registry: registry,
		results:  gocache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Get returns the result of the named query, refetching it if it is stale or
// not cached. Concurrent refetches of the same query are last-write-wins.
func (s *Store) Get(ctx context.Context, name string) (json.RawMessage, error) {
	stale := s.registry.Consume(name)
	if !stale {
		if v, ok := s.results.Get(name); ok {
			metrics.Refetches.WithLabelValues("hit").Inc()
			return v.([]byte), nil
		}
	}

	reason := "miss"
	if stale {
		reason = "stale"
	}

	start := time.Now()
	data, err := s.fetcher.Fetch(ctx, name)
	if err != nil {
		metrics.Refetches.WithLabelValues("error").Inc()
		if stale {
			// Keep the marker so the next read retries.
			s.registry.MarkStale(name)
		}
		return nil, fmt.Errorf("refetch %s: %w", name, err)
	}

	s.results.Set(name, data, gocache.DefaultExpiration)
	metrics.Refetches.WithLabelValues(reason).Inc()
	s.logger.Info("Query refetched",
		"query", name,
		"reason", reason,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return data, nil
}

// Cached reports whether a result for name is held, regardless of staleness.
func (s *Store) Cached(name string) bool {
	_, ok := s.results.Get(name)
	return ok
}

// Forget drops the cached result for name.
func (s *Store) Forget(name string) {
	s.results.Delete(name)
}
