package neo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/impactgo/internal/metrics"
)

// ErrFetchDisabled is returned by Refresh when remote fetching is off.
var ErrFetchDisabled = errors.New("NEO fetch disabled")

// Config holds feed configuration loaded from environment variables.
type Config struct {
	EnableFetch bool          // Allow remote fetches (default: true).
	SourceURL   string        // Feed endpoint (default: NeoWs feed).
	APIKey      string        // NeoWs API key (default: DEMO_KEY).
	CacheDir    string        // Raw feed cache directory (default: /tmp/impactgo/neo).
	MaxFiles    int           // Cache files kept (default: 5).
	MaxAge      time.Duration // Dataset age that triggers a refresh (default: 24h).
}

// Service ties the fetcher, disk cache and store together.
type Service struct {
	config  Config
	fetcher *Fetcher
	cache   *Cache
	store   *Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. Nothing is loaded until LoadCached or
// Refresh is called.
func NewService(config Config, store *Store, logger *slog.Logger) *Service {
	return &Service{
		config:  config,
		fetcher: NewFetcher(config.SourceURL, config.APIKey, logger),
		cache:   NewCache(config.CacheDir, config.MaxFiles),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Store returns the backing store.
func (s *Service) Store() *Store {
	return s.store
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.config
}

// LoadCached loads the newest cached feed into the store.
func (s *Service) LoadCached() error {
	data, ts, err := s.cache.LoadLatest()
	if err != nil {
		return err
	}
	objects, err := Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		return fmt.Errorf("parsing cached feed: %w", err)
	}
	s.set(&Dataset{Source: "cache", FetchedAt: ts, Objects: objects})
	s.logger.Info("loaded NEO data from cache", "count", len(objects), "cached_at", ts.UTC().Format(time.RFC3339))
	return nil
}

// Refresh fetches the current week's close approaches, caches the raw feed
// and swaps the dataset in. Concurrent calls are serialized.
func (s *Service) Refresh(ctx context.Context) (*Dataset, error) {
	if !s.config.EnableFetch {
		return nil, ErrFetchDisabled
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	now := s.now()
	data, err := s.fetcher.Fetch(ctx, now)
	if err != nil {
		metrics.IncNEOFetch("error")
		return nil, fmt.Errorf("fetch: %w", err)
	}
	objects, err := Parse(bytes.NewReader(data), s.logger)
	if err != nil {
		metrics.IncNEOFetch("parse_error")
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := s.cache.Write(data, now); err != nil {
		s.logger.Warn("failed to cache NEO feed", "error", err)
	}

	ds := &Dataset{Source: s.fetcher.SourceURL(), FetchedAt: now, Objects: objects}
	s.set(ds)
	metrics.IncNEOFetch("ok")
	s.logger.Info("NEO dataset refreshed", "count", len(objects))
	return ds, nil
}

// Stale reports whether the dataset is missing or older than MaxAge.
func (s *Service) Stale() bool {
	age := s.store.AgeSeconds()
	return age < 0 || (s.config.MaxAge > 0 && age > s.config.MaxAge.Seconds())
}

// Run refreshes the dataset whenever it goes stale. Blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.config.EnableFetch && s.Stale() {
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("NEO refresh failed", "error", err)
			}
		}
		if age := s.store.AgeSeconds(); age >= 0 {
			metrics.SetNEODatasetAge(age)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) set(ds *Dataset) {
	s.store.Set(ds)
	metrics.SetNEODatasetCount(len(ds.Objects))
	metrics.SetNEODatasetAge(s.store.AgeSeconds())
}
