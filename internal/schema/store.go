package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store owns the current catalog snapshot. Readers take an immutable
// snapshot reference; reload replaces it with a single atomic pointer swap,
// so a concurrent reader never observes a torn catalog.
type Store struct {
	source Source
	logger *slog.Logger

	mu       sync.Mutex // serializes reloads
	loaded   Marker
	hasDoc   bool
	snapshot atomic.Pointer[Catalog]
}

func NewStore(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{source: source, logger: logger}
}

// Snapshot returns the current catalog, reloading first if the source
// marker has advanced past the loaded one. If a reload fails and a prior
// snapshot exists, the prior snapshot is served and the failure is logged;
// an in-flight pipeline run keeps whatever snapshot it already holds.
func (s *Store) Snapshot(ctx context.Context) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasDoc {
		marker, err := s.source.Stat(ctx)
		if err == nil && !marker.After(s.loaded) {
			return s.snapshot.Load(), nil
		}
	}

	catalog, marker, err := s.load(ctx)
	if err != nil {
		if s.hasDoc {
			s.logger.Warn("schema reload failed, serving prior snapshot", slog.Any("error", err))
			return s.snapshot.Load(), nil
		}
		return nil, err
	}
	s.snapshot.Store(catalog)
	s.loaded = marker
	s.hasDoc = true
	return catalog, nil
}

// ForceReload discards the cached marker and re-validates the source
// unconditionally. Unlike Snapshot it does not fall back to the prior
// snapshot on failure.
func (s *Store) ForceReload(ctx context.Context) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, marker, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(catalog)
	s.loaded = marker
	s.hasDoc = true
	return catalog, nil
}

func (s *Store) load(ctx context.Context) (*Catalog, Marker, error) {
	data, marker, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, Marker{}, fmt.Errorf("load schema: %w", err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, Marker{}, err
	}
	s.logger.Info("schema loaded",
		slog.Int("tables", catalog.TableCount()),
		slog.Int("columns", catalog.ColumnCount()),
	)
	return catalog, marker, nil
}
