package snapshot

import (
	"errors"
	"sync"
	"time"

	"github.com/eugenenazirov/buildcfg/internal/config"
)

var (
	// ErrEmpty is returned by Get before the first Set.
	ErrEmpty = errors.New("no configuration loaded")
	// ErrInvalidSnapshot indicates an attempt to store a configuration without a root.
	ErrInvalidSnapshot = errors.New("configuration snapshot must carry a project root")
)

// Store provides access to the current configuration snapshot.
type Store interface {
	Get() (config.BuildConfiguration, time.Time, error)
	Set(cfg config.BuildConfiguration) error
}

// MemoryStore keeps the snapshot in memory and guards access with a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	current  config.BuildConfiguration
	loadedAt time.Time
	clock    func() time.Time
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the current snapshot and when it was stored.
func (s *MemoryStore) Get() (config.BuildConfiguration, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current.Root == "" {
		return config.BuildConfiguration{}, time.Time{}, ErrEmpty
	}
	return s.current.Clone(), s.loadedAt, nil
}

// Set replaces the snapshot with a copy of cfg.
func (s *MemoryStore) Set(cfg config.BuildConfiguration) error {
	if cfg.Root == "" {
		return ErrInvalidSnapshot
	}

	clone := cfg.Clone()
	now := s.clock()

	s.mu.Lock()
	s.current = clone
	s.loadedAt = now
	s.mu.Unlock()

	return nil
}
