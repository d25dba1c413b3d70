package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
)

var (
	_ pass.VersionCounter = (*MemoryVersionCounter)(nil)
	_ pass.ProgressStore  = (*MemoryProgressStore)(nil)
)

// MemoryVersionCounter is used when redis is disabled. Values reset with the
// process.
type MemoryVersionCounter struct {
	mu       sync.Mutex
	versions map[string]int64
}

func NewMemoryVersionCounter() *MemoryVersionCounter {
	return &MemoryVersionCounter{versions: make(map[string]int64)}
}

func (c *MemoryVersionCounter) Increment(_ context.Context, server string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(server))
	c.versions[key]++
	return c.versions[key], nil
}

type MemoryProgressStore struct {
	mu       sync.RWMutex
	progress map[string]map[string]time.Time
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{progress: make(map[string]map[string]time.Time)}
}

func (s *MemoryProgressStore) MarkFetched(_ context.Context, server, category string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(server))
	if s.progress[key] == nil {
		s.progress[key] = make(map[string]time.Time)
	}
	s.progress[key][category] = at
	return nil
}

func (s *MemoryProgressStore) LastFetched(server, category string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.progress[strings.ToLower(strings.TrimSpace(server))][category]
	return at, ok
}
