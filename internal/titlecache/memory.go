package titlecache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	title     string
	expiresAt time.Time
}

// MemoryStore keeps titles in process memory. Used when no Redis URL
// is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (s *MemoryStore) Get(_ context.Context, videoID string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.entries[videoID]
	s.mu.RUnlock()
	if !ok || s.clock.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.title, true
}

func (s *MemoryStore) Set(_ context.Context, videoID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistically drop expired entries so the map does not grow
	// without bound on long-lived processes.
	now := s.clock.Now()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}

	s.entries[videoID] = memoryEntry{title: title, expiresAt: now.Add(s.ttl)}
}
