package callregistry

import (
	"context"
	"sync"
	"time"

	"github.com/hilive/hilive/internal/clock"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// memoryStore is the single-process fallback used in dev and tests. Expiry
// is lazy: entries are pruned when touched.
type memoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

func NewMemoryStore(c clock.Clock) Store {
	return &memoryStore{clock: c, entries: map[string]memoryEntry{}}
}

func (s *memoryStore) Put(ctx context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if entry, ok := s.entries[key]; ok && entry.expiresAt.After(now) {
		return ErrCallExists
	}
	s.entries[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key)
	if !ok {
		return "", ErrCallNotFound
	}
	return entry.token, nil
}

func (s *memoryStore) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key)
	if !ok {
		return ErrCallNotFound
	}
	if entry.token != token {
		return ErrTokenMismatch
	}
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key)
	if !ok {
		return ErrCallNotFound
	}
	if entry.token != token {
		return ErrTokenMismatch
	}
	entry.expiresAt = s.clock.Now().Add(ttl)
	s.entries[key] = entry
	return nil
}

// live returns the entry when present and unexpired; expired entries are
// pruned on the way. Caller holds the lock.
func (s *memoryStore) live(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.After(s.clock.Now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
