// Package session keeps the best-effort per-sender context: who wrote last and with what
// intent. Entries expire after a TTL measured against an injected clock. Nothing reads this
// state to classify messages.
package session

import (
	"context"
	"sync"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"
)

// DefaultTTL is how long a sender context lives without new messages.
const DefaultTTL = 30 * time.Minute

// MemoryStore is an in-process ContextStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.SenderContext
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store. A nil clock uses time.Now.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]domain.SenderContext),
		ttl:     ttl,
		now:     now,
	}
}

func (s *MemoryStore) Touch(_ context.Context, sc domain.SenderContext) error {
	if sc.LastSeen.IsZero() {
		sc.LastSeen = s.now()
	}
	s.mu.Lock()
	s.entries[sc.Sender] = sc
	n := len(s.entries)
	s.mu.Unlock()
	metrics.ActiveSenders.Set(int64(n))
	return nil
}

// Get returns the live entry for sender, or nil when absent or expired.
func (s *MemoryStore) Get(_ context.Context, sender string) (*domain.SenderContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.entries[sender]
	if !ok || s.expired(sc) {
		return nil, nil
	}
	return &sc, nil
}

// Sweep evicts expired entries and reports how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	removed := 0
	for k, sc := range s.entries {
		if s.expired(sc) {
			delete(s.entries, k)
			removed++
		}
	}
	n := len(s.entries)
	s.mu.Unlock()
	metrics.ActiveSenders.Set(int64(n))
	return removed, nil
}

// Len counts entries, including expired ones not yet swept.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *MemoryStore) expired(sc domain.SenderContext) bool {
	return s.now().Sub(sc.LastSeen) > s.ttl
}
