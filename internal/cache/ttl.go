// Package cache provides the best-effort TTL stores used for liquidity
// snapshots and routing decisions. A miss always triggers synchronous
// recomputation upstream; nothing here blocks on expiry.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a byte-oriented TTL cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
}

// TTLStore is an in-memory Store with per-entry expiry and LRU eviction once
// the entry cap is reached.
type TTLStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	stats      Stats
}

type entry struct {
	value    []byte
	expires  time.Time
	accessed time.Time
}

// NewTTLStore creates an in-memory store capped at maxEntries.
func NewTTLStore(maxEntries int) *TTLStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &TTLStore{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
	}
}

// Get returns the value if present and unexpired.
func (s *TTLStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(s.entries, key)
		}
		s.stats.Misses++
		return nil, false
	}
	e.accessed = time.Now()
	s.stats.Hits++
	return e.value, true
}

// Set stores a value with the given TTL, evicting the least recently used
// entry when full.
func (s *TTLStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLRU()
	}
	s.entries[key] = &entry{
		value:    append([]byte(nil), value...),
		expires:  time.Now().Add(ttl),
		accessed: time.Now(),
	}
}

// Delete removes a key.
func (s *TTLStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Stats returns a copy of the counters.
func (s *TTLStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Entries = int64(len(s.entries))
	return st
}

// evictLRU removes the least recently accessed entry. Caller holds the lock.
func (s *TTLStore) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, e := range s.entries {
		if oldestKey == "" || e.accessed.Before(oldest) {
			oldestKey = key
			oldest = e.accessed
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
		s.stats.Evictions++
	}
}
