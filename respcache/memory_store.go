/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// memoryStoreShardsCount must be a power of two, the shard is chosen by the key hash.
const memoryStoreShardsCount = 16

// MemoryStore is an in-process Store implementation.
//
// The backing map is split into shards, each protected by its own mutex, so that
// concurrent lookups of unrelated keys do not contend on a single lock. Expired
// entries are removed lazily on access; RunPeriodicCleanup may be used to remove
// them proactively.
type MemoryStore struct {
	shards          [memoryStoreShardsCount]memoryStoreShard
	maxShardEntries int

	now func() time.Time
}

type memoryStoreShard struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// MemoryStoreOpts represents options for MemoryStore.
type MemoryStoreOpts struct {
	// MaxEntries bounds the total number of stored entries.
	// When a shard is full, the entry with the earliest expiration time is evicted.
	// Zero means no bound.
	MaxEntries int
}

// NewMemoryStore creates a new unbounded MemoryStore.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithOpts(MemoryStoreOpts{})
}

// NewMemoryStoreWithOpts creates a new MemoryStore with the provided options.
func NewMemoryStoreWithOpts(opts MemoryStoreOpts) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	if opts.MaxEntries > 0 {
		s.maxShardEntries = opts.MaxEntries / memoryStoreShardsCount
		if s.maxShardEntries == 0 {
			s.maxShardEntries = 1
		}
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]Entry)
	}
	return s
}

// Get returns the entry stored under the key. Implements Store interface.
// An expired entry is removed and reported as not found.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, found := shard.entries[key]
	if !found {
		return Entry{}, false, nil
	}
	if entry.Expired(s.now()) {
		delete(shard.entries, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores the entry under the key. Implements Store interface.
func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.entries[key]; !exists &&
		s.maxShardEntries > 0 && len(shard.entries) >= s.maxShardEntries {
		shard.evictEarliestExpiring()
	}
	shard.entries[key] = entry
	return nil
}

// Delete removes the entry stored under the key. Implements Store interface.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, key)
	return nil
}

// DeleteByPrefix removes all entries whose keys start with the prefix.
// Implements Store interface.
func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key := range shard.entries {
			if strings.HasPrefix(key, prefix) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}

// Len returns the total number of stored entries, including not yet removed expired ones.
func (s *MemoryStore) Len() int {
	total := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

// RunPeriodicCleanup runs a cycle of periodic removal of expired entries.
// It's supposed to be run in a separate goroutine.
func (s *MemoryStore) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			for i := range s.shards {
				shard := &s.shards[i]
				shard.mu.Lock()
				for key, entry := range shard.entries {
					if entry.Expired(now) {
						delete(shard.entries, key)
					}
				}
				shard.mu.Unlock()
			}
		}
	}
}

func (s *MemoryStore) shard(key string) *memoryStoreShard {
	return &s.shards[xxhash.Sum64String(key)&(memoryStoreShardsCount-1)]
}

// evictEarliestExpiring removes the entry with the earliest expiration time.
// Entries without expiration are evicted last. Must be called under the shard lock.
func (sh *memoryStoreShard) evictEarliestExpiring() {
	var victimKey string
	var victimExpiresAt time.Time
	first := true
	for key, entry := range sh.entries {
		expiresAt := entry.ExpiresAt
		if expiresAt.IsZero() {
			// Treat "no expiration" as the farthest possible expiration.
			expiresAt = time.Unix(1<<62, 0)
		}
		if first || expiresAt.Before(victimExpiresAt) {
			victimKey, victimExpiresAt, first = key, expiresAt, false
		}
	}
	if !first {
		delete(sh.entries, victimKey)
	}
}
