/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrSerialization is returned by Cache.Put when the payload cannot be serialized.
// It indicates a caller bug; the cache is left unmodified in this case.
var ErrSerialization = errors.New("serialize cache payload")

// Cache provides at-most-TTL-duration memoization of idempotent operation results
// with validation-tag-based invalidation on top of a backing Store.
// sizedStore is implemented by stores that can report their entry count cheaply.
type sizedStore interface {
	Len() int
}

type Cache struct {
	store            Store
	sized            sizedStore // nil when the store cannot report its size
	metricsCollector MetricsCollector

	now func() time.Time
}

// New creates a new Cache on top of the provided backing store.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func New(store Store, metricsCollector MetricsCollector) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("backing store is required")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	c := &Cache{store: store, metricsCollector: metricsCollector, now: time.Now}
	if sized, ok := store.(sizedStore); ok {
		c.sized = sized
	}
	return c, nil
}

// Get returns the payload cached under the key if it is present, not expired,
// and was stored with the validation tag equal to currentTag. In all other cases
// a miss is reported, and a present but stale entry (expired or stored under
// a different tag) is evicted as a side effect.
//
// A backing store failure is never propagated to the caller: the lookup
// degrades to a miss and the failure is counted by the metrics collector.
func (c *Cache) Get(ctx context.Context, key, currentTag string) (json.RawMessage, bool) {
	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.metricsCollector.IncStoreErrors()
		c.metricsCollector.IncMisses()
		return nil, false
	}
	if !found {
		c.metricsCollector.IncMisses()
		return nil, false
	}
	if entry.Expired(c.now()) || entry.Tag != currentTag {
		c.evict(ctx, key)
		c.metricsCollector.IncMisses()
		return nil, false
	}
	c.metricsCollector.IncHits()
	return entry.Payload, true
}

// GetJSON is a Get variant that unmarshals the cached payload into dst.
// An entry that cannot be unmarshaled is evicted and reported as a miss.
func (c *Cache) GetJSON(ctx context.Context, key, currentTag string, dst interface{}) bool {
	payload, found := c.Get(ctx, key, currentTag)
	if !found {
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		c.evict(ctx, key)
		return false
	}
	return true
}

// Put serializes the payload and stores it under the key with the provided
// validation tag and TTL, overwriting the previous entry if any.
// Zero TTL means no expiration.
//
// If the payload cannot be serialized, an error wrapping ErrSerialization
// is returned and the cache remains unchanged. A backing store failure is
// counted by the metrics collector and not reported to the caller.
func (c *Cache) Put(ctx context.Context, key string, payload interface{}, tag string, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	if err = c.store.Set(ctx, key, Entry{Tag: tag, Payload: data, ExpiresAt: expiresAt}); err != nil {
		c.metricsCollector.IncStoreErrors()
	}
	c.reportAmount()
	return nil
}

// InvalidateAll eagerly removes all entries whose keys start with the prefix
// and returns the number of removed entries. It's supposed to be called when
// the validation tag of a whole namespace changes (see KeyPrefix).
func (c *Cache) InvalidateAll(ctx context.Context, prefix string) int {
	removed, err := c.store.DeleteByPrefix(ctx, prefix)
	if err != nil {
		c.metricsCollector.IncStoreErrors()
	}
	if removed > 0 {
		c.metricsCollector.AddEvictions(removed)
	}
	c.reportAmount()
	return removed
}

func (c *Cache) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.metricsCollector.IncStoreErrors()
		return
	}
	c.metricsCollector.AddEvictions(1)
	c.reportAmount()
}

func (c *Cache) reportAmount() {
	if c.sized != nil {
		c.metricsCollector.SetAmount(c.sized.Len())
	}
}
