/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a single cached response together with its validation tag.
type Entry struct {
	// Tag is the validation tag the entry was stored with.
	Tag string

	// Payload is the serialized response.
	Payload json.RawMessage

	// ExpiresAt is the absolute expiration time. Zero time means no expiration.
	ExpiresAt time.Time
}

// Expired reports whether the entry is expired at the passed moment.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now)
}

// Store is a backing store for Cache.
//
// Implementations must be safe for concurrent use and must never return
// a partially written entry from Get. Returned errors are treated by Cache
// as a temporary store unavailability (the lookup degrades to a miss).
type Store interface {
	// Get returns the entry stored under the key.
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)

	// Set stores the entry under the key, overwriting the previous one if any.
	Set(ctx context.Context, key string, entry Entry) error

	// Delete removes the entry stored under the key.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes all entries whose keys start with the prefix
	// and returns the number of removed entries.
	DeleteByPrefix(ctx context.Context, prefix string) (removed int, err error)
}
