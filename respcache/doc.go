/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package respcache provides caching of idempotent operation responses
// with TTL-based expiration and validation-tag-based invalidation.
//
// A cached entry is returned only while it is not expired and its validation
// tag matches the tag that is current at lookup time. The validation tag is
// an externally supplied version marker (for example, a policy or compliance
// version hash); rotating the tag invalidates all entries stored under the
// previous one regardless of their TTL. Stale entries are evicted lazily as
// a side effect of lookups.
//
// The cache logic is decoupled from the backing store via the Store interface.
// Two implementations are provided out of the box:
//   - MemoryStore: in-process store with sharded locking
//   - RedisStore: store on top of Redis, suitable for sharing between replicas
//
// Backing store failures never fail the request path: the cache degrades to
// "always miss" and reports the condition via the metrics collector.
package respcache
