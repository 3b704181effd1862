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
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisScanBatchSize is the COUNT hint for SCAN during prefix invalidation.
const redisScanBatchSize = 100

// redisMatchEscaper escapes glob metacharacters of the SCAN MATCH option,
// so that a prefix containing them is matched literally.
var redisMatchEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`,
)

// RedisStore is a Store implementation on top of Redis.
//
// It allows sharing cached responses between service replicas. The Redis client
// is constructed and closed by the composing application; RedisStore only uses it.
// Entry expiration is enforced by Redis itself via per-key TTL.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisStoreOpts represents options for RedisStore.
type RedisStoreOpts struct {
	// KeyPrefix is prepended to all keys to isolate the store
	// from other users of the same Redis database.
	KeyPrefix string
}

// NewRedisStore creates a new RedisStore on top of the provided client.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	return NewRedisStoreWithOpts(client, RedisStoreOpts{})
}

// NewRedisStoreWithOpts creates a new RedisStore on top of the provided client with the provided options.
func NewRedisStoreWithOpts(client redis.UniversalClient, opts RedisStoreOpts) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client, keyPrefix: opts.KeyPrefix}, nil
}

type redisStoreEnvelope struct {
	Tag       string          `json:"tag"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt int64           `json:"expiresAt,omitempty"` // Unix milliseconds, 0 means no expiration.
}

// Get returns the entry stored under the key. Implements Store interface.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var env redisStoreEnvelope
	if err = json.Unmarshal(data, &env); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal stored entry: %w", err)
	}
	entry := Entry{Tag: env.Tag, Payload: env.Payload}
	if env.ExpiresAt != 0 {
		entry.ExpiresAt = time.UnixMilli(env.ExpiresAt)
	}
	return entry, true, nil
}

// Set stores the entry under the key. Implements Store interface.
func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	env := redisStoreEnvelope{Tag: entry.Tag, Payload: entry.Payload}
	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		env.ExpiresAt = entry.ExpiresAt.UnixMilli()
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			// Already expired, nothing to store.
			return s.Delete(ctx, key)
		}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal stored entry: %w", err)
	}
	if err = s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the entry stored under the key. Implements Store interface.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteByPrefix removes all entries whose keys start with the prefix.
// Implements Store interface.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	match := redisMatchEscaper.Replace(s.keyPrefix+prefix) + "*"
	removed := 0
	var cursor uint64
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, match, redisScanBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) != 0 {
			deleted, delErr := s.client.Del(ctx, keys...).Result()
			removed += int(deleted)
			if delErr != nil {
				return removed, fmt.Errorf("redis del: %w", delErr)
			}
		}
		if nextCursor == 0 {
			return removed, nil
		}
		cursor = nextCursor
	}
}
