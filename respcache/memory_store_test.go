/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := Entry{Tag: "t1", Payload: json.RawMessage(`{"v":1}`)}
	require.NoError(t, store.Set(ctx, "governance:validate:abc", entry))

	got, found, err := store.Get(ctx, "governance:validate:abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, entry.Tag, got.Tag)
	require.JSONEq(t, string(entry.Payload), string(got.Payload))

	_, found, err = store.Get(ctx, "governance:validate:missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreExpiration(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k1", Entry{Tag: "t1", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Set(ctx, "k2", Entry{Tag: "t1"})) // no expiration

	_, found, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)

	now = now.Add(time.Minute + time.Second)

	_, found, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, found, "entry should expire strictly after its TTL")
	require.Equal(t, 1, store.Len(), "expired entry should be removed on access")

	_, found, err = store.Get(ctx, "k2")
	require.NoError(t, err)
	require.True(t, found, "entry without expiration should not expire")
}

func TestMemoryStoreDeleteByPrefix(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("governance:validate:%d", i), Entry{Tag: "t1"}))
	}
	require.NoError(t, store.Set(ctx, "audit:report:0", Entry{Tag: "t1"}))

	removed, err := store.DeleteByPrefix(ctx, "governance:")
	require.NoError(t, err)
	require.Equal(t, 10, removed)
	require.Equal(t, 1, store.Len())

	_, found, err := store.Get(ctx, "audit:report:0")
	require.NoError(t, err)
	require.True(t, found)
}

func TestMemoryStoreMaxEntries(t *testing.T) {
	store := NewMemoryStoreWithOpts(MemoryStoreOpts{MaxEntries: 16})
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("key-%d", i), Entry{Tag: "t1"}))
	}
	require.LessOrEqual(t, store.Len(), 16)
}

func TestMemoryStorePeriodicCleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "stale", Entry{Tag: "t1", ExpiresAt: now.Add(time.Millisecond)}))
	require.NoError(t, store.Set(ctx, "fresh", Entry{Tag: "t1", ExpiresAt: now.Add(time.Hour)}))
	now = now.Add(time.Second)

	cleanupCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RunPeriodicCleanup(cleanupCtx, time.Millisecond*10)
	}()

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, time.Millisecond*10)

	cancel()
	<-done

	_, found, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, found)
}
