/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerPool(t *testing.T) {
	pool, err := NewControllerPool(validTestConfig(), 0, Opts{})
	require.NoError(t, err)

	c1 := pool.Get("route-1")
	require.NotNil(t, c1)
	require.Same(t, c1, pool.Get("route-1"), "the same key should return the same controller")

	c2 := pool.Get("route-2")
	require.NotSame(t, c1, c2, "different keys should get independent controllers")
	require.Equal(t, 2, pool.Len())
}

func TestControllerPoolInvalidConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.MaxRate = Rate{}
	_, err := NewControllerPool(cfg, 0, Opts{})
	require.Error(t, err)
}

func TestControllerPoolIndependentAdaptation(t *testing.T) {
	cfg := adaptiveTestConfig()
	cfg.MinSamples = 1
	pool, err := NewControllerPool(cfg, 0, Opts{})
	require.NoError(t, err)

	degraded := pool.Get("slow-route")
	healthy := pool.Get("fast-route")

	degraded.Record(time.Second, false)
	require.InDelta(t, 9, degraded.Stats().RefillRate, 1e-9)
	require.InDelta(t, 10, healthy.Stats().RefillRate, 1e-9,
		"adaptation of one controller should not affect the others")
}

func TestControllerPoolEviction(t *testing.T) {
	pool, err := NewControllerPool(validTestConfig(), 2, Opts{})
	require.NoError(t, err)
	ctx := context.Background()

	first := pool.Get("a")
	require.NoError(t, first.Acquire(ctx))

	pool.Get("b")
	pool.Get("c")
	require.Equal(t, 2, pool.Len())

	// "a" was evicted, so its accumulated state is gone.
	recreated := pool.Get("a")
	require.EqualValues(t, 0, recreated.Stats().Admitted)
}
