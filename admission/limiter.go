/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/acronis/go-appkit/lrucache"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// Limiter admits requests against a fixed per-key rate. It is the non-adaptive
// counterpart of Controller.Acquire for resources whose capacity is known in
// advance and does not need the feedback loop: a nil result admits the request,
// a RejectedError carries the retry-after hint.
type Limiter interface {
	Acquire(ctx context.Context, key string) error
}

// LeakyBucketLimiter is a Limiter draining requests at a constant rate (GCRA).
// Short spikes above the rate are absorbed up to the configured burst size;
// anything beyond is rejected with a retry-after hint.
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketLimiter creates a new LeakyBucketLimiter allowing maxRate plus
// a spike of maxBurst extra requests per key. maxKeys bounds the number of
// tracked keys, zero means no bound.
func NewLeakyBucketLimiter(maxRate Rate, maxBurst, maxKeys int) (*LeakyBucketLimiter, error) {
	store, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new memstore: %w", err)
	}
	gcra, err := throttled.NewGCRARateLimiterCtx(store, throttled.RateQuota{
		MaxRate:  throttled.PerDuration(maxRate.Count, maxRate.Duration),
		MaxBurst: maxBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("new GCRA limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcra: gcra}, nil
}

// Acquire admits the request for the key or rejects it with a RejectedError.
// Implements Limiter interface.
func (l *LeakyBucketLimiter) Acquire(ctx context.Context, key string) error {
	limited, res, err := l.gcra.RateLimitCtx(ctx, key, 1)
	if err != nil {
		return fmt.Errorf("rate limit key %q: %w", key, err)
	}
	if limited {
		return &RejectedError{Reason: ErrRejected, RetryAfter: res.RetryAfter}
	}
	return nil
}

// SlidingWindowLimiter is a Limiter admitting at most maxRate.Count requests
// per maxRate.Duration, counted over a window sliding with time.
type SlidingWindowLimiter struct {
	maxRate Rate

	// Exactly one of the two is set: a single window shared by all keys,
	// or an LRU zone of per-key windows.
	shared *slidingwindow.Limiter
	zone   *lrucache.LRUCache[string, *slidingwindow.Limiter]
}

// NewSlidingWindowLimiter creates a new SlidingWindowLimiter.
// With maxKeys > 0, every key is counted against its own window, and the
// windows of the least recently seen keys are dropped beyond maxKeys.
// With maxKeys == 0, all keys share a single window.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	l := &SlidingWindowLimiter{maxRate: maxRate}
	if maxKeys == 0 {
		l.shared = newSlidingWindow(maxRate)
		return l, nil
	}
	zone, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU zone for windows: %w", err)
	}
	l.zone = zone
	return l, nil
}

// Acquire admits the request for the key or rejects it with a RejectedError
// whose retry-after hint points at the start of the next window.
// Implements Limiter interface.
func (l *SlidingWindowLimiter) Acquire(_ context.Context, key string) error {
	window := l.shared
	if l.zone != nil {
		window, _ = l.zone.GetOrAdd(key, func() *slidingwindow.Limiter {
			return newSlidingWindow(l.maxRate)
		})
	}
	if window.Allow() {
		return nil
	}
	now := time.Now()
	windowEnd := now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration)
	return &RejectedError{Reason: ErrRejected, RetryAfter: windowEnd.Sub(now)}
}

func newSlidingWindow(maxRate Rate) *slidingwindow.Limiter {
	window, _ := slidingwindow.NewLimiter(maxRate.Duration, int64(maxRate.Count),
		func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return window
}
