/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// TokenBucket is a lazily refilled token bucket.
//
// Tokens accumulate at the refill rate up to the capacity and are debited
// per consumption. There is no background refill goroutine: the accumulated
// amount is computed from the elapsed time on every consumption attempt.
// The invariant 0 <= tokens <= capacity holds after every operation.
// TokenBucket is safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	rate       float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	now func() time.Time
}

// NewTokenBucket creates a new full TokenBucket with the provided capacity
// (maximum burst size) and refill rate in tokens per second.
func NewTokenBucket(capacity, refillRate float64) (*TokenBucket, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("token bucket capacity must be positive, got %v", capacity)
	}
	if refillRate <= 0 {
		return nil, fmt.Errorf("token bucket refill rate must be positive, got %v", refillRate)
	}
	tb := &TokenBucket{capacity: capacity, rate: refillRate, tokens: capacity, now: time.Now}
	tb.lastRefill = tb.now()
	return tb, nil
}

// TryConsume attempts to consume n tokens without blocking.
// On failure it returns an estimate of how long the caller should wait
// for the missing tokens to accumulate at the current refill rate.
func (tb *TokenBucket) TryConsume(n float64) (ok bool, wait time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= n {
		tb.tokens -= n
		return true, 0
	}
	return false, time.Duration((n - tb.tokens) / tb.rate * float64(time.Second))
}

// Tokens returns the number of currently available tokens.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// Capacity returns the maximum burst size of the bucket.
func (tb *TokenBucket) Capacity() float64 {
	return tb.capacity
}

// Rate returns the current refill rate in tokens per second.
func (tb *TokenBucket) Rate() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

// SetRate changes the refill rate. Tokens accumulated before the change
// are accounted at the old rate. Non-positive rates are ignored.
func (tb *TokenBucket) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	tb.rate = rate
}

// refill computes the tokens accumulated since the last refill.
// Must be called under the lock. Non-positive elapsed time is a no-op,
// so the token count never goes negative on clock anomalies.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.rate)
	tb.lastRefill = now
}
