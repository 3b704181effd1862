/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/acronis/go-appkit/log"
	"go.uber.org/atomic"
)

// nearZeroErrorRate is the error rate below which the resource is considered healthy
// enough for the refill rate to be increased.
const nearZeroErrorRate = 0.01

// Controller is an admission-control layer in front of a request-processing pipeline.
//
// An arriving request consumes a token from the bucket and proceeds immediately
// if one is available. Otherwise, the request is queued (subject to the queue
// capacity bound), waits the estimated refill time capped at MaxRetryWait, and
// makes a second consumption attempt; if tokens are still unavailable, the
// request is rejected with a retry-after hint.
//
// Completed requests are reported back via Record; the observed latency and
// error rate drive the adaptive adjustment of the token refill rate.
// Controller is safe for concurrent use.
type Controller struct {
	cfg Config

	bucket     *TokenBucket
	queueSlots chan struct{} // nil when queuing is disabled
	window     *performanceWindow

	minRate float64
	maxRate float64

	lastAdjustedAt atomic.Int64 // Unix nanoseconds of the last rate adjustment

	admittedTotal atomic.Uint64
	queuedTotal   atomic.Uint64
	rejectedTotal atomic.Uint64

	metricsCollector MetricsCollector
	logger           log.FieldLogger
	now              func() time.Time
}

// Opts represents options for the Controller.
type Opts struct {
	// MetricsCollector is used to collect statistics about admission outcomes.
	// It can be nil, in this case, metrics will be disabled.
	MetricsCollector MetricsCollector

	// Logger is used to log refill rate adjustments.
	// It can be nil, in this case, logging will be disabled.
	Logger log.FieldLogger
}

// New creates a new Controller for a single protected resource.
func New(cfg *Config) (*Controller, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates a new Controller for a single protected resource with the provided options.
func NewWithOpts(cfg *Config, opts Opts) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate admission config: %w", err)
	}
	normCfg := cfg.normalized()

	bucket, err := NewTokenBucket(normCfg.Capacity, normCfg.RefillRate.PerSecond())
	if err != nil {
		return nil, fmt.Errorf("new token bucket: %w", err)
	}

	metricsCollector := opts.MetricsCollector
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	c := &Controller{
		cfg:              normCfg,
		bucket:           bucket,
		window:           newPerformanceWindow(normCfg.WindowSize),
		minRate:          normCfg.MinRate.PerSecond(),
		maxRate:          normCfg.MaxRate.PerSecond(),
		metricsCollector: metricsCollector,
		logger:           logger,
		now:              time.Now,
	}
	if normCfg.QueueSize > 0 {
		c.queueSlots = make(chan struct{}, normCfg.QueueSize)
	}
	c.metricsCollector.SetRefillRate(bucket.Rate())
	return c, nil
}

// Acquire admits the request immediately if a token is available, queues it
// for a bounded wait otherwise, and rejects it if a token is still unavailable
// after the retry attempt. A nil result means the request is admitted.
//
// A non-admitted request gets a RejectedError carrying a retry-after hint;
// check it with errors.Is against ErrRejected and ErrQueueFull. If the passed
// context is canceled while the request is queued, the context error is
// returned and the queue slot is released.
func (c *Controller) Acquire(ctx context.Context) error {
	ok, wait := c.bucket.TryConsume(1)
	if ok {
		c.admit()
		return nil
	}
	if c.queueSlots == nil {
		return c.reject(ErrRejected, wait)
	}
	return c.acquireQueued(ctx, wait)
}

func (c *Controller) acquireQueued(ctx context.Context, wait time.Duration) error {
	select {
	case c.queueSlots <- struct{}{}:
	default:
		return c.reject(ErrQueueFull, wait)
	}
	defer func() { <-c.queueSlots }()

	c.queuedTotal.Inc()
	c.metricsCollector.IncQueued()

	if wait > c.cfg.MaxRetryWait {
		wait = c.cfg.MaxRetryWait
	}
	waitTimer := time.NewTimer(wait)
	defer waitTimer.Stop()

	select {
	case <-waitTimer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	ok, retryAfter := c.bucket.TryConsume(1)
	if ok {
		c.admit()
		return nil
	}
	return c.reject(ErrRejected, retryAfter)
}

// Record feeds the outcome of a completed request back into the adaptive loop.
// It should be called after every request that was admitted by Acquire.
func (c *Controller) Record(latency time.Duration, success bool) {
	c.window.Add(latency, success)
	c.maybeAdjustRate()
}

// Do runs fn under admission control: it acquires a token (queuing if needed),
// invokes fn, and records its latency and outcome. If the request is not
// admitted, fn is not invoked and the admission error is returned.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	start := c.now()
	err := fn(ctx)
	c.Record(c.now().Sub(start), err == nil)
	return err
}

// Stats is a point-in-time snapshot of the Controller state.
type Stats struct {
	RefillRate float64
	Tokens     float64
	QueueLen   int
	Admitted   uint64
	Queued     uint64
	Rejected   uint64
	AvgLatency time.Duration
	ErrorRate  float64
	Samples    int
}

// Stats returns a snapshot of the controller state for observability export.
func (c *Controller) Stats() Stats {
	avgLatency, errorRate, samples := c.window.Stats()
	queueLen := 0
	if c.queueSlots != nil {
		queueLen = len(c.queueSlots)
	}
	return Stats{
		RefillRate: c.bucket.Rate(),
		Tokens:     c.bucket.Tokens(),
		QueueLen:   queueLen,
		Admitted:   c.admittedTotal.Load(),
		Queued:     c.queuedTotal.Load(),
		Rejected:   c.rejectedTotal.Load(),
		AvgLatency: avgLatency,
		ErrorRate:  errorRate,
		Samples:    samples,
	}
}

func (c *Controller) admit() {
	c.admittedTotal.Inc()
	c.metricsCollector.IncAdmitted()
}

func (c *Controller) reject(reason error, retryAfter time.Duration) error {
	c.rejectedTotal.Inc()
	c.metricsCollector.IncRejected(reason == ErrQueueFull)
	return &RejectedError{Reason: reason, RetryAfter: retryAfter}
}

// maybeAdjustRate applies at most one refill rate adjustment per AdjustInterval.
// The CAS on lastAdjustedAt guarantees a single application under concurrent callers.
func (c *Controller) maybeAdjustRate() {
	now := c.now().UnixNano()
	last := c.lastAdjustedAt.Load()
	if now-last < int64(c.cfg.AdjustInterval) {
		return
	}
	if c.window.Len() < c.cfg.MinSamples {
		return
	}
	if !c.lastAdjustedAt.CompareAndSwap(last, now) {
		return
	}

	avgLatency, errorRate, _ := c.window.Stats()
	c.metricsCollector.SetRollingLatency(avgLatency)

	rate := c.bucket.Rate()
	var newRate float64
	switch {
	case avgLatency > c.cfg.HighLatency || errorRate > c.cfg.MaxErrorRate:
		newRate = math.Max(c.minRate, rate*c.cfg.DecreaseFactor)
	case avgLatency < c.cfg.LowLatency && errorRate <= nearZeroErrorRate:
		newRate = math.Min(c.maxRate, rate*c.cfg.IncreaseFactor)
	default:
		return
	}
	if newRate == rate {
		return
	}

	c.bucket.SetRate(newRate)
	c.metricsCollector.SetRefillRate(newRate)
	c.logger.Info("admission refill rate adjusted",
		log.Float64("old_rate", rate),
		log.Float64("new_rate", newRate),
		log.Duration("avg_latency", avgLatency),
		log.Float64("error_rate", errorRate),
	)
}
