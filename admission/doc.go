/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package admission provides admission control for request-processing pipelines:
// deciding whether an incoming request may proceed immediately, must wait,
// or must be rejected, based on available capacity.
//
// The central type is Controller, which combines a token-bucket rate limiter,
// a bounded queue for requests that cannot be admitted immediately, and
// a feedback loop that adjusts the token refill rate based on the observed
// latency and error rate of completed requests. The adjustment policy is
// a simple hysteresis controller: the rate is decreased multiplicatively when
// latency or error rate is high, increased when both are low, and kept within
// the configured [MinRate, MaxRate] bounds at all times.
//
// Rejection is an expected, routine outcome under load, so it is reported
// as an ordinary error value carrying a retry-after hint (see RejectedError),
// not as a panic or a fault.
//
// For resources that need a fixed (non-adaptive) limit, the package also
// provides the Limiter interface with leaky bucket (GCRA) and sliding window
// implementations, and ControllerPool for managing independent per-key
// controllers.
package admission
