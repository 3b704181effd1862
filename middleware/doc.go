/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware provides HTTP middleware that wires admission control
// and response caching into a request-handling chain.
//
// Admission rejects requests in a typical go-appkit way: a JSON error response
// with a Retry-After header, logged via the request-scoped logger. Latency and
// outcome of the downstream handler are reported back to the controller's
// adaptive loop automatically.
//
// ResponseCaching implements the cache-aside pattern for idempotent GET
// requests: a hit is served directly from the cache, a miss is passed
// downstream and the successful JSON response is stored for subsequent calls.
package middleware
