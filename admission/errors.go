/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"errors"
	"fmt"
	"time"
)

// ErrRejected is returned (wrapped in RejectedError) when a request could not be
// admitted within the bounded wait.
var ErrRejected = errors.New("request rejected by admission control")

// ErrQueueFull is returned (wrapped in RejectedError) when a request could not
// even be queued because the queue is at its capacity.
var ErrQueueFull = errors.New("admission queue is full")

// RejectedError is returned by Controller.Acquire when a request is not admitted.
// Use errors.Is with ErrRejected or ErrQueueFull to distinguish the reason.
type RejectedError struct {
	// Reason is either ErrRejected or ErrQueueFull.
	Reason error

	// RetryAfter is a hint for the caller when it makes sense to retry the request.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.Reason, e.RetryAfter)
}

// Unwrap supports errors.Is checks against ErrRejected and ErrQueueFull.
func (e *RejectedError) Unwrap() error {
	return e.Reason
}
