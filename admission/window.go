/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"sync"
	"time"
)

type performanceSample struct {
	latency time.Duration
	success bool
}

// performanceWindow is a fixed-size ring buffer of recent request outcomes.
// Once the window is full, the oldest samples are silently discarded.
// Running sums are maintained so that the moving averages are O(1).
type performanceWindow struct {
	mu         sync.Mutex
	samples    []performanceSample
	next       int
	count      int
	latencySum time.Duration
	failures   int
}

func newPerformanceWindow(size int) *performanceWindow {
	return &performanceWindow{samples: make([]performanceSample, size)}
}

// Add appends an observed request outcome to the window.
func (w *performanceWindow) Add(latency time.Duration, success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == len(w.samples) {
		old := w.samples[w.next]
		w.latencySum -= old.latency
		if !old.success {
			w.failures--
		}
	} else {
		w.count++
	}
	w.samples[w.next] = performanceSample{latency: latency, success: success}
	w.next = (w.next + 1) % len(w.samples)
	w.latencySum += latency
	if !success {
		w.failures++
	}
}

// Len returns the number of samples currently in the window.
func (w *performanceWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Stats returns the moving average latency and error rate over the window.
func (w *performanceWindow) Stats() (avgLatency time.Duration, errorRate float64, samples int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0, 0, 0
	}
	return w.latencySum / time.Duration(w.count), float64(w.failures) / float64(w.count), w.count
}
