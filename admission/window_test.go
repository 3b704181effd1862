/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPerformanceWindowEmpty(t *testing.T) {
	w := newPerformanceWindow(10)
	avgLatency, errorRate, samples := w.Stats()
	require.Equal(t, time.Duration(0), avgLatency)
	require.Equal(t, 0.0, errorRate)
	require.Equal(t, 0, samples)
	require.Equal(t, 0, w.Len())
}

func TestPerformanceWindowStats(t *testing.T) {
	w := newPerformanceWindow(10)
	w.Add(time.Millisecond*100, true)
	w.Add(time.Millisecond*200, false)
	w.Add(time.Millisecond*300, true)
	w.Add(time.Millisecond*400, false)

	avgLatency, errorRate, samples := w.Stats()
	require.Equal(t, time.Millisecond*250, avgLatency)
	require.Equal(t, 0.5, errorRate)
	require.Equal(t, 4, samples)
	require.Equal(t, 4, w.Len())
}

func TestPerformanceWindowOverwritesOldest(t *testing.T) {
	w := newPerformanceWindow(3)
	w.Add(time.Second, false)
	w.Add(time.Millisecond*100, true)
	w.Add(time.Millisecond*100, true)

	// The next sample pushes out the slow failed one.
	w.Add(time.Millisecond*100, true)

	avgLatency, errorRate, samples := w.Stats()
	require.Equal(t, time.Millisecond*100, avgLatency)
	require.Equal(t, 0.0, errorRate)
	require.Equal(t, 3, samples)
}

func TestPerformanceWindowRunningSums(t *testing.T) {
	w := newPerformanceWindow(5)

	// Cycle through the buffer several times and check the sums stay consistent.
	for i := 0; i < 23; i++ {
		w.Add(time.Millisecond*time.Duration(10*(i%4+1)), i%2 == 0)
	}

	var wantSum time.Duration
	wantFailures := 0
	for i := 18; i < 23; i++ {
		wantSum += time.Millisecond * time.Duration(10*(i%4+1))
		if i%2 != 0 {
			wantFailures++
		}
	}
	avgLatency, errorRate, samples := w.Stats()
	require.Equal(t, 5, samples)
	require.Equal(t, wantSum/5, avgLatency)
	require.Equal(t, float64(wantFailures)/5, errorRate)
}
