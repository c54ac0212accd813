package httpclient

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of latencies per operation and
// estimates percentiles from it. It is safe for concurrent use.
type LatencyTracker struct {
	mu         sync.RWMutex
	windows    map[string]*latencyWindow
	windowSize int
	minSamples int
}

// latencyWindow is a ring buffer of samples.
type latencyWindow struct {
	samples []time.Duration
	head    int
	count   int
}

// NewLatencyTracker keeps windowSize samples per operation and reports
// percentiles once minSamples were recorded. Non-positive values default
// to 100 and 10.
func NewLatencyTracker(windowSize, minSamples int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	return &LatencyTracker{
		windows:    make(map[string]*latencyWindow),
		windowSize: windowSize,
		minSamples: minSamples,
	}
}

// Record adds a sample for operation.
func (t *LatencyTracker) Record(operation string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[operation]
	if !ok {
		w = &latencyWindow{samples: make([]time.Duration, t.windowSize)}
		t.windows[operation] = w
	}
	w.samples[w.head] = latency
	w.head = (w.head + 1) % t.windowSize
	if w.count < t.windowSize {
		w.count++
	}
}

// Percentile returns the p-th percentile latency of operation, p between
// 0 and 1. ok is false until enough samples exist.
func (t *LatencyTracker) Percentile(operation string, p float64) (time.Duration, bool) {
	t.mu.RLock()
	w, ok := t.windows[operation]
	if !ok || w.count < t.minSamples {
		t.mu.RUnlock()
		return 0, false
	}
	samples := slices.Clone(w.samples[:w.count])
	t.mu.RUnlock()

	slices.Sort(samples)
	idx := int(float64(len(samples)-1) * min(max(p, 0), 1))
	return samples[idx], true
}

// Count returns the number of samples held for operation.
func (t *LatencyTracker) Count(operation string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if w, ok := t.windows[operation]; ok {
		return w.count
	}
	return 0
}

// Reset drops every sample.
func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.windows)
}
