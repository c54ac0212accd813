package httpclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ms(values ...int) []time.Duration {
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func TestLatencyTracker_Record(t *testing.T) {
	tests := []struct {
		name       string
		windowSize int
		minSamples int
		samples    []time.Duration
		wantCount  int
	}{
		{
			name:       "given a few samples, then all are counted",
			windowSize: 100,
			minSamples: 10,
			samples:    ms(10, 20, 30),
			wantCount:  3,
		},
		{
			name:       "given more samples than the window, then the count is capped",
			windowSize: 3,
			minSamples: 1,
			samples:    ms(10, 20, 30, 40, 50),
			wantCount:  3,
		},
		{
			name:      "given non-positive sizes, then the window defaults to 100",
			samples:   make([]time.Duration, 150),
			wantCount: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewLatencyTracker(tt.windowSize, tt.minSamples)

			for _, d := range tt.samples {
				tracker.Record("ListProducts", d)
			}

			assert.Equal(t, tt.wantCount, tracker.Count("ListProducts"))
		})
	}
}

func TestLatencyTracker_Percentile(t *testing.T) {
	tests := []struct {
		name       string
		windowSize int
		minSamples int
		samples    []time.Duration
		operation  string
		p          float64
		want       time.Duration
		wantOK     bool
	}{
		{
			name:       "given too few samples, then not ok",
			windowSize: 100,
			minSamples: 10,
			samples:    ms(10, 20),
			operation:  "ListProducts",
			p:          0.95,
		},
		{
			name:       "given an unknown operation, then not ok",
			windowSize: 100,
			minSamples: 1,
			samples:    ms(10),
			operation:  "GetInvoice",
			p:          0.95,
		},
		{
			name:       "given P50, then the median",
			windowSize: 100,
			minSamples: 3,
			samples:    ms(50, 10, 40, 20, 30),
			operation:  "ListProducts",
			p:          0.5,
			want:       30 * time.Millisecond,
			wantOK:     true,
		},
		{
			name:       "given P90 of ten samples, then the ninth",
			windowSize: 100,
			minSamples: 5,
			samples:    ms(10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
			operation:  "ListProducts",
			p:          0.9,
			want:       90 * time.Millisecond,
			wantOK:     true,
		},
		{
			name:       "given p above one, then the maximum",
			windowSize: 100,
			minSamples: 1,
			samples:    ms(10, 20, 30),
			operation:  "ListProducts",
			p:          2,
			want:       30 * time.Millisecond,
			wantOK:     true,
		},
		{
			name:       "given a full window, then the oldest samples are dropped",
			windowSize: 3,
			minSamples: 1,
			samples:    ms(500, 600, 10, 20, 30),
			operation:  "ListProducts",
			p:          1,
			want:       30 * time.Millisecond,
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewLatencyTracker(tt.windowSize, tt.minSamples)
			for _, d := range tt.samples {
				tracker.Record("ListProducts", d)
			}

			got, ok := tracker.Percentile(tt.operation, tt.p)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLatencyTracker_PerOperation(t *testing.T) {
	tracker := NewLatencyTracker(100, 2)
	for _, d := range ms(10, 20, 30) {
		tracker.Record("ListProducts", d)
	}
	for _, d := range ms(100, 200, 300) {
		tracker.Record("GetInvoice", d)
	}

	products, ok := tracker.Percentile("ListProducts", 0.5)
	assert.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, products)

	invoices, ok := tracker.Percentile("GetInvoice", 0.5)
	assert.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, invoices)

	tracker.Reset()
	assert.Zero(t, tracker.Count("ListProducts"))
	assert.Zero(t, tracker.Count("GetInvoice"))
}

func TestLatencyTracker_Concurrent(t *testing.T) {
	tracker := NewLatencyTracker(50, 1)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				tracker.Record("ListProducts", time.Duration(i*j)*time.Microsecond)
				tracker.Percentile("ListProducts", 0.95)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tracker.Count("ListProducts"))
}
