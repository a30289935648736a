package rest

import (
	"sync"
	"time"
)

const (
	latencyWindow       = 10
	initialLatencyMs    = 500
	offsetCheckInterval = 5 * time.Second
	// The date header only has second precision; sampling assumes the
	// server stamped it mid-second.
	dateHeaderSkewMs = 500
)

// LatencyTracker keeps a moving estimate of request latency and of the clock
// offset against the remote server. Both averages are updated incrementally:
// the evicted sample's tenth is removed and the new sample's tenth added.
type LatencyTracker struct {
	mu sync.Mutex

	latency int64
	raw     []int64

	offset          int64
	offsets         []int64
	lastOffsetCheck time.Time

	threshold int64
}

// LatencySnapshot is a point-in-time copy of the tracker state.
type LatencySnapshot struct {
	Latency         time.Duration `json:"latency"`
	Offset          time.Duration `json:"offset"`
	LastOffsetCheck time.Time     `json:"last_offset_check"`
}

// NewLatencyTracker returns a tracker seeded the way the remote client
// conventionally starts: 500ms latency, zero offset.
func NewLatencyTracker(threshold time.Duration) *LatencyTracker {
	raw := make([]int64, latencyWindow)
	for i := range raw {
		raw[i] = initialLatencyMs
	}
	return &LatencyTracker{
		latency:   initialLatencyMs,
		raw:       raw,
		offsets:   make([]int64, latencyWindow),
		threshold: threshold.Milliseconds(),
	}
}

// Observe folds a round-trip sample into the moving average.
func (l *LatencyTracker) Observe(sample time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	ms := sample.Milliseconds()
	l.latency, l.raw = rollAverage(l.latency, l.raw, ms)
	return time.Duration(l.latency) * time.Millisecond
}

// SampleOffset estimates the clock offset from a response date header. It
// only samples once every five seconds; sampled reports whether this call
// took a sample. drift is set when both the historical and the fresh offset
// exceed the tracked latency by at least the configured threshold.
func (l *LatencyTracker) SampleOffset(now, serverDate time.Time) (sampled bool, drift bool, offset time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if serverDate.IsZero() || !l.lastOffsetCheck.Before(now.Add(-offsetCheckInterval)) {
		return false, false, time.Duration(l.offset) * time.Millisecond
	}

	l.lastOffsetCheck = now
	sample := serverDate.UnixMilli() + dateHeaderSkewMs - now.UnixMilli()

	if l.threshold > 0 && l.offset-l.latency >= l.threshold && sample-l.latency >= l.threshold {
		drift = true
	}
	// Reported before folding in the sample, matching the warning's wording.
	reported := time.Duration(l.offset) * time.Millisecond

	l.offset, l.offsets = rollAverage(l.offset, l.offsets, sample)
	return true, drift, reported
}

// Latency returns the smoothed round-trip latency.
func (l *LatencyTracker) Latency() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.latency) * time.Millisecond
}

// Offset returns the smoothed clock offset; positive means the remote clock
// runs ahead of ours.
func (l *LatencyTracker) Offset() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.offset) * time.Millisecond
}

// Snapshot copies the current estimates.
func (l *LatencyTracker) Snapshot() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LatencySnapshot{
		Latency:         time.Duration(l.latency) * time.Millisecond,
		Offset:          time.Duration(l.offset) * time.Millisecond,
		LastOffsetCheck: l.lastOffsetCheck,
	}
}

func rollAverage(avg int64, window []int64, sample int64) (int64, []int64) {
	evicted := window[0]
	copy(window, window[1:])
	window[len(window)-1] = sample
	return avg - evicted/10 + sample/10, window
}
