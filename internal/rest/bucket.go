package rest

import (
	"sync"
	"time"

	"github.com/hookline/hookline/internal/core"
)

// Task is one unit of bucket work. It must call release exactly once when it
// no longer needs the bucket; extra calls are ignored.
type Task func(release func())

// Bucket serializes the tasks that share one route key. At most one task is
// in flight at a time; the bucket waits out an exhausted window before
// starting the next one.
type Bucket struct {
	route string

	mu         sync.Mutex
	limit      int
	remaining  int
	reset      time.Time
	queue      []Task
	processing bool
	stopTimer  func() bool

	latency *LatencyTracker
	slack   time.Duration
	clock   func() time.Time
	after   func(time.Duration, func()) func() bool
}

// BucketSnapshot is a point-in-time copy of a bucket's state.
type BucketSnapshot struct {
	Route      string    `json:"route"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	Reset      time.Time `json:"reset"`
	Queued     int       `json:"queued"`
	Processing bool      `json:"processing"`
}

// NewBucket creates a bucket that starts with the given limit. latency and
// slack widen the window boundary to absorb network delay.
func NewBucket(route string, limit int, latency *LatencyTracker, slack time.Duration) *Bucket {
	if limit <= 0 {
		limit = 1
	}
	return &Bucket{
		route:     route,
		limit:     limit,
		remaining: limit,
		latency:   latency,
		slack:     slack,
	}
}

// Route returns the bucket key.
func (b *Bucket) Route() string {
	return b.route
}

// Queue adds a task. Priority tasks jump ahead of everything still pending,
// but never ahead of the task already in flight.
func (b *Bucket) Queue(task Task, priority bool) {
	b.mu.Lock()
	if priority {
		b.queue = append([]Task{task}, b.queue...)
	} else {
		b.queue = append(b.queue, task)
	}
	b.mu.Unlock()

	b.check(false)
}

func (b *Bucket) check(override bool) {
	b.mu.Lock()

	if len(b.queue) == 0 {
		if b.stopTimer != nil {
			b.stopTimer()
			b.stopTimer = nil
		}
		b.processing = false
		b.mu.Unlock()
		return
	}
	if b.processing && !override {
		b.mu.Unlock()
		return
	}

	now := b.now()
	slack := b.windowSlack()
	if b.reset.IsZero() || b.reset.Before(now.Add(-slack)) {
		b.reset = now.Add(-slack)
		b.remaining = b.limit
	}

	if b.remaining <= 0 {
		b.processing = true
		wait := b.reset.Sub(now) + slack + time.Millisecond
		if wait < 0 {
			wait = 0
		}
		b.stopTimer = b.schedule(wait, func() { b.check(true) })
		b.mu.Unlock()
		return
	}

	b.remaining--
	b.processing = true
	b.stopTimer = nil
	next := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	b.mu.Unlock()

	var once sync.Once
	go next(func() { once.Do(b.release) })
}

func (b *Bucket) release() {
	b.mu.Lock()
	if len(b.queue) > 0 {
		b.mu.Unlock()
		b.check(true)
		return
	}
	b.processing = false
	b.mu.Unlock()
}

// SetLimit records the window size reported by the remote side.
func (b *Bucket) SetLimit(limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = limit
}

// SetRemaining records how many requests are left in the current window.
func (b *Bucket) SetRemaining(remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = remaining
}

// SetReset records when the current window ends.
func (b *Bucket) SetReset(reset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset = reset
}

// Limit returns the last known window size.
func (b *Bucket) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// Snapshot copies the bucket state.
func (b *Bucket) Snapshot() BucketSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketSnapshot{
		Route:      b.route,
		Limit:      b.limit,
		Remaining:  b.remaining,
		Reset:      b.reset,
		Queued:     len(b.queue),
		Processing: b.processing,
	}
}

// State returns the persistable part of the bucket.
func (b *Bucket) State() core.BucketState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.BucketState{
		Limit:     b.limit,
		Remaining: b.remaining,
		ResetAt:   b.reset,
	}
}

// seed restores a previously persisted window when it is still open.
func (b *Bucket) seed(state core.BucketState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state.Limit > 0 {
		b.limit = state.Limit
	}
	if state.ResetAt.After(b.now()) {
		b.remaining = state.Remaining
		b.reset = state.ResetAt
	}
}

func (b *Bucket) windowSlack() time.Duration {
	slack := b.slack
	if b.latency != nil {
		slack += b.latency.Latency()
	}
	return slack
}

func (b *Bucket) now() time.Time {
	if b.clock != nil {
		return b.clock()
	}
	return time.Now()
}

func (b *Bucket) schedule(d time.Duration, f func()) func() bool {
	if b.after != nil {
		return b.after(d, f)
	}
	return time.AfterFunc(d, f).Stop
}
