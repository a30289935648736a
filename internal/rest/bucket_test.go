package rest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/core"
)

// manualTimers collects scheduled callbacks so tests decide when they fire.
type manualTimers struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (m *manualTimers) after(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.pending = append(m.pending, f)
	return func() bool { return true }
}

func (m *manualTimers) fire() int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range pending {
		f()
	}
	return len(pending)
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func TestBucketRunsOneTaskAtATime(t *testing.T) {
	bucket := NewBucket("/channels/1/messages", 5, nil, 0)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		order    []int
		wg       sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		bucket.Queue(func(release func()) {
			defer wg.Done()
			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			order = append(order, i)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			release()
		}, false)
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBucketPriorityJumpsPendingWork(t *testing.T) {
	bucket := NewBucket("/route", 10, nil, 0)

	gate := make(chan struct{})
	done := make(chan string, 3)
	bucket.Queue(func(release func()) {
		<-gate
		done <- "first"
		release()
	}, false)
	bucket.Queue(func(release func()) {
		done <- "later"
		release()
	}, false)
	bucket.Queue(func(release func()) {
		done <- "retry"
		release()
	}, true)
	close(gate)

	require.Equal(t, "first", <-done)
	require.Equal(t, "retry", <-done)
	require.Equal(t, "later", <-done)
}

func TestBucketWaitsOutExhaustedWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	timers := &manualTimers{}
	bucket := NewBucket("/route", 1, nil, 0)
	bucket.clock = func() time.Time { return now }
	bucket.after = timers.after

	bucket.SetRemaining(0)
	bucket.SetReset(now.Add(750 * time.Millisecond))

	ran := make(chan struct{})
	bucket.Queue(func(release func()) {
		close(ran)
		release()
	}, false)

	require.Equal(t, 1, timers.count())
	require.Equal(t, 751*time.Millisecond, timers.delays[0])
	require.True(t, bucket.Snapshot().Processing)

	now = now.Add(751 * time.Millisecond)
	timers.fire()
	<-ran
}

func TestBucketReleaseIsIdempotent(t *testing.T) {
	bucket := NewBucket("/route", 10, nil, 0)
	first := make(chan func())
	bucket.Queue(func(release func()) { first <- release }, false)
	release := <-first

	second := make(chan struct{})
	third := make(chan struct{})
	bucket.Queue(func(release func()) { close(second) }, false)
	bucket.Queue(func(release func()) { close(third); release() }, false)

	release()
	release()
	<-second

	select {
	case <-third:
		t.Fatal("double release started a second task")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBucketSeedRestoresOpenWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewBucket("/route", 1, nil, 0)
	bucket.clock = func() time.Time { return now }

	bucket.seed(core.BucketState{Limit: 5, Remaining: 2, ResetAt: now.Add(time.Second)})
	snap := bucket.Snapshot()
	require.Equal(t, 5, snap.Limit)
	require.Equal(t, 2, snap.Remaining)

	stale := NewBucket("/route", 1, nil, 0)
	stale.clock = func() time.Time { return now }
	stale.seed(core.BucketState{Limit: 5, Remaining: 0, ResetAt: now.Add(-time.Second)})
	require.Equal(t, 5, stale.Snapshot().Limit)
	require.Equal(t, 1, stale.Snapshot().Remaining)
}
