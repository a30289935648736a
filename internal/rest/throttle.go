package rest

import (
	"sync"
	"time"
)

// GlobalThrottle suspends authenticated dispatch across every bucket of a
// client. Work deferred while blocked is replayed once, in arrival order,
// when the throttle clears.
type GlobalThrottle struct {
	mu        sync.Mutex
	blocked   bool
	deferred  []func()
	stopTimer func() bool

	after func(time.Duration, func()) func() bool
}

// Blocked reports whether the throttle is engaged.
func (g *GlobalThrottle) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

// Defer runs fn immediately when the throttle is clear, or queues it for
// replay otherwise. It reports whether fn was deferred.
func (g *GlobalThrottle) Defer(fn func()) bool {
	g.mu.Lock()
	if g.blocked {
		g.deferred = append(g.deferred, fn)
		g.mu.Unlock()
		return true
	}
	g.mu.Unlock()

	fn()
	return false
}

// Block engages the throttle and arms a timer that clears it after d.
func (g *GlobalThrottle) Block(d time.Duration) {
	if d < time.Millisecond {
		d = time.Millisecond
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.blocked = true
	if g.stopTimer != nil {
		g.stopTimer()
	}
	g.stopTimer = g.schedule(d, g.Unblock)
}

// Unblock clears the throttle and replays deferred work in FIFO order.
func (g *GlobalThrottle) Unblock() {
	g.mu.Lock()
	g.blocked = false
	g.stopTimer = nil
	pending := g.deferred
	g.deferred = nil
	g.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Pending returns the number of deferred callbacks.
func (g *GlobalThrottle) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deferred)
}

func (g *GlobalThrottle) schedule(d time.Duration, f func()) func() bool {
	if g.after != nil {
		return g.after(d, f)
	}
	return time.AfterFunc(d, f).Stop
}
