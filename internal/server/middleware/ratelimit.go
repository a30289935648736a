package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client key and forgets keys that
// have been idle for longer than IdleTTL.
type ClientLimiter struct {
	mu      sync.Mutex
	entries map[string]*clientEntry
	limit   rate.Limit
	burst   int

	IdleTTL time.Duration
	now     func() time.Time
}

type clientEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows rps sustained requests per client with the given
// burst. A non-positive rps disables limiting.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &ClientLimiter{
		entries: make(map[string]*clientEntry),
		limit:   limit,
		burst:   burst,
		IdleTTL: 15 * time.Minute,
		now:     time.Now,
	}
}

// Reserve takes a token for key. It returns zero when the request may
// proceed, or how long the client must wait otherwise. A refused
// reservation is returned to the bucket.
func (l *ClientLimiter) Reserve(key string) time.Duration {
	now := l.now()
	lim := l.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

func (l *ClientLimiter) limiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.entries[key] = &clientEntry{lim: lim, lastSeen: now}
	return lim
}

// Len reports how many clients are tracked.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup drops clients idle for longer than IdleTTL.
func (l *ClientLimiter) Cleanup() {
	cutoff := l.now().Add(-l.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *ClientLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Throttle refuses requests from clients over their budget. reject writes
// the refusal; Retry-After (whole seconds, rounded up) is set before it
// runs.
func Throttle(l *ClientLimiter, reject func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			delay := l.Reserve(clientKey(r))
			if delay <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			seconds := int(math.Ceil(delay.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			reject(w, r)
		})
	}
}

// clientKey is the remote IP; chi's RealIP middleware has already applied
// forwarding headers by the time this runs.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
