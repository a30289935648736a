package rest

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedNow sits on a whole second so it survives the Date header round trip.
var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func withFixedClock(o *Options) {
	o.Clock = func() time.Time { return fixedNow }
}

func resetHeader(t time.Time) string {
	return fmt.Sprintf("%.3f", float64(t.UnixMilli())/1000)
}

func TestDispatcherDecompressesDeflate(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"content":"deflated"}`))
		_ = zw.Close()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(buf.Bytes())
	})

	resp, err := d.Send(context.Background(), Request{Method: http.MethodGet, Path: "/widgets"})
	require.NoError(t, err)
	require.Equal(t, "deflated", resp.Value.(map[string]any)["content"])
}

func TestDispatcherReactionResetWindow(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", fixedNow.Format(http.TimeFormat))
		w.Header().Set("X-RateLimit-Limit", "1")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", resetHeader(fixedNow.Add(time.Second)))
		w.WriteHeader(http.StatusNoContent)
	}, withFixedClock)

	path := "/channels/223344556677889900/messages/334455667788990011/reactions/%F0%9F%91%8D/@me"
	_, err := d.Send(context.Background(), Request{Method: http.MethodPut, Path: path})
	require.NoError(t, err)

	buckets := d.Buckets()
	require.Len(t, buckets, 1)
	require.Contains(t, buckets[0].Route, "/reactions/:id")
	require.WithinDuration(t, fixedNow.Add(reactionResetWindow), buckets[0].Reset, 0)
}

func TestDispatcherResetCorrectsForClockOffset(t *testing.T) {
	// The server clock runs 10s ahead. The first sample moves the averaged
	// offset by a tenth of 10.5s (the date header is assumed mid-second).
	serverNow := fixedNow.Add(10 * time.Second)
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", serverNow.Format(http.TimeFormat))
		w.Header().Set("X-RateLimit-Limit", "5")
		w.Header().Set("X-RateLimit-Remaining", "3")
		w.Header().Set("X-RateLimit-Reset", resetHeader(serverNow.Add(20*time.Second)))
		w.WriteHeader(http.StatusNoContent)
	}, withFixedClock)

	_, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets"})
	require.NoError(t, err)

	require.Equal(t, 1050*time.Millisecond, d.Latency().Offset)
	buckets := d.Buckets()
	require.Len(t, buckets, 1)
	require.WithinDuration(t, serverNow.Add(20*time.Second-1050*time.Millisecond), buckets[0].Reset, 0)
}

func TestDispatcherClampsPastReset(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5")
		w.Header().Set("X-RateLimit-Remaining", "4")
		w.Header().Set("X-RateLimit-Reset", resetHeader(fixedNow.Add(-30*time.Second)))
		w.WriteHeader(http.StatusNoContent)
	}, withFixedClock)

	_, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets"})
	require.NoError(t, err)
	require.WithinDuration(t, fixedNow, d.Buckets()[0].Reset, 0)
}

func TestDispatcherUnparsableRemainingIsZero(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5")
		w.Header().Set("X-RateLimit-Remaining", "lots")
		w.WriteHeader(http.StatusNoContent)
	}, withFixedClock)

	_, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets"})
	require.NoError(t, err)

	buckets := d.Buckets()
	require.Len(t, buckets, 1)
	require.Equal(t, 5, buckets[0].Limit)
	require.Equal(t, 0, buckets[0].Remaining)
}

type pendingTimer struct {
	delay time.Duration
	fire  func()
}

func TestDispatcherGlobalLimitFromBodyOnly(t *testing.T) {
	var attempts atomic.Int32
	timers := make(chan pendingTimer, 4)

	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Global", "true")
			writeJSON(w, http.StatusTooManyRequests, `{"message":"global","retry_after":0.2,"global":true}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"ok":true}`)
	}, func(o *Options) {
		o.After = func(delay time.Duration, f func()) func() bool {
			timers <- pendingTimer{delay: delay, fire: f}
			return func() bool { return false }
		}
	})

	errc := make(chan error, 1)
	go func() {
		_, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets", Token: "bot-token"})
		errc <- err
	}()

	block := <-timers
	require.Equal(t, 200*time.Millisecond, block.delay)
	requeue := <-timers
	require.Equal(t, 200*time.Millisecond+rateLimitBodyPadding, requeue.delay)
	require.True(t, d.GlobalBlocked())

	block.fire()
	require.False(t, d.GlobalBlocked())
	requeue.fire()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not complete after the global block cleared")
	}
	require.EqualValues(t, 2, attempts.Load())
}

func TestDispatcherRetriesNonJSONRateLimit(t *testing.T) {
	var (
		attempts atomic.Int32
		mu       sync.Mutex
		delays   []time.Duration
	)
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("<html><body>temporarily banned</body></html>"))
			return
		}
		writeJSON(w, http.StatusOK, `{"ok":true}`)
	}, func(o *Options) {
		o.After = func(delay time.Duration, f func()) func() bool {
			mu.Lock()
			delays = append(delays, delay)
			mu.Unlock()
			return time.AfterFunc(time.Millisecond, f).Stop
		}
	})

	resp, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, attempts.Load())

	mu.Lock()
	defer mu.Unlock()
	// The test jitter is 1ms.
	require.Equal(t, []time.Duration{time.Millisecond}, delays)
}

func TestDispatcherMalformedJSONRateLimitIsEncodingError(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, `{"retry_after":`)
	})

	_, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets"})
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestDispatcherLongRetryAfterStillRetries(t *testing.T) {
	require.False(t, excessiveRetryAfter(999*time.Second))
	require.True(t, excessiveRetryAfter(1000*time.Second))

	var (
		attempts atomic.Int32
		mu       sync.Mutex
		delays   []time.Duration
	)
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "1000")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}, func(o *Options) {
		o.After = func(delay time.Duration, f func()) func() bool {
			mu.Lock()
			delays = append(delays, delay)
			mu.Unlock()
			return time.AfterFunc(time.Millisecond, f).Stop
		}
	})

	_, err := d.Send(context.Background(), Request{Method: http.MethodPost, Path: "/widgets"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []time.Duration{1000 * time.Second}, delays)
}
