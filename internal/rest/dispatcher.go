package rest

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/core"
	"github.com/hookline/hookline/internal/metrics"
)

const (
	// DefaultBaseURL is the API root requests are resolved against.
	DefaultBaseURL = "https://discord.com/api/v10"
	// DefaultRequestTimeout bounds a single HTTP attempt.
	DefaultRequestTimeout = 15 * time.Second
	// DefaultLatencyThreshold is the clock drift that triggers a warning.
	DefaultLatencyThreshold = 30 * time.Second

	maxBadGatewayAttempts = 4
	rateLimitBodyPadding  = 250 * time.Millisecond
	reactionResetWindow   = 250 * time.Millisecond
	retryAfterWarnMs      = 1000 * 1000
	storeTimeout          = 2 * time.Second
)

// Version is reported in the default user agent.
var Version = "dev"

// DefaultUserAgent returns the user agent sent when none is configured.
func DefaultUserAgent() string {
	return fmt.Sprintf("DiscordBot (https://github.com/hookline/hookline, %s)", Version)
}

// BucketStore persists bucket windows across restarts. Implementations must
// be safe for concurrent use.
type BucketStore interface {
	GetBucket(ctx context.Context, route string) (*core.BucketState, error)
	UpdateBucket(ctx context.Context, route string, state *core.BucketState) error
}

// RawResponse describes one completed HTTP attempt.
type RawResponse struct {
	Method     string
	Path       string
	Route      string
	Auth       bool
	Priority   bool
	StatusCode int
	Latency    time.Duration
}

// Options configures a Dispatcher. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	UserAgent         string
	RequestTimeout    time.Duration
	RatelimiterOffset time.Duration
	LatencyThreshold  time.Duration

	HTTPClient *http.Client
	Logger     *logging.Logger
	Store      BucketStore

	// OnRawResponse is called synchronously after every attempt that
	// produced response headers.
	OnRawResponse func(RawResponse)

	// Clock, After and Jitter are test seams.
	Clock  func() time.Time
	After  func(time.Duration, func()) func() bool
	Jitter func() time.Duration
}

// File is one attachment of a multipart request.
type File struct {
	Name string
	Data []byte
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	// Body is JSON encoded. It is ignored for GET and DELETE unless Files
	// are present.
	Body  any
	Files []File
	// Token, when set, is sent as a bot authorization and makes the
	// request subject to the global rate limit.
	Token  string
	Reason string
}

// Response is a successful API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Value is the decoded body when the response was JSON.
	Value any
}

// Decode unmarshals the raw body into out. An empty body leaves out as is.
func (r *Response) Decode(out any) error {
	if r == nil || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Dispatcher sends requests through per-route buckets and the global
// throttle. It is safe for concurrent use.
type Dispatcher struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	offset    time.Duration

	client        *http.Client
	logger        *logging.Logger
	store         BucketStore
	onRawResponse func(RawResponse)
	clock         func() time.Time
	after         func(time.Duration, func()) func() bool
	jitter        func() time.Duration

	latency  *LatencyTracker
	throttle *GlobalThrottle

	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewDispatcher builds a dispatcher from opts.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		userAgent:     opts.UserAgent,
		timeout:       opts.RequestTimeout,
		offset:        opts.RatelimiterOffset,
		client:        opts.HTTPClient,
		logger:        opts.Logger,
		store:         opts.Store,
		onRawResponse: opts.OnRawResponse,
		clock:         opts.Clock,
		after:         opts.After,
		jitter:        opts.Jitter,
		buckets:       make(map[string]*Bucket),
	}
	if d.baseURL == "" {
		d.baseURL = DefaultBaseURL
	}
	if d.userAgent == "" {
		d.userAgent = DefaultUserAgent()
	}
	if d.timeout <= 0 {
		d.timeout = DefaultRequestTimeout
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.after == nil {
		d.after = func(dur time.Duration, f func()) func() bool {
			return time.AfterFunc(dur, f).Stop
		}
	}
	if d.jitter == nil {
		d.jitter = func() time.Duration {
			return 100*time.Millisecond + rand.N(1900*time.Millisecond)
		}
	}

	threshold := opts.LatencyThreshold
	if threshold <= 0 {
		threshold = DefaultLatencyThreshold
	}
	d.latency = NewLatencyTracker(threshold)
	d.throttle = &GlobalThrottle{after: d.after}
	return d
}

// Send queues req on its route bucket and waits for the final outcome.
// Rate limited responses are retried until they succeed; 502 responses are
// retried up to four attempts in total.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Path == "" || !strings.HasPrefix(req.Path, "/") {
		return nil, fmt.Errorf("request path must start with '/': %q", req.Path)
	}

	c := &call{
		d:      d,
		ctx:    ctx,
		req:    req,
		route:  Classify(req.Path, req.Method),
		origin: callSite(),
		done:   make(chan result, 1),
	}
	c.bucket = d.bucket(ctx, c.route)
	d.schedule(c, false)

	select {
	case r := <-c.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Buckets returns a snapshot of every known bucket sorted by route.
func (d *Dispatcher) Buckets() []BucketSnapshot {
	d.mu.Lock()
	out := make([]BucketSnapshot, 0, len(d.buckets))
	for _, b := range d.buckets {
		out = append(out, b.Snapshot())
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Latency returns the latency and clock offset estimates.
func (d *Dispatcher) Latency() LatencySnapshot {
	return d.latency.Snapshot()
}

// GlobalBlocked reports whether authenticated requests are being held.
func (d *Dispatcher) GlobalBlocked() bool {
	return d.throttle.Blocked()
}

func (d *Dispatcher) bucket(ctx context.Context, route string) *Bucket {
	d.mu.Lock()
	if b, ok := d.buckets[route]; ok {
		d.mu.Unlock()
		return b
	}
	d.mu.Unlock()

	var seed *core.BucketState
	if d.store != nil {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		state, err := d.store.GetBucket(loadCtx, route)
		cancel()
		if err != nil {
			d.warn("Failed to load bucket state", zap.String("route", route), zap.Error(err))
		}
		seed = state
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buckets[route]; ok {
		return b
	}
	b := NewBucket(route, 1, d.latency, d.offset)
	b.clock = d.clock
	b.after = d.after
	if seed != nil {
		b.seed(*seed)
	}
	d.buckets[route] = b
	return b
}

func (d *Dispatcher) schedule(c *call, priority bool) {
	enqueue := func() { c.bucket.Queue(c.attempt, priority) }
	if c.req.Token == "" {
		enqueue()
		return
	}
	if d.throttle.Defer(enqueue) {
		d.debug("Request deferred by global rate limit", zap.String("route", c.route))
	}
}

func (d *Dispatcher) persist(route string, b *Bucket, limited bool) {
	if d.store == nil {
		return
	}
	state := b.State()
	state.UpdatedAt = d.clock()
	if limited {
		at := state.UpdatedAt
		state.Last429At = &at
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := d.store.UpdateBucket(ctx, route, &state); err != nil {
		d.warn("Failed to persist bucket state", zap.String("route", route), zap.Error(err))
	}
}

func (d *Dispatcher) debug(msg string, fields ...zap.Field) {
	if d.logger != nil {
		d.logger.Debug(msg, fields...)
	}
}

func (d *Dispatcher) warn(msg string, fields ...zap.Field) {
	if d.logger != nil {
		d.logger.Warn(msg, fields...)
	}
}

type result struct {
	resp *Response
	err  error
}

// call is one Send in flight. It survives retries so the 502 attempt count
// carries across them.
type call struct {
	d      *Dispatcher
	ctx    context.Context
	req    Request
	route  string
	bucket *Bucket
	origin error

	priority    bool
	badGateways int

	finishOnce sync.Once
	done       chan result
}

func (c *call) finish(resp *Response, err error) {
	c.finishOnce.Do(func() {
		c.done <- result{resp: resp, err: err}
	})
}

func (c *call) retry(priority bool) {
	c.priority = priority
	c.d.schedule(c, priority)
}

func (c *call) attempt(release func()) {
	d := c.d
	if err := c.ctx.Err(); err != nil {
		release()
		c.finish(nil, err)
		return
	}

	body, contentType, err := c.encode()
	if err != nil {
		release()
		c.finish(nil, &EncodingError{Method: c.req.Method, Path: c.req.Path, Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, d.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, c.req.Method, d.baseURL+c.req.Path, body)
	if err != nil {
		release()
		c.finish(nil, &TransportError{Method: c.req.Method, Path: c.req.Path, Err: err})
		return
	}
	httpReq.Header.Set("User-Agent", d.userAgent)
	httpReq.Header.Set("Accept-Encoding", "gzip,deflate")
	httpReq.Header.Set("X-RateLimit-Precision", "millisecond")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.req.Reason != "" {
		httpReq.Header.Set("X-Audit-Log-Reason", c.req.Reason)
	}
	if c.req.Token != "" {
		httpReq.Header.Set("Authorization", "Bot "+c.req.Token)
	}

	started := d.clock()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		release()
		c.finish(nil, c.transportError(ctx, err))
		return
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	now := d.clock()
	elapsed := now.Sub(started)
	d.latency.Observe(elapsed)
	metrics.RecordDispatch(c.route, resp.StatusCode)
	metrics.RecordLatency(c.route, elapsed)
	if d.onRawResponse != nil {
		d.onRawResponse(RawResponse{
			Method:     c.req.Method,
			Path:       c.req.Path,
			Route:      c.route,
			Auth:       c.req.Token != "",
			Priority:   c.priority,
			StatusCode: resp.StatusCode,
			Latency:    elapsed,
		})
	}

	serverDate, _ := http.ParseTime(resp.Header.Get("Date"))
	if sampled, drift, offset := d.latency.SampleOffset(now, serverDate); sampled && drift {
		metrics.RecordClockDrift()
		d.warn("Clock drift detected against the API server",
			zap.Duration("offset", offset),
			zap.Duration("latency", d.latency.Latency()))
	}

	payload, err := readBody(resp)
	if err != nil {
		release()
		c.finish(nil, c.transportError(ctx, err))
		return
	}

	retryAfter, hasRetryAfter := c.applyHeaders(resp.Header, now, serverDate)
	d.persist(c.route, c.bucket, resp.StatusCode == http.StatusTooManyRequests)

	switch {
	case resp.StatusCode < 300:
		value, err := decodeJSON(resp.Header, payload)
		release()
		if err != nil {
			c.finish(nil, &EncodingError{Method: c.req.Method, Path: c.req.Path, Err: err})
			return
		}
		c.finish(&Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload, Value: value}, nil)

	case resp.StatusCode == http.StatusTooManyRequests:
		delay := retryAfter
		// Only bodies declared as JSON are parsed; edge ban pages are HTML.
		parsed, err := decodeJSON(resp.Header, payload)
		if err != nil {
			release()
			c.finish(nil, &EncodingError{Method: c.req.Method, Path: c.req.Path, Err: err})
			return
		}
		if obj, ok := parsed.(map[string]any); ok {
			if secs, ok := obj["retry_after"].(float64); ok && secs > 0 {
				// A global limit without a header delay blocks for the body's.
				if !hasRetryAfter && resp.Header.Get("X-RateLimit-Global") != "" {
					d.throttle.Block(time.Duration(secs*1000) * time.Millisecond)
					metrics.RecordGlobalBlock()
				}
				delay = time.Duration(secs*1000)*time.Millisecond + rateLimitBodyPadding
				hasRetryAfter = true
			}
		} else if !hasRetryAfter && len(payload) > 0 {
			// Undeclared bodies carry no delay; back off instead of spinning.
			delay = d.jitter()
			hasRetryAfter = true
		}
		d.debug("Rate limited, retrying",
			zap.String("route", c.route),
			zap.String("method", c.req.Method),
			zap.Duration("delay", delay))
		metrics.RecordRetry(c.route, "rate_limited")

		requeue := func() {
			c.retry(true)
			release()
		}
		if hasRetryAfter && delay > 0 {
			d.after(delay, requeue)
		} else {
			requeue()
		}

	case resp.StatusCode == http.StatusBadGateway && c.badGateways+1 < maxBadGatewayAttempts:
		c.badGateways++
		release()
		delay := d.jitter()
		d.debug("Bad gateway, retrying",
			zap.String("route", c.route),
			zap.Int("attempt", c.badGateways),
			zap.Duration("delay", delay))
		metrics.RecordRetry(c.route, "bad_gateway")
		d.after(delay, func() { c.retry(true) })

	default:
		value, err := decodeJSON(resp.Header, payload)
		release()
		if err != nil {
			c.finish(nil, &EncodingError{Method: c.req.Method, Path: c.req.Path, Err: err})
			return
		}
		c.finish(nil, newResponseError(&c.req, c.route, resp, payload, value, c.origin))
	}
}

// applyHeaders updates the bucket from the rate limit headers and engages
// the global throttle when asked to. It returns the retry-after delay.
func (c *call) applyHeaders(h http.Header, now, serverDate time.Time) (time.Duration, bool) {
	d := c.d
	b := c.bucket

	limitHeader := h.Get("X-RateLimit-Limit")
	remainingHeader := h.Get("X-RateLimit-Remaining")
	if limitHeader != "" {
		if n, err := strconv.Atoi(limitHeader); err == nil {
			b.SetLimit(n)
		}
	}
	if c.req.Method != http.MethodGet && (limitHeader == "" || remainingHeader == "") && b.Limit() != 1 {
		d.debug("Missing rate limit headers",
			zap.String("route", c.route),
			zap.String("method", c.req.Method),
			zap.Int("limit", b.Limit()))
	}

	remaining := 1
	if remainingHeader != "" {
		if n, err := strconv.ParseFloat(remainingHeader, 64); err == nil {
			remaining = int(n)
		} else {
			remaining = 0
		}
	}
	b.SetRemaining(remaining)

	retryAfter, hasRetryAfter := parseRetryAfter(h)
	if hasRetryAfter && excessiveRetryAfter(retryAfter) {
		d.warn("Unusually long retry-after",
			zap.String("route", c.route),
			zap.Duration("retry_after", retryAfter),
			zap.String("via", h.Get("Via")))
	}

	wait := retryAfter
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	switch {
	case hasRetryAfter && h.Get("X-RateLimit-Global") != "":
		d.throttle.Block(wait)
		metrics.RecordGlobalBlock()
		d.warn("Global rate limit engaged", zap.Duration("retry_after", wait))
	case hasRetryAfter:
		b.SetReset(now.Add(wait))
	case h.Get("X-RateLimit-Reset") != "":
		secs, err := strconv.ParseFloat(h.Get("X-RateLimit-Reset"), 64)
		if err != nil {
			b.SetReset(now)
			break
		}
		resetMs := int64(secs * 1000)
		if isReactionRoute(c.route) && !serverDate.IsZero() && resetMs-serverDate.UnixMilli() == 1000 {
			b.SetReset(now.Add(reactionResetWindow))
			break
		}
		reset := time.UnixMilli(resetMs - d.latency.Offset().Milliseconds())
		if reset.Before(now) {
			reset = now
		}
		b.SetReset(reset)
	default:
		b.SetReset(now)
	}

	return retryAfter, hasRetryAfter
}

func (c *call) encode() (io.Reader, string, error) {
	if len(c.req.Files) > 0 {
		form := NewMultipartData()
		for i, f := range c.req.Files {
			if f.Data == nil || strings.TrimSpace(f.Name) == "" {
				return nil, "", fmt.Errorf("invalid file object at index %d", i)
			}
			if _, err := form.Attach(fmt.Sprintf("files[%d]", i), f.Data, f.Name); err != nil {
				return nil, "", err
			}
		}
		if c.req.Body != nil {
			if _, err := form.Attach("payload_json", c.req.Body, ""); err != nil {
				return nil, "", err
			}
		}
		return bytes.NewReader(bytes.Join(form.Finish(), nil)), form.ContentType(), nil
	}

	if c.req.Body == nil || c.req.Method == http.MethodGet || c.req.Method == http.MethodDelete {
		return nil, "", nil
	}
	encoded, err := json.Marshal(c.req.Body)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(encoded), "application/json", nil
}

func (c *call) transportError(attemptCtx context.Context, err error) error {
	timeout := c.ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	return &TransportError{Method: c.req.Method, Path: c.req.Path, Timeout: timeout, Err: err}
}

// RetryAfterIsMillis reports whether the retry-after header is already in
// milliseconds. Responses routed through Google's front end carry a Via
// header and report milliseconds; the API itself reports seconds.
func RetryAfterIsMillis(h http.Header) bool {
	return strings.Contains(h.Get("Via"), "1.1 google")
}

// excessiveRetryAfter flags delays long enough to suggest a misread unit or
// an edge ban rather than a bucket window.
func excessiveRetryAfter(d time.Duration) bool {
	return d >= retryAfterWarnMs*time.Millisecond
}

func parseRetryAfter(h http.Header) (time.Duration, bool) {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	n := int64(v)
	if !RetryAfterIsMillis(h) {
		n *= 1000
	}
	return time.Duration(n) * time.Millisecond, true
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	switch {
	case strings.Contains(encoding, "gzip"):
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		defer gz.Close() // nolint:errcheck // best-effort cleanup
		r = gz
	case strings.Contains(encoding, "deflate"):
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		defer zr.Close() // nolint:errcheck // best-effort cleanup
		r = zr
	}
	return io.ReadAll(r)
}

func decodeJSON(h http.Header, body []byte) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
