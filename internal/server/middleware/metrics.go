package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/observability"
)

// HTTP surface metrics. Labels carry the route pattern, never the raw path.
const (
	HTTPRequestsTotal     = "http_requests_total"
	HTTPRequestDurationMs = "http_request_duration_ms"
	HTTPRequestSizeBytes  = "http_request_size_bytes"
	HTTPResponseSizeBytes = "http_response_size_bytes"
	HTTPErrorsTotal       = "http_errors_total"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getEndpointPattern extracts the chi route pattern so relay paths, which
// embed webhook tokens, never reach metric labels or logs.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/", path == "/v1/ratelimits":
		return path
	case strings.HasPrefix(path, "/v1/webhooks/"):
		return "/v1/webhooks/{id}/{token}"
	default:
		return "/unknown"
	}
}

// RequestMetrics records count, latency, sizes and errors for every request
// and logs one line per request. It is a pass-through when telemetry is off.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		recordRequest(r, rec, time.Since(start))
	})
}

func recordRequest(r *http.Request, rec *statusRecorder, duration time.Duration) {
	endpoint := getEndpointPattern(r)
	status := strconv.Itoa(rec.status)
	requestSize := r.ContentLength
	if requestSize < 0 {
		requestSize = 0
	}

	sys := observability.TelemetrySystem
	labels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}
	_ = sys.Counter(HTTPRequestsTotal, 1, labels)
	_ = sys.Histogram(HTTPRequestDurationMs, duration, labels)

	sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}
	_ = sys.Gauge(HTTPRequestSizeBytes, float64(requestSize), sizeLabels)
	_ = sys.Gauge(HTTPResponseSizeBytes, float64(rec.written), sizeLabels)

	if rec.status >= 400 {
		errorType := "client_error"
		if rec.status >= 500 {
			errorType = "server_error"
		}
		_ = sys.Counter(HTTPErrorsTotal, 1, map[string]string{
			"method":     r.Method,
			"endpoint":   endpoint,
			"status":     status,
			"error_type": errorType,
		})
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("endpoint", endpoint),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", rec.written),
			zap.String("request_id", GetRequestID(r.Context())),
		)
	}
}
