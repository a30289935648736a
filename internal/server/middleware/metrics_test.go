package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline/hookline/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestMetricsEmitsPerRequest(t *testing.T) {
	collector := setupTelemetry(t)

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"buckets":[]}`))
	}))

	rec := serve(handler, http.MethodPost, "/v1/ratelimits", `{"content":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"buckets":[]}`, rec.Body.String())

	for _, name := range []string{HTTPRequestsTotal, HTTPRequestDurationMs, HTTPRequestSizeBytes, HTTPResponseSizeBytes} {
		assert.Greater(t, collector.CountMetricsByName(name), 0, name)
	}
	assert.Zero(t, collector.CountMetricsByName(HTTPErrorsTotal))
}

func TestRequestMetricsCountsErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		collector := setupTelemetry(t)
		handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		rec := serve(handler, http.MethodPost, "/v1/webhooks/1/tok", "")
		require.Equal(t, status, rec.Code)
		assert.EqualValues(t, 1, collector.CountMetricsByName(HTTPErrorsTotal))
	}
}

func TestRequestMetricsPassThroughWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	handler := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	assert.Equal(t, http.StatusAccepted, serve(handler, http.MethodGet, "/health", "").Code)
}

func TestRequestMetricsKeepsRequestID(t *testing.T) {
	collector := setupTelemetry(t)

	handler := RequestID(RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set(RequestIDHeader, "relay-req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "relay-req-1", rec.Header().Get(RequestIDHeader))
	assert.EqualValues(t, 1, collector.CountMetricsByName(HTTPRequestsTotal))
}

func TestStatusRecorderUnwraps(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}
	require.NoError(t, http.NewResponseController(rec).Flush())
	assert.True(t, inner.Flushed)
}

func TestGetEndpointPatternFallbacks(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/live", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/v1/ratelimits", "/v1/ratelimits"},
		{"/v1/webhooks/223344556677889900/secret-token", "/v1/webhooks/{id}/{token}"},
		{"/api/users/123", "/unknown"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, getEndpointPattern(httptest.NewRequest(http.MethodGet, tt.path, nil)))
		})
	}
}

func TestGetEndpointPatternPrefersChiRoute(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.Post("/v1/webhooks/{id}/{token}", func(w http.ResponseWriter, req *http.Request) {
		seen = getEndpointPattern(req)
	})

	serve(r, http.MethodPost, "/v1/webhooks/223344556677889900/very-secret", "")
	assert.Equal(t, "/v1/webhooks/{id}/{token}", seen)
	assert.NotContains(t, seen, "very-secret")
}
