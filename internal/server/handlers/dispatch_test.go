package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/webhook"
)

const (
	relayID    = "223344556677889900"
	relayToken = "relay-token"
)

func upstreamDispatcher(t *testing.T, handler http.HandlerFunc) *rest.Dispatcher {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	return rest.NewDispatcher(rest.Options{
		BaseURL:    upstream.URL,
		HTTPClient: upstream.Client(),
		Jitter:     func() time.Duration { return time.Millisecond },
	})
}

func relayRouter(d *rest.Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/webhooks/{id}/{token}", RelayHandler(d))
	r.Get("/v1/ratelimits", RateLimitsHandler(d))
	return r
}

func TestRelayHandlerExecutesWebhook(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody map[string]any
	d := upstreamDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "5")
		w.Header().Set("X-RateLimit-Remaining", "4")
		_, _ = io.WriteString(w, `{"id":"998877665544332211","channel_id":"1","content":"hello","author":{"id":"`+relayID+`","username":"relay","discriminator":"0000"}}`)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/"+relayID+"/"+relayToken, strings.NewReader(`{"content":"hello","username":"ci"}`))
	rec := httptest.NewRecorder()
	relayRouter(d).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/webhooks/"+relayID+"/"+relayToken, gotPath)
	require.Contains(t, gotQuery, "wait=true")
	require.Equal(t, "ci", gotBody["username"])

	var msg webhook.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	require.Equal(t, "998877665544332211", msg.ID)
	require.Equal(t, "hello", msg.Content)

	rec = httptest.NewRecorder()
	relayRouter(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ratelimits", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var limits RateLimitsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&limits))
	require.Len(t, limits.Buckets, 1)
	require.Equal(t, 5, limits.Buckets[0].Limit)
	require.Equal(t, 4, limits.Buckets[0].Remaining)
	require.False(t, limits.GlobalBlocked)
}

func TestRelayHandlerMapsUpstreamErrors(t *testing.T) {
	d := upstreamDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":10015,"message":"Unknown Webhook"}`)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/"+relayID+"/"+relayToken, strings.NewReader(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	relayRouter(d).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, apperrors.CodeNotFound, body.Error.Code)
	require.EqualValues(t, 10015, body.Error.Details["upstream_code"])
}

func TestRelayHandlerRejectsBadPayloads(t *testing.T) {
	var calls atomic.Int32
	d := upstreamDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	cases := map[string]string{
		"malformed json": `{"content":`,
		"unknown field":  `{"contnet":"x"}`,
		"empty message":  `{}`,
		"thread clash":   `{"content":"x","thread_id":"1","thread_name":"y"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/"+relayID+"/"+relayToken, strings.NewReader(body))
			rec := httptest.NewRecorder()
			relayRouter(d).ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, apperrors.CodeInvalidInput, resp.Error.Code)
		})
	}
	require.Zero(t, calls.Load())
}

func TestRateLimitsHandlerEmpty(t *testing.T) {
	d := rest.NewDispatcher(rest.Options{})

	rec := httptest.NewRecorder()
	RateLimitsHandler(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ratelimits", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"buckets":[]`)
}
