package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/webhook"
)

// MaxRelayBody caps the JSON body accepted by the relay endpoint.
const MaxRelayBody = 1 << 20

// RateLimitsResponse is the body of GET /v1/ratelimits.
type RateLimitsResponse struct {
	Buckets       []rest.BucketSnapshot `json:"buckets"`
	Latency       rest.LatencySnapshot  `json:"latency"`
	GlobalBlocked bool                  `json:"global_blocked"`
}

// RateLimitsHandler reports the live state of the shared dispatcher.
func RateLimitsHandler(d *rest.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buckets := d.Buckets()
		if buckets == nil {
			buckets = []rest.BucketSnapshot{}
		}
		writeJSON(w, http.StatusOK, RateLimitsResponse{
			Buckets:       buckets,
			Latency:       d.Latency(),
			GlobalBlocked: d.GlobalBlocked(),
		})
	}
}

// RelayHandler executes the webhook named in the path with the JSON body
// and answers with the created message.
func RelayHandler(d *rest.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		payload, err := webhook.DecodePayload(http.MaxBytesReader(w, r.Body, MaxRelayBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			message := "request body is not a valid webhook payload"
			if errors.As(err, &tooLarge) {
				message = "request body is too large"
			}
			relayFailure(w, r, start, apperrors.WrapInvalidInput(ctx, err, message))
			return
		}

		wh, err := webhook.New(webhook.Options{
			ID:         chi.URLParam(r, "id"),
			Token:      chi.URLParam(r, "token"),
			Dispatcher: d,
		})
		if err != nil {
			relayFailure(w, r, start, err)
			return
		}

		msg, err := wh.SendMessage(ctx, payload.Options())
		if err != nil {
			relayFailure(w, r, start, err)
			return
		}

		metrics.RecordRelay("ok", time.Since(start))
		writeJSON(w, http.StatusOK, msg)
	}
}
