package metrics

import (
	"regexp"
	"strconv"
	"time"

	"github.com/hookline/hookline/internal/observability"
)

// Dispatch metrics
const (
	DispatchRequestsTotal     = "dispatch_requests_total"
	DispatchRetriesTotal      = "dispatch_retries_total"
	DispatchGlobalBlocksTotal = "dispatch_global_blocks_total"
	DispatchLatencyMs         = "dispatch_latency_ms"
	DispatchClockDriftTotal   = "dispatch_clock_drift_total"
)

var snowflakeSegment = regexp.MustCompile(`/[0-9]{17,20}(/|$)`)

// RouteLabel collapses the channel, guild and webhook IDs a bucket route
// keeps, so metric series stay bounded by endpoint shape.
func RouteLabel(route string) string {
	for {
		next := snowflakeSegment.ReplaceAllString(route, "/:id$1")
		if next == route {
			return next
		}
		route = next
	}
}

// RecordDispatch counts one completed HTTP attempt for a route.
func RecordDispatch(route string, statusCode int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchRequestsTotal,
			1,
			map[string]string{
				"route":  RouteLabel(route),
				"status": strconv.Itoa(statusCode),
			},
		)
	}
}

// RecordRetry counts a retry scheduled for a route. reason is "rate_limited"
// or "bad_gateway".
func RecordRetry(route string, reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DispatchRetriesTotal,
			1,
			map[string]string{
				"route":  RouteLabel(route),
				"reason": reason,
			},
		)
	}
}

// RecordGlobalBlock counts a global rate limit engagement.
func RecordGlobalBlock() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DispatchGlobalBlocksTotal, 1, nil)
	}
}

// RecordLatency records the round trip of one attempt.
func RecordLatency(route string, d time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			DispatchLatencyMs,
			d,
			map[string]string{"route": RouteLabel(route)},
		)
	}
}

// RecordClockDrift counts clock drift warnings.
func RecordClockDrift() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DispatchClockDriftTotal, 1, nil)
	}
}
