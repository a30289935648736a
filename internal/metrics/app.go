package metrics

import (
	"time"

	"github.com/hookline/hookline/internal/observability"
)

// Serve-surface metrics.
const (
	RelayRequestsTotal  = "relay_requests_total"
	RelayThrottledTotal = "relay_throttled_total"
	RelayDurationMs     = "relay_duration_ms"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordRelay records one relayed webhook execution. outcome is "ok" or the
// envelope code of the failure.
func RecordRelay(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RelayRequestsTotal, 1, map[string]string{
		"outcome": outcome,
	})
	_ = observability.TelemetrySystem.Histogram(RelayDurationMs, duration, nil)
}

// RecordRelayThrottled counts relay calls refused by the per-client limiter.
func RecordRelayThrottled() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(RelayThrottledTotal, 1, nil)
	}
}

// RecordHealthCheck counts one check run by result and times it.
func RecordHealthCheck(check string, healthy bool, duration time.Duration) {
	ts := observability.TelemetrySystem
	if ts == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = ts.Counter(HealthCheckTotal, 1, map[string]string{"check": check, "status": status})
	_ = ts.Histogram(HealthCheckDuration, duration, map[string]string{"check": check})
}

// SetServerStartTime publishes the serve start as a Unix timestamp.
func SetServerStartTime(unix int64) {
	if ts := observability.TelemetrySystem; ts != nil {
		_ = ts.Gauge(ServerStartTime, float64(unix), nil)
	}
}
