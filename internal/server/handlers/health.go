package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/metrics"
)

// Check results reported per component.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// HealthResponse is the body of a passing /health request.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the body of a passing liveness or readiness probe.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is a component that can report its own health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type registeredCheck struct {
	checker  HealthChecker
	liveness bool
}

// HealthManager runs registered checks for /health and the k8s probes.
// Readiness and /health run every check; liveness runs only checks
// registered with RegisterLivenessChecker.
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]registeredCheck
	version string
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checks:  make(map[string]registeredCheck),
		version: version,
	}
}

// RegisterChecker registers a readiness check.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.register(name, registeredCheck{checker: checker})
}

// RegisterLivenessChecker registers a check that gates liveness as well.
func (hm *HealthManager) RegisterLivenessChecker(name string, checker HealthChecker) {
	hm.register(name, registeredCheck{checker: checker, liveness: true})
}

func (hm *HealthManager) register(name string, check registeredCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[name] = check
}

// evaluate runs the selected checks concurrently. A check whose context
// expired before it could start is reported as timeout.
func (hm *HealthManager) evaluate(ctx context.Context, livenessOnly bool) map[string]string {
	hm.mu.RLock()
	selected := make(map[string]HealthChecker, len(hm.checks))
	for name, check := range hm.checks {
		if !livenessOnly || check.liveness {
			selected[name] = check.checker
		}
	}
	hm.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(selected))
	)
	for name, checker := range selected {
		wg.Go(func() {
			result := statusTimeout
			if ctx.Err() == nil {
				start := time.Now()
				err := checker.CheckHealth(ctx)
				metrics.RecordHealthCheck(name, err == nil, time.Since(start))
				result = statusHealthy
				if err != nil {
					result = statusUnhealthy
				}
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

// overallStatus folds per-check results: any failure is unhealthy, any
// timeout degrades.
func overallStatus(checks map[string]string) string {
	status := statusHealthy
	for _, result := range checks {
		switch result {
		case statusUnhealthy:
			return statusUnhealthy
		case statusDegraded, statusTimeout:
			status = statusDegraded
		}
	}
	return status
}

// HealthHandler serves /health with per-check results.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks, status, ok := hm.run(w, r, "", 5*time.Second, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports whether the process should be restarted.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "live", 2*time.Second, true)
}

// ReadinessHandler reports whether the relay can take traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", 5*time.Second, false)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration, livenessOnly bool) {
	if _, status, ok := hm.run(w, r, name, timeout, livenessOnly); ok {
		writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
	}
}

// run evaluates checks and writes the 503 envelope itself when the result
// is unhealthy, returning ok=false.
func (hm *HealthManager) run(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration, livenessOnly bool) (map[string]string, string, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.evaluate(ctx, livenessOnly)
	status := overallStatus(checks)
	if status != statusUnhealthy {
		return checks, status, true
	}

	message := "aggregate health check failed"
	if probe != "" {
		message = probe + " probe failed"
	}
	apperrors.RespondWithEnvelope(w, r, unhealthyEnvelope(message, probe, checks))
	return nil, status, false
}

func unhealthyEnvelope(message, probe string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]interface{}{"status": statusUnhealthy, "checks": checks}
	if probe != "" {
		details["probe"] = probe
	}
	envelope := apperrors.NewServiceUnavailableError(message).WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != statusHealthy {
			failing = append(failing, name)
		}
	}
	slices.Sort(failing)
	if withContext, err := envelope.WithContext(map[string]interface{}{"unhealthy_checks": failing}); err == nil {
		envelope = withContext
	}
	return envelope
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
