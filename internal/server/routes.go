package server

import (
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/config"
	apperrors "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/observability"
	"github.com/hookline/hookline/internal/server/handlers"
	servermw "github.com/hookline/hookline/internal/server/middleware"
)

// AdminTokenEnv enables POST /admin/signal when set.
const AdminTokenEnv = config.EnvPrefix + "_ADMIN_TOKEN"

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/ratelimits", handlers.RateLimitsHandler(s.dispatcher))
		r.With(servermw.Throttle(s.limiter, rejectThrottled)).
			Post("/webhooks/{id}/{token}", handlers.RelayHandler(s.dispatcher))
	})

	s.registerAdminEndpoint()
}

func rejectThrottled(w http.ResponseWriter, r *http.Request) {
	metrics.RecordRelayThrottled()
	apperrors.RespondWithEnvelope(w, r, apperrors.NewRateLimitedError("relay rate limit exceeded for this client"))
}

// registerAdminEndpoint exposes gofulmen's signal handler behind a bearer
// token.
func (s *Server) registerAdminEndpoint() {
	adminToken := os.Getenv(AdminTokenEnv)
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled", zap.String("env", AdminTokenEnv))
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
