package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/config"
	apperrors "github.com/hookline/hookline/internal/errors"
	"github.com/hookline/hookline/internal/observability"
	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/server/handlers"
	servermw "github.com/hookline/hookline/internal/server/middleware"
)

// Server is the relay and admin HTTP surface around one shared dispatcher.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	cfg        config.ServerConfig
	dispatcher *rest.Dispatcher
	health     *handlers.HealthManager
	limiter    *servermw.ClientLimiter

	stopJanitor context.CancelFunc
}

// New builds the router. health may be nil, in which case probes report
// healthy with no checks.
func New(cfg config.ServerConfig, dispatcher *rest.Dispatcher, health *handlers.HealthManager) *Server {
	if health == nil {
		health = handlers.NewHealthManager(handlers.AppVersion)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router:     r,
		cfg:        cfg,
		dispatcher: dispatcher,
		health:     health,
		limiter:    servermw.NewClientLimiter(cfg.RelayRate, cfg.RelayBurst),
	}

	s.registerRoutes()

	return s
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	s.limiter.StartJanitor(ctx, 2*time.Minute)

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.Float64("relay_rate", s.cfg.RelayRate),
			zap.Int("relay_burst", s.cfg.RelayBurst))
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopJanitor != nil {
		s.stopJanitor()
	}
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}
