// Package api provides the HTTP API of the booking core.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/therapia/internal/app"
	"github.com/felixgeelhaar/therapia/pkg/config"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	server    *http.Server
	logger    *slog.Logger
	metrics   observability.Metrics
	container *app.Container
	jwtSecret string
	limiter   *ipRateLimiter
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string
	// RateLimitRPS throttles public routes per client IP; zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "0.0.0.0:8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// ServerConfigFrom applies the application configuration to the defaults.
func ServerConfigFrom(cfg *config.Config) ServerConfig {
	sc := DefaultServerConfig()
	if cfg.HTTPAddr != "" {
		sc.Addr = cfg.HTTPAddr
	}
	sc.JWTSecret = cfg.JWTSecret
	sc.RateLimitRPS = cfg.RateLimitRPS
	sc.RateLimitBurst = cfg.RateLimitBurst
	return sc
}

// NewServer creates the API server over the container's use cases.
func NewServer(cfg ServerConfig, c *app.Container) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger,
		metrics:   c.Metrics,
		container: c,
		jwtSecret: cfg.JWTSecret,
	}
	if s.metrics == nil {
		s.metrics = observability.NoopMetrics{}
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlate)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	// Ops
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.container.Registry, promhttp.HandlerOpts{}))

	// Provider callbacks carry their own signature and are not throttled.
	r.Post("/webhooks/payments", s.handlePaymentWebhook)
	if s.container.Config.PaymentProvider != "stripe" {
		r.Get("/fake-pay", s.handleFakePay)
	}

	booking := &bookingHandler{s: s}
	r.Route("/booking", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.authenticate)
		r.Post("/appointments", booking.Book)
		r.Get("/appointments/{id}", booking.Get)
		r.Post("/appointments/{id}/cancel", booking.Cancel)
		r.Post("/appointments/{id}/reschedule", booking.Reschedule)
		r.Post("/appointments/{id}/outcome", booking.RecordOutcome)
		r.Get("/services", booking.ListServices)
		r.Get("/services/{id}/slots", booking.AvailableSlots)
		r.Post("/waitlist", booking.JoinWaitlist)
	})

	admin := &adminHandler{s: s}
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.requireAdmin)
		r.Get("/services", admin.ListServices)
		r.Post("/services", admin.CreateService)
		r.Get("/services/{id}", admin.GetService)
		r.Put("/services/{id}", admin.UpdateService)
		r.Get("/availability", admin.ListSlots)
		r.Post("/availability", admin.CreateAvailability)
		r.Patch("/availability/{id}", admin.SetSlotStatus)
		r.Delete("/availability/{id}", admin.DeleteSlot)
		r.Get("/waitlist", admin.ListWaitlist)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports whether every critical dependency answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	health := s.container.Health.Check(r.Context())
	status := http.StatusOK
	if !health.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
