// Package server provides the HTTP server and routing for the ledger API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sarraf/internal/config"
	"github.com/aristath/sarraf/internal/di"
	"github.com/aristath/sarraf/internal/metrics"
	ledgerhandlers "github.com/aristath/sarraf/internal/modules/ledger/handlers"
	positionshandlers "github.com/aristath/sarraf/internal/modules/positions/handlers"
	receiptshandlers "github.com/aristath/sarraf/internal/modules/receipts/handlers"
	settlementhandlers "github.com/aristath/sarraf/internal/modules/settlement/handlers"
	tradinghandlers "github.com/aristath/sarraf/internal/modules/trading/handlers"
	"github.com/aristath/sarraf/internal/utils"
)

const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container     // DI container with all services
	Jobs      *di.JobInstances // jobs exposed for manual triggering
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	rateLimiter    *RateLimiter
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: c,
		systemHandlers: NewSystemHandlers(
			c.LedgerDB,
			c.BackupService,
			cfg.Jobs.LedgerAudit,
			c.Scheduler,
			cfg.Jobs.All(),
			cfg.Log,
		),
		rateLimiter: NewRateLimiter(cfg.Config.RateLimit, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware shared by every route
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metricsMiddleware(s.container.Metrics))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", c.Metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Websocket stream stays outside the timeout and compression group:
		// both wrap the response writer and would break the upgrade
		r.Get("/events/ws", NewEventsStreamHandler(c.EventBus, s.cfg.CORSAllowedOrigins, s.log).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Use(s.rateLimiter.Middleware)
			if !s.cfg.DevMode {
				r.Use(middleware.Compress(5))
			}

			tradinghandlers.NewTradingHandlers(c.TradingService, s.log).RegisterRoutes(r)
			positionshandlers.NewHandler(c.Book, s.log).RegisterRoutes(r)
			receiptshandlers.NewHandler(c.ReceiptService, s.log).RegisterRoutes(r)
			settlementhandlers.NewHandler(c.SettlementEngine, s.log).RegisterRoutes(r)
			ledgerhandlers.NewHandler(c.LedgerDB.Conn(), c.Journal, c.Ledger, c.Directory, s.log).RegisterRoutes(r)

			s.systemHandlers.RegisterRoutes(r)
		})
	})
}

// handleHealth reports liveness plus a ledger database ping
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.container.LedgerDB.HealthCheck(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Health check failed")
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		}, s.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, s.log)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// metricsMiddleware records request counts and latency by route pattern,
// so IDs in paths do not explode label cardinality
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.HTTPObserved(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
