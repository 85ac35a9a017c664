package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/dhruvsoni1802/browser-bidi/internal/pool"
	"github.com/dhruvsoni1802/browser-bidi/internal/session"
)

// Server represents the HTTP API server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	manager *session.Manager
}

// Option configures a Server
type Option func(*serverOptions)

type serverOptions struct {
	limiter *rate.Limiter
}

// WithRateLimit caps the request rate across all clients. Requests over the
// limit get 429.
func WithRateLimit(limit float64, burst int) Option {
	return func(o *serverOptions) {
		o.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// NewServer creates a new HTTP server
func NewServer(port string, manager *session.Manager, loadBalancer *pool.LoadBalancer, opts ...Option) *Server {
	var options serverOptions
	for _, opt := range opts {
		opt(&options)
	}

	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers := NewHandlers(manager, loadBalancer)

	// Monitoring routes skip the rate limiter
	router.Get("/healthz", handlers.Health)
	router.Get("/pool", handlers.PoolMetrics)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		if options.limiter != nil {
			r.Use(RateLimitMiddleware(options.limiter))
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", handlers.CreateSession)
			r.Get("/", handlers.ListSessions)
			r.Post("/resume", handlers.ResumeSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetSession)
				r.Delete("/", handlers.DestroySession)
				r.Post("/navigate", handlers.Navigate)
				r.Post("/execute", handlers.ExecuteJS)
				r.Post("/screenshot", handlers.CaptureScreenshot)
				r.Post("/resume", handlers.ResumeSessionByID)
				r.Put("/rename", handlers.RenameSession)
				r.Post("/cookies/snapshot", handlers.SnapshotCookies)
				r.Post("/cookies/restore", handlers.RestoreCookies)

				r.Post("/contexts", handlers.CreateContext)
				r.Route("/contexts/{contextId}", func(r chi.Router) {
					r.Get("/content", handlers.GetPageContent)
					r.Delete("/", handlers.CloseContext)
				})
			})
		})

		// Agent routes
		r.Route("/agents/{agentId}", func(r chi.Router) {
			r.Get("/sessions", handlers.ListAgentSessions)
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		router:  router,
		server:  server,
		manager: manager,
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.server.Addr)

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("HTTP server stopped")
	return nil
}
