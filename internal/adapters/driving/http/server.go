package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/metrics"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Services
	ingestService driving.IngestService
	answerService driving.AnswerService
	pageService   driving.PageService

	// Infrastructure
	db    Pinger // PostgreSQL health check
	queue Pinger // Task queue health check (Redis or Postgres)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// AllowedOrigins for CORS; empty disables CORS headers
	AllowedOrigins []string

	// RateLimit is requests per second per user key; 0 disables limiting
	RateLimit float64
	RateBurst int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
		RateLimit:      10,
		RateBurst:      20,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	ingestService driving.IngestService,
	answerService driving.AnswerService,
	pageService driving.PageService,
	db Pinger,
	queue Pinger,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:        http.NewServeMux(),
		version:       cfg.Version,
		logger:        logger,
		metrics:       cfg.Metrics,
		ingestService: ingestService,
		answerService: answerService,
		pageService:   pageService,
		db:            db,
		queue:         queue,
	}
	s.setupRoutes()

	// Outermost first: recovery sees panics from every layer below it.
	var handler http.Handler = s.router
	handler = NewRateLimitMiddleware(cfg.RateLimit, cfg.RateBurst).Handler(handler)
	handler = NewUserMiddleware().Handler(handler)
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous scrapes and generation are slow
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.route("GET /health", s.handleHealth)
	s.route("GET /ready", s.handleReady)
	s.route("GET /version", s.handleVersion)
	s.router.Handle("GET /metrics", s.metrics.Handler())
	s.route("GET /swagger/doc.json", s.handleSwagger)

	// Ingestion
	s.route("POST /api/v1/scrape", s.handleScrape)
	s.route("POST /api/v1/pages/{id}/rescrape", s.handleRescrape)

	// Retrieval
	s.route("POST /api/v1/ask", s.handleAsk)
	s.route("POST /api/v1/summary", s.handleSummary)

	// Pages
	s.route("GET /api/v1/pages", s.handleListPages)
	s.route("GET /api/v1/pages/{id}", s.handleGetPage)
	s.route("DELETE /api/v1/pages/{id}", s.handleDeletePage)
	s.route("POST /api/v1/reset", s.handleResetUser)

	// Tasks
	s.route("GET /api/v1/tasks", s.handleListTasks)
	s.route("GET /api/v1/tasks/{id}", s.handleGetTask)
	s.route("DELETE /api/v1/tasks/{id}", s.handleCancelTask)

	// Admin
	s.route("DELETE /api/v1/admin/reset", s.handleResetAll)
	s.route("GET /api/v1/admin/queue", s.handleQueueStats)
}

// route registers h and records request metrics under the pattern's path.
func (s *Server) route(pattern string, h http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	s.router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h(rw, r)
		s.metrics.ObserveHTTP(method, path, rw.statusCode, time.Since(start))
	}))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
