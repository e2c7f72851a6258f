package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/cache"
	"github.com/JakeFAU/bizq-orchestrator/internal/config"
	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
)

// Orchestrator runs single requests.
type Orchestrator interface {
	Suggest(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	Task(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	Generate(ctx context.Context, req orchestrator.GenerateRequest) (orchestrator.GenerateResult, error)
	Probe(ctx context.Context) (string, error)
}

// BulkRunner fans tasks out across targets.
type BulkRunner interface {
	Run(ctx context.Context, req orchestrator.BulkRequest) (orchestrator.BulkResponse, error)
}

// CacheAdmin exposes cache statistics and reset.
type CacheAdmin interface {
	Stats(ctx context.Context) cache.Stats
	Clear(ctx context.Context) error
}

// Server wires HTTP handlers to the orchestrator, dispatcher, and cache.
type Server struct {
	router       chi.Router
	orchestrator Orchestrator
	bulk         BulkRunner
	cache        CacheAdmin
	cfg          config.Config
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch Orchestrator,
	bulk BulkRunner,
	cacheAdmin CacheAdmin,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orchestrator: orch,
		bulk:         bulk,
		cache:        cacheAdmin,
		cfg:          cfg,
		logger:       logger.Named("api"),
	}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/health", s.health)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/suggest", s.suggestPost)
		r.Get("/suggest", s.suggestGet)
		r.Post("/task", s.task)
		r.Post("/bulk-task", s.bulkTask)
		r.Post("/generate", s.generate)
		r.Get("/cache/stats", s.cacheStats)
		r.Post("/cache/clear", s.cacheClear)
		r.Get("/test", s.probe)
	})

	s.router = r
	return s
}

// Handler returns the Router, wrapped for trace propagation, for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "bizq.http")
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "bizq",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
