// Package api exposes claimant import, staged upload and header inference
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/staging"
	"github.com/sells-group/claimant-intake/internal/store"
)

// Store is the persistence the HTTP layer reads from directly.
type Store interface {
	store.ClaimantStore
	Ping(ctx context.Context) error
}

// Options configures request handling.
type Options struct {
	DefaultOrg     string
	MaxUploadBytes int64
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server wires the import components to HTTP handlers.
type Server struct {
	store    Store
	importer *ingest.Orchestrator
	staging  *staging.Workflow
	engine   *headers.Engine
	opts     Options
}

// NewServer creates a Server. Zero options fall back to defaults.
func NewServer(st Store, importer *ingest.Orchestrator, wf *staging.Workflow, engine *headers.Engine, opts Options) *Server {
	if opts.DefaultOrg == "" {
		opts.DefaultOrg = "demo"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if engine == nil {
		engine = headers.NewEngine(nil, 0)
	}
	return &Server{store: st, importer: importer, staging: wf, engine: engine, opts: opts}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/import", s.handleImport)
	r.Post("/headers/infer", s.handleInfer)

	r.Route("/upload", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/{stagingID}", s.handleUploadStatus)
	})

	r.Route("/claimants", func(r chi.Router) {
		r.Get("/", s.handleListClaimants)
		r.Get("/{id}", s.handleGetClaimant)
		r.Delete("/{id}", s.handleDeleteClaimant)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// org returns the requested organization or the default.
func (s *Server) org(v string) string {
	if v == "" {
		return s.opts.DefaultOrg
	}
	return v
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
