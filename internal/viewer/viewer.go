// Package viewer exposes the memory store over HTTP as a small JSON API,
// for browsing memories outside an MCP session and for scraping metrics.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memtrail/memtrail/internal/memory"
	"github.com/memtrail/memtrail/internal/metrics"
)

// Server serves the viewer API for one memory store.
type Server struct {
	store  *memory.Store
	logger *slog.Logger
	http   *http.Server
}

// New creates a viewer server. collector may be nil, in which case the
// /metrics endpoint is not registered.
func New(store *memory.Store, collector *metrics.PrometheusCollector, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if collector != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/stats", s.handleStats)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Route("/observations", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleAdd)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Patch("/", s.handleUpdate)
				r.Delete("/", s.handleDelete)
				r.Get("/related", s.handleRelated)
				r.Get("/similar", s.handleSimilar)
				r.Get("/feedback", s.handleFeedbackHistory)
				r.Post("/feedback", s.handleFeedback)
			})
		})

		r.Post("/links", s.handleLink)
		r.Delete("/links", s.handleUnlink)
		r.Post("/feedback/batch", s.handleFeedbackBatch)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleSessions)
			r.Post("/", s.handleSessionStart)
			r.Get("/{id}", s.handleSessionGet)
			r.Post("/{id}/end", s.handleSessionEnd)
		})
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("viewer listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
