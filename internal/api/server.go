// Package api exposes the search engine over a small JSON HTTP surface.
// Every endpoint is a thin layer over an engine operation; the shapes on
// the wire are the engine's own response types.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fedsearch/fedsearch/internal/config"
	"github.com/fedsearch/fedsearch/internal/logging"
	"github.com/fedsearch/fedsearch/internal/metrics"
	"github.com/fedsearch/fedsearch/internal/search"
)

// Server hosts the HTTP API.
type Server struct {
	cfg     config.APIConfig
	engine  *search.Engine
	httpSrv *http.Server
}

// NewServer creates a server around an engine. Start binds the listener.
func NewServer(cfg config.APIConfig, engine *search.Engine) *Server {
	return &Server{cfg: cfg, engine: engine}
}

// Start binds cfg.Addr and serves until Stop is called. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("api server listening", "addr", s.cfg.Addr)
	return s.httpSrv.ListenAndServe()
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the routed handler without binding a listener. Used by
// tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(instrument)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/sql", s.handleSQL)
		r.Post("/connections/{id}/index", s.handleIndex)
		r.Get("/connections", s.handleConnections)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Get("/cache/{key}/pages/{page}", s.handlePage)
		r.Delete("/cache", s.handleInvalidate)
		r.Delete("/cache/{target}", s.handleInvalidate)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// instrument records request counters and latency. The route pattern is
// resolved after the handler runs, so labels stay bounded even for
// parameterized paths.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, path, strconv.Itoa(ww.Status()), time.Since(start))
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start).String(),
		)
	})
}
