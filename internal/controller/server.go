// Package controller serves the campaign status API next to the running master.
package controller

import (
	"context"
	"net/http"
	"time"

	"pdsa/internal/controller/handlers"
	"pdsa/internal/controller/middleware"
)

// Server is the HTTP server for the status API.
type Server struct {
	httpServer *http.Server
}

// Options configures the status server. Metrics may be nil.
type Options struct {
	Addr      string
	Metrics   http.Handler
	RateLimit float64
	RateBurst int
}

// New creates a new status server.
func New(opts Options, status handlers.StatusProvider, results handlers.ResultStore) *Server {
	h := handlers.New(status, results)
	limit := middleware.RateLimitMiddleware(opts.RateLimit, opts.RateBurst)

	mux := http.NewServeMux()

	mux.Handle("GET /status", limit(http.HandlerFunc(h.GetStatus)))
	mux.Handle("GET /results", limit(http.HandlerFunc(h.GetResults)))

	// Probes and scrapes are not rate limited.
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
