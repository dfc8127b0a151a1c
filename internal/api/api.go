// Package api provides the HTTP JSON API of CareConcierge.
//
// It exposes sessions, turns, plans, care search, tasks and persisted call scripts on top of
// the flow package.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/flow"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	Timer        *flow.SimpleTimer
	TurnTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTimer exposes pending handoff timers on the health endpoint.
func WithTimer(t *flow.SimpleTimer) Option {
	return func(o *Opts) { o.Timer = t }
}

// WithTurnTimeout bounds how long a turn may wait on collaborators.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TurnTimeout = d }
}

// Server is the HTTP API server.
type Server struct {
	concierge   *flow.Concierge
	timer       *flow.SimpleTimer
	addr        string
	turnTimeout time.Duration
	httpServer  *http.Server
}

// NewServer creates a Server around concierge.
func NewServer(concierge *flow.Concierge, opts ...Option) (*Server, error) {
	cfg := Opts{
		Addr:         DefaultAddr,
		TurnTimeout:  60 * time.Second,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if concierge == nil {
		return nil, fmt.Errorf("concierge is required")
	}
	s := &Server{
		concierge:   concierge,
		timer:       cfg.Timer,
		addr:        cfg.Addr,
		turnTimeout: cfg.TurnTimeout,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/turns", s.turnHandler)
	mux.HandleFunc("POST /sessions/{id}/reset", s.resetHandler)
	mux.HandleFunc("GET /sessions/{id}/plan", s.planHandler)
	mux.HandleFunc("POST /sessions/{id}/care/search", s.careSearchHandler)
	mux.HandleFunc("GET /sessions/{id}/tasks", s.listTasksHandler)
	mux.HandleFunc("POST /sessions/{id}/tasks", s.createTaskHandler)
	mux.HandleFunc("PATCH /sessions/{id}/tasks/{taskID}", s.updateTaskHandler)
	mux.HandleFunc("DELETE /sessions/{id}/tasks/{taskID}", s.deleteTaskHandler)
	mux.HandleFunc("GET /scripts/{id}", s.getScriptHandler)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			slog.Error("Server.Run: server failed", "error", err)
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown failed: %w", err)
	}
	return nil
}
