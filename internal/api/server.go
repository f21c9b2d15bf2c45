// Package api exposes tracking sessions over HTTP and WebSocket.
package api

import (
	"context"
	"net/http"

	"github.com/p-n-ai/pai-tracker/internal/platform/metrics"
	"github.com/p-n-ai/pai-tracker/internal/realtime"
	"github.com/p-n-ai/pai-tracker/internal/session"
	"github.com/p-n-ai/pai-tracker/internal/store"
)

const maxBodyBytes = 1 << 20

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	sessions *session.Manager
	gateway  store.Gateway
	hub      *realtime.Hub
	metrics  *metrics.Metrics
	checks   []Check
}

// Options wires a Server. Sessions and Gateway are required.
type Options struct {
	Sessions *session.Manager
	Gateway  store.Gateway
	Hub      *realtime.Hub
	Metrics  *metrics.Metrics
	Checks   []Check
}

func NewServer(opts Options) *Server {
	hub := opts.Hub
	if hub == nil {
		hub = realtime.NewHub()
	}
	return &Server{
		sessions: opts.Sessions,
		gateway:  opts.Gateway,
		hub:      hub,
		metrics:  opts.Metrics,
		checks:   opts.Checks,
	}
}

// Handler returns the routed handler, wrapped with request metrics when
// configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/sessions", s.handleOpen)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClose)
	mux.HandleFunc("POST /v1/sessions/{id}/items/{itemId}/complete", s.handleComplete)
	mux.HandleFunc("POST /v1/sessions/{id}/items/{itemId}/submit", s.handleSubmit)
	mux.HandleFunc("POST /v1/sessions/{id}/navigate", s.handleNavigate)
	mux.HandleFunc("POST /v1/sessions/{id}/answers", s.handleAnswer)
	mux.HandleFunc("POST /v1/sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /v1/sessions/{id}/explanation", s.handleExplanation)
	mux.HandleFunc("POST /v1/sessions/{id}/retake", s.handleRetake)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleWS)

	mux.HandleFunc("PUT /v1/units", s.handleUpsertUnit)
	mux.HandleFunc("GET /v1/roadmaps/{roadmapId}/results.xlsx", s.handleResults)

	if s.metrics == nil {
		return mux
	}
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.metrics.Middleware(mux)
}
