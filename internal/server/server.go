// Package server exposes the desk over HTTP: the mailbox push webhook, a
// manual processing endpoint, and the health/metrics surface.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evalops/sales-desk/internal/audit"
	"github.com/evalops/sales-desk/internal/ingest"
	deskotel "github.com/evalops/sales-desk/internal/otel"
)

const defaultTimeout = 30 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router        *chi.Mux
	ingest        *ingest.Service
	metrics       *audit.Collector
	webhookSecret string
	version       string
	startTime     time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithVersion sets the version string reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a Server. An empty webhookSecret disables the webhook
// endpoint entirely rather than accepting unauthenticated pushes.
func NewServer(svc *ingest.Service, metrics *audit.Collector, webhookSecret string, opts ...Option) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		ingest:        svc,
		metrics:       metrics,
		webhookSecret: webhookSecret,
		version:       "dev",
		startTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(deskotel.Middleware())
	r.Use(middleware.Timeout(defaultTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/webhook/gmail", s.handleGmailWebhook)
	r.Post("/api/process", s.handleManualProcess)

	return r
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// writeJSON writes a JSON success response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// checkWebhookSecret compares the shared secret in constant time. A server
// configured without a secret rejects everything.
func (s *Server) checkWebhookSecret(r *http.Request) bool {
	if s.webhookSecret == "" {
		return false
	}
	got := r.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) == 1
}
