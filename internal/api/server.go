package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vulcanlabs/vulcan/internal/auth"
	"github.com/vulcanlabs/vulcan/internal/integration"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      log.Logger
	Service     CommandProcessor    // Required: the command orchestrator
	Sessions    *session.Store      // Required
	Catalog     integration.Catalog // Required: knowledge base catalog
	Auth        *auth.Validator     // Optional: nil runs the API in open mode
	Pool        *pgxpool.Pool       // Optional: nil disables DB checks in /ready
	CORSOrigins []string            // Allowed origins for CORS
	IsDev       bool                // Disables HSTS (no HTTPS in dev)
	TrustProxy  bool                // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int                 // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("command processor is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("knowledge base catalog is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{})
	}

	ch := &chatHandler{svc: cfg.Service, logger: logger}
	sh := &sessionHandler{
		store:   cfg.Sessions,
		catalog: cfg.Catalog,
		svc:     cfg.Service,
		logger:  logger,
	}

	mux := http.NewServeMux()

	// Chat streaming
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	// Session CRUD and knowledge-base selection
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.archive)
	mux.HandleFunc("POST /api/v1/sessions/cleanup", sh.cleanup)
	mux.HandleFunc("POST /api/v1/sessions/{id}/knowledge-base", sh.switchKnowledgeBase)

	// Knowledge base catalog
	mux.HandleFunc("GET /api/v1/knowledge-bases", sh.listKnowledgeBases)

	// Backend health and circuit breaker states
	svc := cfg.Service
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status(), logger)
	})

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers, and before Auth so preflight never needs a token.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Auth, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack so
	// they are never rate-limited or auth-gated.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, cfg.Service, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
