package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/dashboard"
	"bilancio/internal/log"
	"bilancio/internal/metrics"
)

// Deps are the collaborators the API serves from.
type Deps struct {
	Source    dashboard.Reader
	Service   *dashboard.Service
	Snapshots *dashboard.Snapshots
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	VATRate   decimal.Decimal
	Now       func() time.Time

	// Ready reports whether the backend is usable. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	deps        Deps
	logger      *log.Logger
	security    SecurityObserver
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Snapshots == nil {
		deps.Snapshots = dashboard.NewSnapshots()
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps:        deps,
		logger:      deps.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(60, time.Minute),
	}
	if deps.Metrics != nil {
		s.security = deps.Metrics
	}

	s.handle(mux, "GET /healthz", handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	s.handle(mux, "GET /api/dashboard", s.withSecurityHeaders(s.handleDashboard))
	s.handle(mux, "GET /api/dashboard/{panel}", s.withSecurityHeaders(s.handleDashboardPanel))
	s.handle(mux, "GET /api/parties", s.withSecurityHeaders(s.handleParties))
	s.handle(mux, "GET /api/periods", s.withSecurityHeaders(s.handlePeriods))
	s.handle(mux, "GET /api/taxes", s.withSecurityHeaders(s.handleTaxes))
	s.handle(mux, "GET /api/overview", s.withSecurityHeaders(s.handleOverview))
	s.handle(mux, "GET /api/records", s.withSecurityHeaders(s.handleListRecords))
	s.handle(mux, "POST /api/records", s.withSecurityHeaders(s.handleCreateRecord))
	s.handle(mux, "POST /api/records/{id}/paid", s.withSecurityHeaders(s.handleMarkPaid))
	s.handle(mux, "POST /api/sync", s.withSecurityHeaders(s.handleSync))

	s.Handler = log.Middleware(deps.Logger)(mux)
	return s
}

// handle registers h under pattern, labelled for request metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.deps.Metrics != nil {
		handler = s.deps.Metrics.Middleware(pattern, handler)
	}
	mux.Handle(pattern, handler)
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers and rate limits writes.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		logger := log.FromContext(r.Context())

		if reason := suspicionReason(r); reason != "" {
			s.securityEvent(eventSuspicious)
			logger.WarnContext(r.Context(), "Suspicious request", "reason", reason,
				"client_ip", clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			s.securityEvent(eventRateLimited)
			logger.WarnContext(r.Context(), "Rate limit exceeded",
				"client_ip", clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next(w, r)
	}
}

func (s *Server) securityEvent(kind string) {
	if s.security != nil {
		s.security.SecurityEvent(kind)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
