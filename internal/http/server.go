// Package http exposes the ledger as a JSON API with Bearer authentication,
// per-IP rate limiting on writes and a server-sent-events change stream.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pecunia/internal/log"
	"pecunia/internal/services"
)

// Server wires the ledger service behind the HTTP routes.
type Server struct {
	httpServer *http.Server
	svc        *services.LedgerService
	auth       *authenticator
	limiter    *rateLimiter
	metrics    *securityMetrics
	logger     *log.StructuredLogger

	shutdownOnce sync.Once
}

func NewServer(port, jwtSecret string, svc *services.LedgerService, logger *log.Logger) *Server {
	httpLogger := logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		svc:     svc,
		auth:    newAuthenticator(jwtSecret),
		limiter: newRateLimiter(),
		metrics: &securityMetrics{},
		logger:  log.NewStructuredLogger(httpLogger),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/accounts", s.auth.middleware(s.handleListAccounts))
	mux.Handle("POST /api/accounts", s.auth.middleware(s.handleCreateAccount))
	mux.Handle("GET /api/accounts/{id}", s.auth.middleware(s.handleGetAccount))
	mux.Handle("PUT /api/accounts/{id}", s.auth.middleware(s.handleUpdateAccount))
	mux.Handle("DELETE /api/accounts/{id}", s.auth.middleware(s.handleDeleteAccount))

	mux.Handle("GET /api/transactions", s.auth.middleware(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.auth.middleware(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/{id}", s.auth.middleware(s.handleGetTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.auth.middleware(s.handleEditTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.auth.middleware(s.handleDeleteTransaction))

	mux.Handle("GET /api/categories", s.auth.middleware(s.handleListCategories))
	mux.Handle("POST /api/categories", s.auth.middleware(s.handleCreateCategory))
	mux.Handle("PUT /api/categories/{id}", s.auth.middleware(s.handleUpdateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.auth.middleware(s.handleDeleteCategory))
	mux.Handle("GET /api/categories/options", s.auth.middleware(s.handleCategoryOptions))

	mux.Handle("GET /api/breakdown", s.auth.middleware(s.handleBreakdown))
	mux.Handle("GET /api/events", s.auth.middleware(s.handleEvents))

	// Chain: base logger into context, security wrapper (which stamps the
	// request id), then a request-scoped logger carrying that id.
	handler := log.Middleware(httpLogger)(
		s.withSecurity(
			log.RequestIDMiddleware(requestIDFromHeader)(mux)))

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the events endpoint holds its connection open.
	}

	return s
}

func requestIDFromHeader(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

// Handler returns the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until the listener fails or Shutdown
// is called.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so the events endpoint can stream.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// withSecurity is the outermost middleware: request id, client IP resolution,
// suspicious-pattern logging, rate limiting of writes, security headers and
// start/end request logs.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		clientIP := extractClientIP(r)

		ctx := r.Context()
		w.Header().Set("X-Request-ID", requestID)
		// Inner handlers read the id back through requestIDFromHeader.
		r.Header.Set("X-Request-ID", requestID)

		if detectSuspiciousRequest(r, s.metrics) {
			s.logger.LogError(ctx, "Suspicious request pattern", nil,
				log.ComponentSecurity, log.OpRead,
				log.NewFields().WithRequestID(requestID).WithClientIP(clientIP).
					WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), ""))
		}

		if isMutating(r.Method) && !s.limiter.allow(clientIP, s.metrics) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		s.logger.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.svc.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
