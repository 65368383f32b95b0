package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tusklang/tusk-go/internal/auth"
	"github.com/tusklang/tusk-go/internal/parser"
	"github.com/tusklang/tusk-go/internal/telemetry"
)

// Server exposes the runtime over HTTP for `tsk serve`.
type Server struct {
	rt        *Runtime
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	startTime time.Time
	apiKey    string
	version   string
	limiter   *auth.Limiter
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version string reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithRateLimit overrides the per-client request budget.
func WithRateLimit(cfg auth.Config) ServerOption {
	return func(s *Server) { s.limiter = auth.NewLimiter(cfg) }
}

// NewServer creates the HTTP server over a wired runtime.
func NewServer(rt *Runtime, opts ...ServerOption) *Server {
	s := &Server{
		rt:        rt,
		logger:    rt.Logger(),
		startTime: time.Now(),
		apiKey:    rt.Settings().Server.APIKey,
		version:   "1.0.0",
		limiter:   auth.NewLimiter(auth.ConfigFromEnv()),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", rt.Metrics().Handler())
	mux.HandleFunc("GET /v1/config", s.handleConfig)
	mux.HandleFunc("GET /v1/config/{key}", s.handleConfigKey)
	mux.HandleFunc("POST /v1/parse", s.handleParse)
	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("GET /v1/watch", s.handleWatch)

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	rateLimited := s.limiter.Middleware("/healthz", "/metrics")
	return s.instrument(rateLimited(s.authMiddleware(s.mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Callers may supply their own correlation ID; otherwise one is
		// minted here and echoed back so clients can quote it.
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get("X-Correlation-ID"))
		id := telemetry.CorrelationID(ctx)
		w.Header().Set("X-Correlation-ID", id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))
		elapsed := time.Since(start)
		s.rt.Metrics().RecordHTTP(r.URL.Path, strconv.Itoa(sw.status), elapsed)
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", elapsed.Milliseconds(),
			"correlation_id", id)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probes and scrapes skip auth.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		ip := auth.ClientIP(r)
		if s.limiter.Blocked(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.RetryAfter(ip)))
			writeError(w, http.StatusTooManyRequests, "auth_blocked", "Too many failed authentication attempts")
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			header := r.Header.Get("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				key = header[7:]
			}
		}

		if !auth.ValidateKey(key, s.apiKey) {
			s.limiter.Failure(ip)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid API key")
			return
		}
		s.limiter.Success(ip)

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	entries, hits, misses := s.rt.Cache().Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  time.Since(s.startTime).String(),
		"version": s.version,
		"cache": map[string]any{
			"entries": entries,
			"hits":    hits,
			"misses":  misses,
		},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.rt.Peanut()
	if cfg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"values": map[string]any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": cfg.Values()})
}

func (s *Server) handleConfigKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	cfg := s.rt.Peanut()
	if cfg == nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Key %q not found", key))
		return
	}
	v := cfg.Get(key)
	if v == nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Key %q not found", key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Name   string `json:"name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = "request.tsk"
	}

	log := telemetry.RequestLogger(s.logger, r.Context(), req.Name)
	doc, err := s.rt.EvalSource(r.Context(), req.Source, req.Name)
	if err != nil {
		log.Warn("parse rejected", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "parse_error", s.rt.Redact(err.Error()))
		return
	}
	log.Debug("parsed", "keys", doc.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":   doc.Len(),
		"values": doc.Map(),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Name   string `json:"name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = "request.tsk"
	}

	_, errs := parser.Parse(req.Source, req.Name)
	if len(errs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
		return
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": false, "errors": msgs})
}

// handleWatch streams config-change events as SSE until the client goes
// away.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.rt.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case path, open := <-events:
			if !open {
				return
			}
			data, _ := json.Marshal(map[string]string{"path": path})
			_, _ = fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
