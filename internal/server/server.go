// Package server provides the HTTP and WebSocket API for the company agent.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/company-agent/internal/chat"
	"github.com/jonathan/company-agent/internal/config"
	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/importer"
	"github.com/jonathan/company-agent/internal/metrics"
	"github.com/jonathan/company-agent/internal/server/middleware"
	"github.com/jonathan/company-agent/internal/server/ratelimit"
)

const maxJSONBody = 1 << 20

// ChatService answers chat messages and reads the interaction log.
type ChatService interface {
	Chat(ctx context.Context, message, sessionID string) (*chat.Result, error)
	History(ctx context.Context, sessionID string, limit int) ([]db.ChatExchange, error)
}

// CompanyStore is the subset of db.Store the REST API needs.
type CompanyStore interface {
	Ping(ctx context.Context) error
	CreateCompany(ctx context.Context, c *db.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*db.Company, error)
	UpdateCompany(ctx context.Context, c *db.Company) error
	DeleteCompany(ctx context.Context, id uuid.UUID) error
	ListCompanies(ctx context.Context, filter db.CompanyFilter) ([]db.Company, error)
}

// CSVImporter loads companies from an uploaded CSV file.
type CSVImporter interface {
	Import(ctx context.Context, r io.Reader) (*importer.Result, error)
}

// Deps are the services the server routes requests to.
type Deps struct {
	Store    CompanyStore
	Chat     ChatService
	Importer CSVImporter
	Logger   *zap.Logger
}

// Options configures the HTTP layer. A nil JWT disables admin auth; a nil
// RateLimit disables rate limiting.
type Options struct {
	Port              int
	ShutdownTimeout   time.Duration
	MaxUploadBytes    int64
	CORSOrigin        string
	JWT               *config.JWTConfig
	Passwords         *config.PasswordConfig
	AdminPasswordHash string
	RateLimit         *ratelimit.Config
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	handler         http.Handler
	store           CompanyStore
	chat            ChatService
	importer        CSVImporter
	logger          *zap.Logger
	validator       *validator.Validate
	rateLimiter     *ratelimit.Limiter
	jwtService      *JWTService
	passwords       *config.PasswordConfig
	adminHash       string
	maxUploadBytes  int64
	corsOrigin      string
	shutdownTimeout time.Duration
}

// New creates a new server instance
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Store == nil || deps.Chat == nil || deps.Importer == nil {
		return nil, fmt.Errorf("server requires a store, chat service and importer")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.RateLimit == nil {
		opts.RateLimit = &ratelimit.Config{Enabled: false}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}

	s := &Server{
		store:           deps.Store,
		chat:            deps.Chat,
		importer:        deps.Importer,
		logger:          deps.Logger,
		validator:       newValidator(),
		rateLimiter:     ratelimit.NewLimiter(opts.RateLimit),
		passwords:       opts.Passwords,
		adminHash:       opts.AdminPasswordHash,
		maxUploadBytes:  opts.MaxUploadBytes,
		corsOrigin:      opts.CORSOrigin,
		shutdownTimeout: opts.ShutdownTimeout,
	}

	if opts.JWT != nil {
		if opts.Passwords == nil || opts.AdminPasswordHash == "" {
			return nil, fmt.Errorf("admin auth requires password settings and an admin password hash")
		}
		s.jwtService = NewJWTService(opts.JWT)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/{$}", s.handleChat)
	mux.HandleFunc("GET /ws/chat", s.handleChatSocket)
	mux.HandleFunc("GET /chat-history/{$}", s.handleChatHistory)
	mux.Handle("POST /upload-csv/{$}", s.admin(s.handleUploadCSV))

	mux.HandleFunc("GET /api/companies/{$}", s.handleListCompanies)
	mux.Handle("POST /api/companies/{$}", s.admin(s.handleCreateCompany))
	mux.HandleFunc("GET /api/companies/{id}/{$}", s.handleGetCompany)
	mux.Handle("PUT /api/companies/{id}/{$}", s.admin(s.handleUpdateCompany))
	mux.Handle("PATCH /api/companies/{id}/{$}", s.admin(s.handlePatchCompany))
	mux.Handle("DELETE /api/companies/{id}/{$}", s.admin(s.handleDeleteCompany))

	mux.HandleFunc("POST /admin/token", s.handleAdminToken)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = s.withRateLimit(s.withLogging(s.withMetrics(s.withCORS(mux))))
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second, // chat turns wait on the model
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.rateLimiter.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// admin guards a handler with the bearer token check when admin auth is on.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.RequireToken(s.jwtService.AsTokenValidator())(h)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withMetrics records request counts and latency by route pattern.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		// ServeMux fills in r.Pattern on the request it was handed.
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID is the remote IP. X-Forwarded-For is ignored since the proxy
// chain is not known.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(info.RetryAfter.Seconds()+0.5)))
	}
	s.errorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// handleHealth reports liveness and store connectivity
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON reads a JSON body into dst and runs struct validation. The
// returned message is safe to show to the client.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (string, bool) {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		return "Invalid request body", false
	}
	if err := s.validator.Struct(dst); err != nil {
		return extractValidationErrors(err), false
	}
	return "", true
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// extractValidationErrors extracts validation error messages from validator errors.
func extractValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return (&ErrValidation{Field: ve.Field(), Message: ve.Tag()}).Error()
	}
	return "validation error: invalid request"
}

// parseQueryInt parses an integer query parameter with default and max values
func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the WebSocket handler take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
