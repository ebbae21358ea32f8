// Package httpapi is the request-path's HTTP surface: a gorilla/mux
// router over an *engine.Engine, with the same request-ID, logging,
// timeout and CORS middleware chain used across this codebase's services.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sawpanic/pricecache/internal/engine"
	"github.com/sawpanic/pricecache/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// Config holds the HTTP listener's configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns production-sane listener defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Server wraps the HTTP listener and its route table over a single Engine.
type Server struct {
	router  *mux.Router
	server  *http.Server
	engine  *engine.Engine
	promReg *prometheus.Registry
	config  Config
	logger  zerolog.Logger
}

// New builds a Server; call Start to begin listening. promReg is the same
// registry passed to engine.New, so /metrics scrapes exactly what the
// engine has been recording; it may be nil to disable the route.
func New(cfg Config, eng *engine.Engine, promReg *prometheus.Registry, logger zerolog.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{router: router, engine: eng, promReg: promReg, config: cfg, logger: logger}
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics.json", s.MetricsJSON).Methods(http.MethodGet)
	if s.promReg != nil {
		s.router.Handle("/metrics", metrics.Handler(s.promReg)).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/price/{chain}/{tokenIn}/{tokenOut}", s.GetPrice).Methods(http.MethodGet)
	s.router.HandleFunc("/admin/refresh", s.AdminRefresh).Methods(http.MethodPost)
	s.router.HandleFunc("/admin/tiers/{tier}/pairs", s.AdminAssignTier).Methods(http.MethodPost)
	s.router.HandleFunc("/admin/probe/{chain}", s.AdminProbe).Methods(http.MethodPost)
	s.router.HandleFunc("/admin/breakers/{chain}", s.AdminBreaker).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.NotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Info().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving; it blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
