// Package api exposes the task workflow service over HTTP.
//
// Every task route is authenticated through an identity.Provider. The actor it
// resolves is the only source of roles; request bodies never carry one.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/identity"
	"github.com/mrz1836/taskreview/internal/task"
)

// ActorHeader carries the actor ID when no Authorization header is present.
// Only meaningful with identity.StaticProvider.
const ActorHeader = "X-Actor-ID"

// Server routes HTTP requests to a task.Service.
type Server struct {
	svc       *task.Service
	auth      identity.Provider
	logger    zerolog.Logger
	gatherer  prometheus.Gatherer
	maxUpload int64
	router    *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsGatherer serves g on /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMaxUploadBytes caps multipart submissions.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// New returns a Server for svc that authenticates with auth.
func New(svc *task.Service, auth identity.Provider, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		auth:      auth,
		logger:    zerolog.Nop(),
		maxUpload: constants.MaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "api").Logger()
	s.setupRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	tasks := s.router.PathPrefix("/tasks").Subrouter()
	tasks.Use(s.authenticate)

	tasks.HandleFunc("", s.handleCreate).Methods(http.MethodPost)
	tasks.HandleFunc("", s.handleList).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}/history", s.handleHistory).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}/view", s.handleView).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}/verify", s.handleVerify).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}/assignment", s.handleReassign).Methods(http.MethodPut)
	tasks.HandleFunc("/{id}/start", s.handleStart).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}/submit", s.handleSubmit).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}/validate", s.handleDecision(constants.TransitionValidate)).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}/reject", s.handleDecision(constants.TransitionReject)).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}/finalize", s.handleDecision(constants.TransitionFinalize)).Methods(http.MethodPost)
}

// Timeouts bounds the HTTP server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
// In-flight requests keep their own contexts so a shutdown never interrupts a
// transition between its write and its notification.
func (s *Server) Run(ctx context.Context, addr string, t Timeouts) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       t.Read,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      t.Write,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.Shutdown)
		defer cancel()
		s.logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
