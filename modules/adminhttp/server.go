// Package adminhttp exposes a shell over HTTP: application listing,
// navigation, reconciliation triggers, health probes and metrics.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultWaitTimeout bounds how long a request waits for its pass to settle.
const DefaultWaitTimeout = 10 * time.Second

// Shell is the part of appshell.Shell the admin surface drives.
type Shell interface {
	Apps() []appshell.AppSnapshot
	MountedApps() []appshell.AppSnapshot
	UnregisterApplication(name string) error
	Navigate(rawURL string) (*appshell.Future, error)
	Reconcile() *appshell.Future
	Start() (*appshell.Future, error)
	Location() appshell.Location
}

// Middleware is an alias for the chi middleware handler function
type Middleware func(http.Handler) http.Handler

// Server routes admin requests to a shell.
type Server struct {
	shell       Shell
	health      health.HealthAggregator
	metrics     http.Handler
	logger      appshell.Logger
	waitTimeout time.Duration
	middlewares []Middleware
	router      chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithHealth serves /healthz and /readyz from agg.
func WithHealth(agg health.HealthAggregator) Option {
	return func(s *Server) { s.health = agg }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(logger appshell.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWaitTimeout sets how long requests wait for their pass.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithMiddleware appends middleware after the built-in chain.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) { s.middlewares = append(s.middlewares, mw...) }
}

// NewServer builds the router.
func NewServer(shell Shell, opts ...Option) *Server {
	s := &Server{
		shell:       shell,
		waitTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.logger != nil {
		r.Use(s.logRequests)
	}
	for _, mw := range s.middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleLive)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/apps", func(r chi.Router) {
		r.Get("/", s.handleApps)
		r.Get("/mounted", s.handleMounted)
		r.Post("/{name}/unregister", s.handleUnregister)
	})
	r.Post("/navigate", s.handleNavigate)
	r.Post("/reconcile", s.handleReconcile)
	r.Post("/start", s.handleStart)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type appsResponse struct {
	Location string                 `json:"location"`
	Apps     []appshell.AppSnapshot `json:"apps"`
}

type passResponse struct {
	Pending bool                   `json:"pending,omitempty"`
	Mounted []appshell.AppSnapshot `json:"mounted,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type navigateRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleApps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, appsResponse{
		Location: s.shell.Location().String(),
		Apps:     s.shell.Apps(),
	})
}

func (s *Server) handleMounted(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, passResponse{Mounted: s.shell.MountedApps()})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	err := s.shell.UnregisterApplication(chi.URLParam(r, "name"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, appshell.ErrAppNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, appshell.ErrAppBusy):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	future, err := s.shell.Navigate(req.URL)
	switch {
	case errors.Is(err, appshell.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, appshell.ErrShellClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.waitFor(w, r, future)
}

// handleReconcile answers 202 immediately unless ?wait=true.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	future := s.shell.Reconcile()
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, passResponse{Pending: true})
		return
	}
	s.waitFor(w, r, future)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	future, err := s.shell.Start()
	switch {
	case errors.Is(err, appshell.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, appshell.ErrShellClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.waitFor(w, r, future)
}

// waitFor answers with the pass result, or 202 when the pass outlives the
// wait timeout.
func (s *Server) waitFor(w http.ResponseWriter, r *http.Request, future *appshell.Future) {
	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()

	mounted, err := future.Wait(ctx)
	if err != nil {
		if _, _, settled := future.Result(); !settled {
			writeJSON(w, http.StatusAccepted, passResponse{Pending: true})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, passResponse{Mounted: mounted})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.probe(w, r, func(st *health.AggregatedStatus) health.HealthStatus { return st.LivenessStatus })
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.probe(w, r, func(st *health.AggregatedStatus) health.HealthStatus { return st.ReadinessStatus })
}

func (s *Server) probe(w http.ResponseWriter, r *http.Request, pick func(*health.AggregatedStatus) health.HealthStatus) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(health.StatusHealthy)})
		return
	}
	status, err := s.health.CheckAll(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	code := http.StatusOK
	if p := pick(status); p != health.StatusHealthy && p != health.StatusWarning {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
