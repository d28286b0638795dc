// Package web serves the JSON API over the scenario service.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/evcraddock/proptech-copilot/internal/logging"
	"github.com/evcraddock/proptech-copilot/internal/metrics"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

// UserHeader identifies the caller. Authentication happens upstream.
const UserHeader = "X-User-ID"

// SessionHeader optionally attributes mutations to an editing session.
const SessionHeader = "X-Session-ID"

const shutdownTimeout = 10 * time.Second

// Server is the HTTP API server.
type Server struct {
	svc     *scenario.Service
	metrics *metrics.Metrics
	router  *mux.Router
	handler http.Handler
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	devMode bool
	origins []string
}

// WithDevMode prints recovered panic stacks.
func WithDevMode(dev bool) Option {
	return func(o *serverOptions) { o.devMode = dev }
}

// WithAllowedOrigins sets the CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *serverOptions) { o.origins = origins }
}

// NewServer creates the API server. m may be nil.
func NewServer(svc *scenario.Service, m *metrics.Metrics, opts ...Option) *Server {
	o := serverOptions{origins: []string{"*"}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		svc:     svc,
		metrics: m,
		router:  mux.NewRouter(),
	}
	s.routes()
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, "not found", http.StatusNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins(o.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", UserHeader, SessionHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(panicLogger{}),
		handlers.PrintRecoveryStack(o.devMode),
	)
	s.handler = logging.RequestLogger(handlers.ProxyHeaders(recovery(cors(s.router))))
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := []struct {
		method string
		path   string
		h      userHandler
	}{
		{http.MethodGet, "/api/properties", s.apiListProperties},
		{http.MethodGet, "/api/properties/{id}/view", s.apiEffectiveView},
		{http.MethodPost, "/api/properties/{id}/close", s.apiCloseFloors},
		{http.MethodPost, "/api/properties/{id}/open", s.apiOpenFloors},
		{http.MethodPost, "/api/properties/{id}/reset", s.apiReset},
		{http.MethodPost, "/api/properties/{id}/params", s.apiUpdateParams},
		{http.MethodPost, "/api/properties/{id}/simulate", s.apiSimulate},
		{http.MethodGet, "/api/properties/{id}/recommendations", s.apiRecommendations},
		{http.MethodGet, "/api/properties/{id}/insight", s.apiInsight},
		{http.MethodGet, "/api/properties/{id}/forecast", s.apiForecast},
		{http.MethodGet, "/api/properties/{id}/energy-scenarios", s.apiEnergyScenarios},
		{http.MethodGet, "/api/properties/{id}/risk", s.apiRisk},
		{http.MethodGet, "/api/overlays", s.apiListOverlays},
		{http.MethodPost, "/api/reset", s.apiResetAll},
		{http.MethodGet, "/api/changes", s.apiChanges},
		{http.MethodGet, "/api/changes/stats", s.apiChangeStats},
		{http.MethodGet, "/api/history/{type}/{id}", s.apiEntityHistory},
		{http.MethodPost, "/api/sessions", s.apiCreateSession},
		{http.MethodGet, "/api/sessions", s.apiListSessions},
		{http.MethodGet, "/api/sessions/{id}", s.apiSessionSummary},
		{http.MethodPost, "/api/sessions/{id}/end", s.apiEndSession},
		{http.MethodGet, "/api/portfolio/dashboard", s.apiDashboard},
		{http.MethodGet, "/api/portfolio/benchmark", s.apiBenchmark},
		{http.MethodGet, "/api/portfolio/summary", s.apiExecutiveSummary},
	}
	for _, rt := range api {
		s.router.Handle(rt.path, s.metrics.WrapHandler(rt.path, requireUser(rt.h))).Methods(rt.method)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// userHandler is a handler that needs the caller's user id.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func requireUser(h userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			apiError(w, UserHeader+" header is required", http.StatusUnauthorized)
			return
		}
		h(w, r, userID)
	})
}

type panicLogger struct{}

func (panicLogger) Println(v ...interface{}) {
	slog.Error("panic recovered", "panic", fmt.Sprint(v...))
}
