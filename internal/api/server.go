// Package api provides the operational HTTP surface of roster-sync.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/memberhub/roster-sync/internal/api/common"
	"github.com/memberhub/roster-sync/internal/service"
	"github.com/memberhub/roster-sync/internal/versions"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates the HTTP router for svc.
func NewServer(svc service.RunService, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)
	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/latest", latestRunHandler(svc))
		r.Post("/runs", triggerRunHandler(svc))
		r.Get("/members/{nationalID}", getMemberHandler(svc))
	})

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

func readinessHandler(svc service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteJSONResponse(w, ReadinessResponse{Status: "error", Error: err.Error()},
				http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

func latestRunHandler(svc service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := svc.LatestRun(r.Context())
		switch {
		case errors.Is(err, service.ErrNoRuns):
			common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
		case err != nil:
			slog.ErrorContext(r.Context(), "Failed to load latest run", "error", err)
			common.WriteErrorResponse(w, "failed to load latest run", http.StatusInternalServerError)
		default:
			common.WriteJSONResponse(w, run, http.StatusOK)
		}
	}
}

func triggerRunHandler(svc service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := svc.TriggerRun(r.Context())
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		case err != nil:
			slog.ErrorContext(r.Context(), "Failed to trigger run", "error", err)
			common.WriteErrorResponse(w, "failed to trigger run", http.StatusInternalServerError)
		default:
			w.Header().Set("Location", "/v1/runs/latest")
			common.WriteJSONResponse(w, TriggerResponse{RunID: runID}, http.StatusAccepted)
		}
	}
}

func getMemberHandler(svc service.RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := svc.GetMember(r.Context(), chi.URLParam(r, "nationalID"))
		switch {
		case errors.Is(err, service.ErrInvalidNationalID):
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrMemberNotFound):
			common.WriteErrorResponse(w, "member not found", http.StatusNotFound)
		case err != nil:
			slog.ErrorContext(r.Context(), "Failed to get member", "error", err)
			common.WriteErrorResponse(w, "failed to get member", http.StatusInternalServerError)
		default:
			common.WriteJSONResponse(w, newMemberResponse(m), http.StatusOK)
		}
	}
}
