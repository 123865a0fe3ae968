package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/kiosk"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.prom != nil {
		r.Use(s.prometheusMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})

	// Kiosk web bundle
	r.Handle("/kiosk/*", http.StripPrefix("/kiosk", kiosk.Handler(s.cfg.KioskDir)))
	r.Handle("/kiosk", http.RedirectHandler("/kiosk/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		// No session required
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		if s.prom != nil {
			r.Method(http.MethodGet, "/metrics/prometheus", s.prom.Handler())
		}
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/auth/session", s.handleSession)

			// Activity signals move the deadline themselves.
			r.Post("/auth/activity", s.handleActivity)
			r.Get("/ws", s.handleWebSocket)

			r.Group(func(r chi.Router) {
				r.Use(s.activityMiddleware)

				r.Get("/auth/draft", s.handleGetDraft)
				r.Put("/auth/draft", s.handleSaveDraft)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermRead))
					r.Get("/dashboard", s.handleDashboard)
					r.Get("/dryers/{n}/batch", s.handleActiveBatch)
					r.Get("/batches/{id}", s.handleGetBatch)
					r.Get("/batches/{id}/readings", s.handleListReadings)
					r.Get("/batches/{id}/history", s.handleBatchHistory)
					r.Get("/history", s.handleSearchHistory)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermCreate))
					r.Get("/dryers/{n}/next-code", s.handleNextCode)
					r.Post("/dryers/{n}/batches", s.handleStartBatch)
					r.Post("/batches/{id}/readings", s.handleRecordReading)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermUpdate))
					r.Patch("/batches/{id}", s.handleEditBatch)
					r.Post("/batches/{id}/complete", s.handleCompleteBatch)
					r.Post("/batches/{id}/cancel", s.handleCancelBatch)
				})

				r.With(s.requirePermission(auth.PermDelete)).Delete("/batches/{id}", s.handleDeleteBatch)
			})
		})
	})

	return r
}

// dependencyStatus is one backing service in the health response.
type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth returns the server health status. A failing optional
// dependency degrades the status but keeps the response 200; a failing
// database makes it 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps := map[string]dependencyStatus{
		"mqtt":     s.checkDependency(r.Context(), s.mqtt),
		"influxdb": s.checkDependency(r.Context(), s.influx),
	}

	status, code := "ok", http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			deps["database"] = dependencyStatus{Status: "down", Error: err.Error()}
			status, code = "down", http.StatusServiceUnavailable
		} else {
			deps["database"] = dependencyStatus{Status: "ok"}
		}
	}
	if code == http.StatusOK {
		for _, d := range deps {
			if d.Status == "down" {
				status = "degraded"
			}
		}
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"version":      s.version,
		"dependencies": deps,
	})
}

func (s *Server) checkDependency(ctx context.Context, d Dependency) dependencyStatus {
	if d == nil {
		return dependencyStatus{Status: "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := d.HealthCheck(ctx); err != nil {
		return dependencyStatus{Status: "down", Error: err.Error()}
	}
	return dependencyStatus{Status: "ok"}
}
