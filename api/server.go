/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique ID per request for tracing
  4. CORS:       cross-origin requests for the resident/guard frontends

ROUTE GROUPS:
  /api/outpasses/*   lifecycle (submit, decide, regenerate, details)
  /api/students/*    per-student views and the reconcile repair op
  /api/mess/*        food pause record and rebate
  /api/scan/*        checkpoint gateway (out, in, verify)
  /api/security/*    guard dashboard

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/outpasses", func(r chi.Router) {
			r.Post("/", h.Submit)
			r.Get("/{id}", h.GetPass)
			r.Put("/{id}/approve", h.Approve)
			r.Put("/{id}/reject", h.Reject)
			r.Post("/{id}/regenerate", h.Regenerate)
		})

		r.Route("/students", func(r chi.Router) {
			r.Post("/", h.RegisterStudent)
			r.Get("/{roll}/outpasses/current", h.CurrentPasses)
			r.Get("/{roll}/outpasses/history", h.History)
			r.Post("/{roll}/reconcile", h.Reconcile)
		})

		r.Route("/mess", func(r chi.Router) {
			r.Get("/pause/{roll}", h.GetPause)
			r.Get("/rebate/{roll}", h.GetRebate)
		})

		r.Route("/scan", func(r chi.Router) {
			r.Post("/out", h.ScanOut)
			r.Post("/in", h.ScanIn)
			r.Post("/verify", h.Verify)
		})

		r.Route("/security", func(r chi.Router) {
			r.Get("/active", h.ActivePasses)
			r.Get("/stats", h.SecurityStats)
		})
	})

	return r
}
