/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, attached to error logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /healthz              Liveness + database ping
  /metrics              Prometheus metrics
  /api/*                Admin API, X-Admin-ID required
  /api/statistics       Dashboard summary
  /api/reset            Database reset (only when Options.AllowReset)
  /api/scenarios/*      Demo data loaders (only when Options.AllowReset)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures NewRouter.
type Options struct {
	CORSOrigins []string
	AllowReset  bool
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireAdmin)

		// Teacher routes
		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)
			r.Get("/{id}", h.GetTeacher)
			r.Get("/{id}/timetable", h.GetTimetable)
			r.Get("/{id}/ranks", h.ListTeacherRanks)
			r.Post("/{id}/ranks", h.CreateTeacherRank)
			r.Get("/{id}/periods", h.ListTeacherPeriods)
		})

		// Timetable routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Delete("/{id}", h.DeleteSession)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		// Absence routes
		r.Route("/absences", func(r chi.Router) {
			r.Get("/", h.ListAbsences)
			r.Post("/", h.CreateAbsence)
			r.Patch("/{id}/catch-up", h.ToggleCatchUp)
		})

		// Catalogue routes
		r.Route("/ranks", func(r chi.Router) {
			r.Get("/", h.ListRanks)
			r.Post("/", h.CreateRank)
		})
		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
		})

		// Sheet routes
		r.Route("/sheets", func(r chi.Router) {
			r.Post("/", h.CreateSheet)
			r.Post("/preview", h.PreviewSheet)
			r.Get("/totals", h.SheetTotals)
			r.Get("/{id}", h.GetSheet)
			r.Put("/{id}", h.RecalculateSheet)
		})

		r.Get("/statistics", h.Statistics)

		// Dev only
		if opts.AllowReset {
			r.Post("/reset", h.ResetDatabase)
			r.Get("/scenarios", h.ListScenarios)
			r.Get("/scenarios/current", h.GetCurrentScenario)
			r.Post("/scenarios/load", h.LoadScenario)
		}
	})

	return r
}
