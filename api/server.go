/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the desktop/web front

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Case routes
		r.Route("/affaires", func(r chi.Router) {
			r.Get("/", h.ListAffaires)
			r.Post("/", h.CreateAffaire)
			r.Get("/{numero}", h.GetAffaire)
			r.Get("/{numero}/balance", h.GetBalance)
			r.Get("/{numero}/encaissements", h.ListEncaissements)
			r.Post("/{numero}/encaissements", h.RecordEncaissement)
		})

		// Payment routes
		r.Route("/encaissements", func(r chi.Router) {
			r.Get("/{reference}", h.GetEncaissement)
			r.Post("/{reference}/valider", h.ValiderEncaissement)
			r.Post("/{reference}/rejeter", h.RejeterEncaissement)
		})

		// Mandate routes
		r.Route("/mandats", func(r chi.Router) {
			r.Get("/", h.ListMandats)
			r.Post("/", h.CreateMandat)
			r.Get("/actif", h.GetActiveMandat)
			r.Get("/actif/statistiques", h.GetActiveStatistiques)
			r.Post("/{numero}/activer", h.ActiverMandat)
			r.Post("/{numero}/cloturer", h.CloturerMandat)
			r.Get("/{numero}/statistiques", h.GetStatistiques)
		})

		// Offender routes
		r.Route("/contrevenants", func(r chi.Router) {
			r.Post("/", h.CreateContrevenant)
			r.Get("/{code}", h.GetContrevenant)
		})

		// Reference data routes
		r.Route("/referentiels", func(r chi.Router) {
			r.Get("/{kind}", h.ListFiches)
			r.Post("/{kind}", h.SaveFiche)
			r.Get("/{kind}/{code}", h.GetFiche)
		})

		r.Get("/health", h.Health)
	})

	return r
}
