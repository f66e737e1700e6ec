/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/cards/*          Card registry, charges, usage
  /api/invoices/*       Invoices and payments
  /api/transactions     Payment ledger
  /api/audit            Used-vs-charges drift report
  /api/obligations/*    Fixed bills and card invoices together
  /health               Liveness check

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Card routes
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.CreateCard)
			r.Get("/{id}", h.GetCard)
			r.Put("/{id}", h.UpdateCard)
			r.Delete("/{id}", h.DeleteCard)
			r.Get("/{id}/usage", h.GetUsage)
			r.Get("/{id}/invoices", h.ListCardInvoices)
			r.Get("/{id}/charges", h.ListCardCharges)
			r.Get("/{id}/forecast", h.GetForecast)
			r.Post("/{id}/charges", h.CreateCharge)
			r.Post("/{id}/reconcile", h.ReconcileCard)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/pay", h.PayInvoice)
			r.Post("/{id}/recompute", h.RecomputeTotal)
			r.Post("/{id}/charges/{chargeID}/pay", h.PayCharge)
			r.Put("/{id}/charges/{chargeID}", h.EditCharge)
			r.Delete("/{id}/charges/{chargeID}", h.DeleteCharge)
		})

		r.Get("/transactions", h.ListTransactions)
		r.Get("/audit", h.GetAudit)

		// Obligation routes
		r.Route("/obligations", func(r chi.Router) {
			r.Post("/", h.ListObligations)
			r.Post("/pay", h.PayObligation)
		})
	})

	return r
}
