/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the web frontend

ROUTE GROUPS:
  /api/auth/*       Login and logout for all three roles
  /api/accounts/*   Balances, movements, and employee account management
  /api/profiles/*   Customer profile management
  /api/logs         Audit log (employee only)

AUTHENTICATION:
  Every route except the logins and profile signup expects a bearer session
  id in the Authorization header. Role checks happen in the handlers, not
  here, so the router stays a pure URL map.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/bankd/main.go: Server startup
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

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/employee-login", h.EmployeeLogin)
			r.Post("/customer-login", h.CustomerLogin)
			r.Post("/atm-login", h.ATMLogin)
			r.Post("/logout", h.Logout)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/balance", h.GetBalance)
			r.Post("/deposit", h.Deposit)
			r.Post("/withdraw", h.Withdraw)
			r.Post("/transfer", h.Transfer)
			r.Post("/update-pin", h.UpdatePin)
			r.Post("/create", h.CreateAccount)
			r.Post("/remove", h.RemoveAccount)
			r.Get("/search", h.SearchAccount)
			r.Post("/link", h.LinkAccount)
		})

		// Profile routes
		r.Route("/profiles", func(r chi.Router) {
			r.Post("/create", h.CreateProfile)
			r.Post("/update", h.UpdateProfile)
			r.Get("/search", h.SearchProfile)
		})

		// Audit routes
		r.Get("/logs", h.GetLogs)
	})

	return r
}
