package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/boomcard-redemption/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса погашения.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", custommiddleware.TerminalTokenHeader},
		MaxAge:         300,
	}))

	r.Route("/redemption", func(r chi.Router) {
		r.Post("/issue", h.Issue)
		r.Get("/users/{userID}/transactions", h.GetTransactions)

		r.Group(func(r chi.Router) {
			r.Use(h.terminalAuth.Middleware)

			r.Post("/verify", h.Verify)
			r.Post("/finalize", h.Finalize)
			r.Post("/reconcile", h.Reconcile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
