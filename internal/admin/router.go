package admin

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates the admin router, mounted at /admin by the caller.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.SessionMiddleware)

		r.Get("/dashboard", h.HandleDashboard)

		r.Post("/import/upload", h.HandleImportUpload)
		r.Post("/import/manual", h.HandleImportManual)
		r.Get("/import/runs", h.HandleListImportRuns)

		r.Get("/tokens", h.HandleListTokens)
		r.Post("/tokens", h.HandleCreateToken)
		r.Post("/tokens/{id}/toggle", h.HandleToggleToken)
		r.Delete("/tokens/{id}", h.HandleDeleteToken)

		r.Post("/loglevel", h.HandleSetLogLevel)
	})

	return r
}
