package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fourone/rnc-api/internal/metrics"
	"github.com/fourone/rnc-api/internal/middleware"
)

// DefaultMaxBodyBytes limits public API request bodies.
const DefaultMaxBodyBytes = 64 << 10

// RouterOptions wires the collaborators of the public router.
type RouterOptions struct {
	// Admission gates every /api route except /api/status.
	Admission func(http.Handler) http.Handler
	// Admin is mounted at /admin when set.
	Admin             http.Handler
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

// NewRouter creates the root router: public API, probes and the admin mount.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(opts.TrustProxyHeaders))
	r.Use(metrics.Middleware)
	r.Use(middleware.HTTPLogging(logger))

	r.NotFound(HandleNotFound)
	r.MethodNotAllowed(HandleMethodNotAllowed)

	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.MaxBodySize(DefaultMaxBodyBytes))

		r.Get("/status", h.HandleStatus)

		r.Group(func(r chi.Router) {
			if opts.Admission != nil {
				r.Use(opts.Admission)
			}
			r.Get("/validate/{rnc}", h.HandleValidate)
			r.Get("/info/{rnc}", h.HandleInfo)
			r.Post("/search", h.HandleSearch)
			r.Get("/search-by-name", h.HandleSearchByName)
		})
	})

	if opts.Admin != nil {
		r.Mount("/admin", opts.Admin)
	}

	return r
}
