package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wlt-go/wlt/src/internal/metrics"
)

// NewRouter creates the HTTP router serving the page, the JSON API and health.
// Metrics are served on metricsPath unless it is empty.
func NewRouter(h *Handler, m *metrics.Metrics, metricsPath string) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(Recovery)
	r.Use(Logger(m))

	// Selection page
	r.Get("/", h.Page)
	r.Post("/open", h.Open)
	r.Post("/close", h.Close)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CORS(h.corsOrigins))
		r.Use(JSONContentType)

		r.Get("/outlets", h.GetOutlets)
		r.Put("/outlets/{group}", h.ApplyOutlet)

		r.Get("/status", h.GetStatus)

		r.Post("/selection", h.ApplySelection)
		r.Delete("/selection", h.ResetSelection)
	})

	// Health check endpoint
	r.Get("/health", h.CheckHealth)

	if metricsPath != "" && m != nil {
		r.Handle(metricsPath, m.Handler())
	}

	return r
}
