package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	apphandlers "contentengine/internal/http/handlers"
	"contentengine/internal/middleware"
)

// NewRouter mounts the v1 API.
func NewRouter(app *apphandlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		handlers.CompressHandler,
	)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(app.GenerateLimit, time.Minute))
			r.Post("/generate", app.Generate)
			r.Post("/generate-and-publish", app.GenerateAndPublish)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Post("/", app.CreateJob)
			r.Get("/{id}", app.GetJob)
			r.Post("/{id}/run", app.RunJob)
			r.Post("/{id}/approve", app.ApproveJob)
		})

		r.Get("/debug/provider", app.ProviderStatus)
		r.Get("/debug/models", app.ProviderModels)
		r.Get("/metrics", app.MetricsSnapshot)
	})

	return r
}
