package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"

	"atelier/internal/http/handlers"
	"atelier/internal/infra"
	"atelier/internal/middleware"
)

// NewRouter wires the HTTP surface. Everything under /api requires an
// authenticated user context; health stays open for probes.
func NewRouter(app *handlers.App, cfg *infra.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

	r.Get("/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.UserID)

		r.Get("/credits", app.CreditsBalance)
		r.Get("/history", app.HistoryList)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", app.CampaignsGenerate)
			r.Get("/{campaign_id}", app.CampaignStatus)
			r.Get("/{campaign_id}/assets.zip", app.CampaignAssetsZip)
			r.Post("/{campaign_id}/items/{item_id}/regenerate", app.CampaignRegenerate)
		})
	})

	return r
}
