// Package web provides the HTTP API: event tracking, analytics queries,
// retention sweeps, performance reports, and health.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/app"
	"github.com/ambrood/sitepulse/pkg/respond"
	"github.com/ambrood/sitepulse/ports"
)

// Handler provides the API endpoints.
type Handler struct {
	ingest    *app.IngestService
	analytics *app.AnalyticsService
	retention *app.RetentionService
	reporter  *app.PerformanceReporter
	store     ports.AnalyticsStore
	clock     ports.Clock
	logger    zerolog.Logger
	metrics   http.Handler // nil disables /metrics
	version   string
}

// Deps contains dependencies for the API handler.
type Deps struct {
	Ingest    *app.IngestService
	Analytics *app.AnalyticsService
	Retention *app.RetentionService
	Reporter  *app.PerformanceReporter
	Store     ports.AnalyticsStore
	Clock     ports.Clock
	Logger    zerolog.Logger
	Metrics   http.Handler
	Version   string
}

// NewHandler creates the API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		ingest:    deps.Ingest,
		analytics: deps.Analytics,
		retention: deps.Retention,
		reporter:  deps.Reporter,
		store:     deps.Store,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		version:   deps.Version,
	}
}

// Router returns the API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Unknown paths get the JSON error envelope, not chi's plain-text 404.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.WriteError(w, respond.NotFound("not found"))
	})

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/track", h.Track)
		r.Get("/analytics", h.Analytics)
		r.Post("/retention/sweep", h.RetentionSweep)
		r.Get("/performance", h.Performance)
	})

	return r
}
