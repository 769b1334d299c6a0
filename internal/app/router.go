package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gustavohsdd/araujo-ptc/internal/allocation"
	"github.com/Gustavohsdd/araujo-ptc/internal/ingest"
	"github.com/Gustavohsdd/araujo-ptc/internal/observability"
	"github.com/Gustavohsdd/araujo-ptc/internal/procurement"
	"github.com/Gustavohsdd/araujo-ptc/internal/reconcile"
	"github.com/Gustavohsdd/araujo-ptc/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	IngestHandler      *ingest.Handler
	ReconcileHandler   *reconcile.Handler
	AllocationHandler  *allocation.Handler
	ProcurementHandler *procurement.Handler
	JobHandler         *jobs.Handler
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with conciliador defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Error("readiness ping failed", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/ingestion", params.IngestHandler.MountRoutes)
		api.Route("/reconciliation", params.ReconcileHandler.MountRoutes)
		api.Route("/allocation", params.AllocationHandler.MountRoutes)
		api.Route("/procurement", params.ProcurementHandler.MountRoutes)
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
