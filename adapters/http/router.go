package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	"github.com/artpar/pulse/adapters/metrics"
	_ "github.com/artpar/pulse/docs/swagger" // swagger docs
)

// DefaultRequestTimeout bounds every request.
const DefaultRequestTimeout = 60 * time.Second

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unmounted.
type RouterConfig struct {
	Ingest    *IngestHandler
	Analytics *AnalyticsHandler
	Exports   *ExportsHandler
	Costs     *CostsHandler
	Health    *HealthHandler
	Auth      *Auth

	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Optional /metrics handler (default promhttp)
	MetricsPath    string       // Defaults to /metrics
	AdminHandler   http.Handler // Optional admin API, mounted at /admin
	EnableOpenAPI  bool
	Version        string
	RequestTimeout time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints (no auth required)
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/version", VersionHandler(cfg.Version))

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	if cfg.EnableOpenAPI {
		r.Get("/.well-known/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			doc, err := swag.ReadDoc()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write([]byte(doc))
		})
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/.well-known/openapi.json"),
		))
	}

	if cfg.AdminHandler != nil {
		r.Mount("/admin", cfg.AdminHandler)
	}

	if cfg.Auth == nil {
		return r
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Ingest != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.Auth.RequireKey)
				r.Post("/events/batch", cfg.Ingest.Batch)
				r.Post("/events", cfg.Ingest.Event)
			})
		}

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Use(cfg.Auth.RequireProject)

			if cfg.Analytics != nil {
				r.Get("/analytics/{metric}", cfg.Analytics.Metric)
				r.Get("/rollups", cfg.Analytics.Rollups)
				r.Get("/reports/weekly", cfg.Analytics.WeeklyReport)
			}
			if cfg.Exports != nil {
				r.Post("/exports", cfg.Exports.Create)
				r.Get("/exports", cfg.Exports.List)
				r.Get("/exports/{id}", cfg.Exports.Get)
				r.Delete("/exports/{id}", cfg.Exports.Delete)
			}
		})

		if cfg.Costs != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.Auth.RequireAdmin)
				r.Post("/costs", cfg.Costs.Track)
				r.Get("/costs/{scope}/{id}", cfg.Costs.Summary)
				r.Get("/costs/{scope}/{id}/budget", cfg.Costs.Budget)
			})
		}
	})

	return r
}
