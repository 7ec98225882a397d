package api

import (
	"context"
	"net/http"
	"property-distance-service/internal/api/handlers"
	"property-distance-service/internal/platform/obs"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Logger  zerolog.Logger
	Metrics *obs.Metrics
	// Served at /metrics; defaults to the default Prometheus registry.
	MetricsHandler http.Handler
	// Storage readiness check for /health; optional.
	HealthCheck func(ctx context.Context) error
	// Requests per minute per client IP on /api; <= 0 disables limiting.
	RateLimitPerMinute int
	CORSOrigins        []string
	MaxBatchSize       int
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(svc handlers.DistanceQuerier, cfg RouterConfig) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetricsForTesting()
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	health := &handlers.HealthHandler{Check: cfg.HealthCheck}
	distances := &handlers.DistanceHandler{Service: svc, MaxBatchSize: cfg.MaxBatchSize}

	r := chi.NewRouter()
	r.Use(requestLogger(cfg.Logger))
	r.Use(accessLog(cfg.Metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)

	r.Route("/api/distances", func(r chi.Router) {
		if len(cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.CORSOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
				ExposedHeaders: []string{requestIDHeader},
				MaxAge:         300,
			}))
		}
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}

		r.Get("/property/{propertyId}/poi/{poiId}", distances.Get)
		r.Post("/property/{propertyId}/pois", distances.Batch)
	})

	return r
}
