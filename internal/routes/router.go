package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"skywatch/indexer/internal/api"
	"skywatch/indexer/internal/db/repositories"
	"skywatch/indexer/internal/index"
	"skywatch/indexer/internal/jobs"
	"skywatch/indexer/internal/logging"
	"skywatch/indexer/internal/metrics"
	"skywatch/indexer/internal/middleware"
)

// RegisterRoutes wires the admin API router
func RegisterRoutes(
	metricsReg *metrics.MetricsRegistry,
	syncJob *jobs.FlightSyncJob,
	historyRepo *repositories.CycleHistoryRepo,
	writer index.Writer,
	cycleStore api.Pinger,
	jwtSecret []byte,
	upSince time.Time,
) http.Handler {

	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.MetricsMiddleware(metricsReg))
	r.Use(middleware.RateLimitMiddleware(1, 5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:8081"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	logging.Info("Router initialized with metrics and rate-limit middleware")

	// health check
	r.Get("/healthCheck", api.HealthCheckHandler(cycleStore, upSince))

	cyclesHandler := api.NewCyclesHandler(syncJob, historyRepo)

	r.Get("/api/v1/flights/{flight_id}", api.FlightLookupHandler(writer))

	r.Route("/api/v1/cycles", func(r chi.Router) {
		r.Get("/latest", cyclesHandler.LatestCycle())

		// Manual triggers mutate the index; keep them behind auth
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtSecret))
			r.Post("/run", cyclesHandler.TriggerCycle())
		})
	})

	return r
}
