package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skywatch/indexer/internal/api"
	"skywatch/indexer/internal/common"
	"skywatch/indexer/internal/config"
	"skywatch/indexer/internal/db"
	"skywatch/indexer/internal/db/repositories"
	"skywatch/indexer/internal/index"
	"skywatch/indexer/internal/jobs"
	"skywatch/indexer/internal/logging"
	"skywatch/indexer/internal/metrics"
	"skywatch/indexer/internal/providers"
	"skywatch/indexer/internal/routes"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("Indexer starting up",
		"environment", cfg.AppEnv,
		"index_backend", cfg.IndexBackend,
		"cycle_interval", cfg.CycleInterval.String(),
	)

	// Flight detail cache: Redis when configured, in-memory otherwise
	var cache common.CacheInterface
	if cfg.RedisAddr != "" {
		redisCache, err := common.NewRedisCacheService(common.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword))
		if err != nil {
			logging.Error("Failed to connect to Redis, falling back to in-memory cache", "error", err.Error())
			cache = common.NewCacheService(30*time.Second, time.Minute)
		} else {
			cache = redisCache
		}
	} else {
		cache = common.NewCacheService(30*time.Second, time.Minute)
	}
	defer cache.Close()

	provider := providers.NewOpenSkyProvider(
		cfg.UpstreamBaseURL, cfg.UpstreamUsername, cfg.UpstreamPassword, cache)
	provider.Token = cfg.UpstreamToken

	metricsReg := metrics.NewMetricsRegistry()

	// Index writer backend
	var writer index.Writer
	switch cfg.IndexBackend {
	case "postgres":
		if err := db.InitPostgres(cfg.PostgresDSN); err != nil {
			logging.Error("Failed to connect to Postgres", "error", err.Error())
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		pgWriter := index.NewPostgresWriter(db.DB)
		pgWriter.Metrics = metricsReg
		writer = pgWriter
	default:
		esWriter := index.NewElasticWriter(
			cfg.ElasticHost, cfg.ElasticIndex, cfg.ElasticUser, cfg.ElasticPass)
		esWriter.Metrics = metricsReg
		writer = esWriter
	}

	ctx := context.Background()
	if err := writer.EnsureIndex(ctx); err != nil {
		// The store may come up later; upserts retry EnsureIndex themselves
		logging.Warn("Index bootstrap failed, will retry on first write", "error", err.Error())
	}

	// Cycle history store
	ormDB, err := db.InitORM(cfg.CycleStoreDSN)
	if err != nil {
		logging.Error("Failed to connect to cycle store", "error", err.Error())
		log.Fatalf("Failed to connect to cycle store: %v", err)
	}
	historyRepo := repositories.NewCycleHistoryRepo(ormDB)
	if err := historyRepo.Migrate(); err != nil {
		log.Fatalf("Failed to migrate cycle history: %v", err)
	}

	cycleCfg := jobs.DefaultCycleConfig()
	cycleCfg.MaxConcurrency = cfg.MaxConcurrency
	cycleCfg.MaxRetries = cfg.MaxRetries
	cycleCfg.PerItemTimeout = cfg.PerItemTimeout
	cycleCfg.CycleTimeout = cfg.CycleTimeout

	processor := jobs.NewFlightProcessor(provider, writer)
	syncJob := jobs.NewFlightSyncJob(provider, processor, historyRepo, metricsReg, cycleCfg)

	// Scheduled cycles run for the life of the process
	go syncJob.RunScheduled(ctx, cfg.CycleInterval)

	var cycleStorePinger api.Pinger
	if sqlDB, err := ormDB.DB(); err == nil {
		cycleStorePinger = sqlDB
	}

	upSince := time.Now()
	router := routes.RegisterRoutes(
		metricsReg, syncJob, historyRepo, writer, cycleStorePinger, []byte(cfg.JWTSecret), upSince)

	// Metrics endpoint lives outside the Chi router
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)
	logging.Info("Prometheus metrics endpoint registered at /metrics")

	logging.Info("Server starting",
		"port", cfg.Port,
		"environment", cfg.AppEnv,
	)

	log.Printf("Starting server on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, mux))
}
