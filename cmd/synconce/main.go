package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"skywatch/indexer/internal/common"
	"skywatch/indexer/internal/config"
	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/db"
	"skywatch/indexer/internal/index"
	"skywatch/indexer/internal/jobs"
	"skywatch/indexer/internal/logging"
	"skywatch/indexer/internal/providers"
)

// synconce runs a single ingestion cycle and prints the summary as JSON,
// for cron-style schedulers that prefer one process per cycle.
func main() {
	cfg := config.Load()

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	cache := common.NewCacheService(30*time.Second, time.Minute)
	provider := providers.NewOpenSkyProvider(
		cfg.UpstreamBaseURL, cfg.UpstreamUsername, cfg.UpstreamPassword, cache)
	provider.Token = cfg.UpstreamToken

	var writer index.Writer
	switch cfg.IndexBackend {
	case "postgres":
		if err := db.InitPostgres(cfg.PostgresDSN); err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		writer = index.NewPostgresWriter(db.DB)
	default:
		writer = index.NewElasticWriter(
			cfg.ElasticHost, cfg.ElasticIndex, cfg.ElasticUser, cfg.ElasticPass)
	}

	cycleCfg := jobs.DefaultCycleConfig()
	cycleCfg.MaxConcurrency = cfg.MaxConcurrency
	cycleCfg.MaxRetries = cfg.MaxRetries
	cycleCfg.PerItemTimeout = cfg.PerItemTimeout
	cycleCfg.CycleTimeout = cfg.CycleTimeout

	processor := jobs.NewFlightProcessor(provider, writer)
	syncJob := jobs.NewFlightSyncJob(provider, processor, nil, nil, cycleCfg)

	result, err := syncJob.RunCycle(context.Background(), cycleCfg, constants.TriggerOneShot)
	if err != nil {
		log.Fatalf("Cycle failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}
