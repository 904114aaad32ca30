package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all runtime configuration for the indexer, loaded from
// environment variables at startup.
type Config struct {
	AppEnv string
	Port   string

	// Upstream flight data source (OpenSky-compatible)
	UpstreamBaseURL  string
	UpstreamUsername string
	UpstreamPassword string
	UpstreamToken    string

	// Index store
	IndexBackend  string // "elastic" or "postgres"
	ElasticHost   string
	ElasticIndex  string
	ElasticUser   string
	ElasticPass   string
	PostgresDSN   string
	CycleStoreDSN string // gorm DSN for cycle history; "sqlite:<path>" for local runs

	// Redis (optional; in-memory cache is used when empty)
	RedisAddr     string
	RedisPassword string

	// Cycle behavior
	CycleInterval  time.Duration
	MaxConcurrency int
	MaxRetries     int
	PerItemTimeout time.Duration
	CycleTimeout   time.Duration

	// Admin API
	JWTSecret string
}

// Load reads configuration from the environment, applying defaults suitable
// for local development.
func Load() *Config {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		UpstreamBaseURL:  getEnv("UPSTREAM_BASE_URL", "https://opensky-network.org/api"),
		UpstreamUsername: os.Getenv("UPSTREAM_USERNAME"),
		UpstreamPassword: os.Getenv("UPSTREAM_PASSWORD"),
		UpstreamToken:    os.Getenv("UPSTREAM_TOKEN"),
		IndexBackend:     getEnv("INDEX_BACKEND", "elastic"),
		ElasticHost:      getEnv("ES_HOST", "http://localhost:9200"),
		ElasticIndex:     getEnv("ES_INDEX", "flights"),
		ElasticUser:      getEnv("ES_USER", "elastic"),
		ElasticPass:      os.Getenv("ES_PASSWORD"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		CycleInterval:    getDuration("CYCLE_INTERVAL", 5*time.Minute),
		MaxConcurrency:   getInt("MAX_CONCURRENCY", 10),
		MaxRetries:       getInt("MAX_RETRIES", 2),
		PerItemTimeout:   getDuration("PER_ITEM_TIMEOUT", 15*time.Second),
		CycleTimeout:     getDuration("CYCLE_TIMEOUT", 10*time.Minute),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-do-not-use"),
	}

	host := getEnv("PG_HOST", "localhost")
	port := getEnv("PG_PORT", "5432")
	user := getEnv("PG_USER", "postgres")
	dbname := getEnv("PG_DB", "skywatch")
	password := os.Getenv("PG_PASSWORD")
	cfg.PostgresDSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, dbname)
	cfg.CycleStoreDSN = getEnv("CYCLE_STORE_DSN", cfg.PostgresDSN)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
