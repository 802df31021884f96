package config

import (
	"os"
)

// Config holds the process-level (ambient) configuration for the
// replay/feed binaries: where bar history and bsp history live, and
// where the feed and metrics servers listen. Per-layer analyzer
// configuration lives in chanconfig, not here.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	FeedAddr      string

	// ReplaySymbol selects which symbol's rows of the bars table to replay.
	ReplaySymbol string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		FeedAddr:      getEnv("FEED_ADDR", ":8090"),

		ReplaySymbol: getEnv("REPLAY_SYMBOL", "default"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
