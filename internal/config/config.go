// Package config loads process-wide configuration: best-effort .env
// via godotenv, then typed getters over os.Getenv with defaults,
// logged (never fatal) when no .env file is present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/taprace/matchmaker/internal/matchmaker"
)

// Config holds every runtime setting the server needs: the matchmaker
// tuning constants, the transport bind address, the JWT verification
// secret (internal/identity), and the optional outbound Redis address
// (internal/outbox).
type Config struct {
	Matchmaker matchmaker.Config

	ListenAddr   string
	JWTSecret    string
	RedisAddr    string
	RedisChannel string
}

// Load reads configuration from the environment. godotenv.Load() is
// best-effort, falling back to whatever is already in the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	return Config{
		Matchmaker: matchmaker.Config{
			MatchSize:          envInt("MATCH_SIZE", 2),
			MatchDuration:      envMillis("MATCH_DURATION_MS", 30000),
			StartDelay:         envMillis("START_DELAY_MS", 2000),
			CleanupDelay:       envMillis("CLEANUP_DELAY_MS", 5000),
			MaxTapsPerSecond:   envInt("MAX_TAPS_PER_SECOND", 10),
			TapClockSkewWindow: envMillis("TAP_CLOCK_SKEW_WINDOW_MS", 100),
		},
		ListenAddr:   envString("LISTEN_ADDR", ":8080"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: envString("REDIS_MATCH_RESULTS_CHANNEL", "match_results"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer env var, using default")
		return fallback
	}
	return n
}

func envMillis(key string, fallbackMs int) time.Duration {
	return time.Duration(envInt(key, fallbackMs)) * time.Millisecond
}
