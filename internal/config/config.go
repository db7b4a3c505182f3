// Package config reads all server settings from the environment, with a
// .env file loaded first when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/chattitude/chattitude/internal/scoring"
)

// Config carries everything the server reads from the environment.
type Config struct {
	ListenAddr string
	ViewsDir   string

	// Redis; empty RedisAddr selects the in-memory store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// Classification oracle.
	OracleEndpoint  string
	OracleModel     string
	OracleAPIKey    string
	OracleMaxTokens int
	OracleTimeout   time.Duration

	// Game tuning.
	Rules            scoring.Rules
	CountdownSeconds int
	ThinkingDelay    time.Duration
	MessageDelay     time.Duration
}

// Load reads the configuration. Every value has a default; only the oracle
// API key is genuinely deployment-specific.
func Load() Config {
	_ = godotenv.Load()

	rules := scoring.DefaultRules()
	rules.ConfidenceGate = envInt("SCORE_CONFIDENCE_GATE", rules.ConfidenceGate)
	rules.DestructivePenalty = envInt("SCORE_DESTRUCTIVE_PENALTY", rules.DestructivePenalty)
	rules.ConstructiveReward = envInt("SCORE_CONSTRUCTIVE_REWARD", rules.ConstructiveReward)
	rules.DetailThreshold = envInt("SCORE_DETAIL_THRESHOLD", rules.DetailThreshold)

	return Config{
		ListenAddr: envStr("LISTEN_ADDR", ":3000"),
		ViewsDir:   envStr("VIEWS_DIR", "./static"),

		RedisAddr:     envStr("REDIS_ADDR", ""),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		SessionTTL:    envDuration("SESSION_TTL", 24*time.Hour),

		OracleEndpoint:  envStr("ORACLE_ENDPOINT", "https://api.anthropic.com/v1/messages"),
		OracleModel:     envStr("ORACLE_MODEL", "claude-sonnet-4-20250514"),
		OracleAPIKey:    envStr("ANTHROPIC_API_KEY", ""),
		OracleMaxTokens: envInt("ORACLE_MAX_TOKENS", 1000),
		OracleTimeout:   envDuration("ORACLE_TIMEOUT", 30*time.Second),

		Rules:            rules,
		CountdownSeconds: envInt("SEND_COUNTDOWN_SECONDS", 10),
		ThinkingDelay:    envDuration("DEMO_THINKING_DELAY", 2*time.Second),
		MessageDelay:     envDuration("DEMO_MESSAGE_DELAY", 3*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
