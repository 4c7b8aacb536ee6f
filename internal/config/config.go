package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	APIKey          string
	CallbackURL     string
	NatsURL         string
	NatsToken       string
}

func Load() Config {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	return Config{
		Port:            envInt("LURE_PORT", 8080),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("LURE_MODEL", "claude-sonnet-4-20250514"),
		APIKey:          envStr("LURE_API_KEY", ""),
		CallbackURL:     envStr("CALLBACK_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
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
