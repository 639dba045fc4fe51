// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret        string
	SessionTTLMinutes int

	AssistantEndpoint        string
	AssistantModel           string
	AssistantTimeoutSeconds  int
	AssistantCacheTTLSeconds int
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AuthSecret:        os.Getenv("AUTH_SECRET"),
		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 12*60),

		AssistantEndpoint:        getEnv("ASSISTANT_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		AssistantModel:           getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
		AssistantTimeoutSeconds:  getEnvInt("ASSISTANT_TIMEOUT_SECONDS", 20),
		AssistantCacheTTLSeconds: getEnvInt("ASSISTANT_CACHE_TTL_SECONDS", 300),
	}
}

func (c Config) Address() string {
	return ":" + c.Port
}

func getEnv(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
