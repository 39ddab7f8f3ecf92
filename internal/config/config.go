package config

import (
	"os"
	"strings"
)

// Config holds the application configuration. The orchestrator is
// stateless apart from the optional usage ledger database.
type Config struct {
	// Environment
	Environment string
	Port        string

	// LLM CLI subprocess settings
	LLMBinary      string   // CLI binary spawned per agent turn
	LLMProfile     string   // optional --profile for first turns
	LLMOverrides   []string // -c key=val config overrides
	DefaultModel   string   // model when a persona has no override
	AllowedOrigins []string // CORS origins for the push channel
	DatabaseURL    string   // optional Postgres DSN for the usage ledger

	// Observability
	SentryDSN         string
	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseHost      string
	LangfuseEnabled   bool
}

func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		LLMBinary:         getEnv("LLM_BINARY", "llm"),
		LLMProfile:        getEnv("LLM_PROFILE", ""),
		LLMOverrides:      splitList(getEnv("LLM_CONFIG_OVERRIDES", "")),
		DefaultModel:      getEnv("DEFAULT_MODEL", "gpt-5-mini"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:      getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:   getEnv("LANGFUSE_ENABLED", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
