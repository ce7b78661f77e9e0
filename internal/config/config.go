package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderSimulated = "simulated"
)

const defaultSystemPrompt = "You are a helpful, concise assistant. Answer in plain text."

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel  string
	LogFormat string

	// Upstream
	Provider         string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GeminiAPIKey     string
	Model            string
	SystemPrompt     string
	Temperature      float32
	FrequencyPenalty float32
	UpstreamTimeout  time.Duration

	// Relay
	Streaming bool

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	provider := strings.ToLower(getEnvOrDefault("PROVIDER", ProviderOpenAI))

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "3030"),
		Env:              getEnvOrDefault("ENV", "development"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "console"),
		Provider:         provider,
		OpenAIBaseURL:    getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:            getEnvOrDefault("MODEL", defaultModel(provider)),
		SystemPrompt:     getEnvOrDefault("SYSTEM_PROMPT", defaultSystemPrompt),
		Temperature:      getEnvAsFloatOrDefault("TEMPERATURE", 0.6),
		FrequencyPenalty: getEnvAsFloatOrDefault("FREQUENCY_PENALTY", 1.2),
		UpstreamTimeout:  getEnvAsDurationOrDefault("UPSTREAM_TIMEOUT", 120*time.Second),
		Streaming:        getEnvAsBoolOrDefault("STREAMING", false),
		FrontendURL:      getEnvOrDefault("FRONTEND_URL", "*"),
	}

	switch provider {
	case ProviderOpenAI:
		cfg.OpenAIAPIKey = mustGetEnv("OPENAI_API_KEY")
	case ProviderGemini:
		cfg.GeminiAPIKey = mustGetEnv("GEMINI_API_KEY")
	case ProviderSimulated:
	default:
		panic(fmt.Sprintf("unknown PROVIDER %q (supported: openai, gemini, simulated)", provider))
	}

	return cfg
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderSimulated:
		return "simulated"
	default:
		return "gpt-4o-mini"
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsFloatOrDefault(key string, defaultVal float32) float32 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return defaultVal
	}
	return float32(f)
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}
