// In file: cmd/gateway/config.go
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dileep-u-k/mcp-gateway/internal/cache"
	"github.com/dileep-u-k/mcp-gateway/internal/llm"
	"github.com/dileep-u-k/mcp-gateway/internal/router"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration for the gateway, loaded from the
// environment and the provider definition file.
type AppConfig struct {
	Port            string
	GeminiAPIKey    string
	GeminiModel     string
	RedisAddr       string
	HistoryDBPath   string
	ProvidersFile   string
	Providers       []router.ProviderSpec
	LogLevel        string
	LogFormat       string
	OTELEndpoint    string
	OTELEnvironment string

	RouteTimeout      time.Duration
	CandidateTimeout  time.Duration
	ReconnectInterval time.Duration
	CacheTTL          time.Duration
	HistoryRetention  time.Duration
}

// LoadConfig loads all configuration from a .env file, environment variables,
// and the providers YAML file.
func LoadConfig() (*AppConfig, error) {
	// A .env file is only read for local development. In containers
	// (GIN_MODE="release") configuration arrives as environment variables.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("WARNING: No .env file found for local development.")
		}
	}

	cfg := &AppConfig{
		Port:            envOr("PORT", "8080"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     envOr("GEMINI_MODEL", llm.DefaultModel),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		HistoryDBPath:   os.Getenv("HISTORY_DB_PATH"),
		ProvidersFile:   envOr("PROVIDERS_FILE", "providers.yaml"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "console"),
		OTELEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELEnvironment: envOr("OTEL_ENVIRONMENT", "development"),

		RouteTimeout:      envDuration("ROUTE_TIMEOUT", router.DefaultRouteTimeout),
		CandidateTimeout:  envDuration("CANDIDATE_TIMEOUT", router.DefaultCandidateTimeout),
		ReconnectInterval: envDuration("RECONNECT_INTERVAL", 0),
		CacheTTL:          envDuration("CACHE_TTL", cache.DefaultTTL),
		HistoryRetention:  envDuration("HISTORY_RETENTION", 7*24*time.Hour),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}

	providers, err := loadProviders(cfg.ProvidersFile, os.Getenv("PROVIDERS_FILE") != "")
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	return cfg, nil
}

// loadProviders reads the provider definition file. A missing file at the
// default path leaves the registry empty; a missing file at an explicitly
// configured path is an error.
func loadProviders(path string, explicit bool) ([]router.ProviderSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			log.Printf("WARNING: No provider file at %s, starting with an empty registry.", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read provider file %s: %w", path, err)
	}

	// ${VAR} references in commands, args and URLs resolve against the
	// environment before parsing.
	expanded := os.ExpandEnv(string(raw))

	var file struct {
		Providers []router.ProviderSpec `yaml:"providers"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse provider file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Providers))
	for _, spec := range file.Providers {
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate provider name %q in %s", spec.Name, path)
		}
		seen[spec.Name] = true
	}

	return file.Providers, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Plain integers are treated as seconds.
		if secs, secErr := strconv.Atoi(v); secErr == nil {
			return time.Duration(secs) * time.Second
		}
		log.Printf("WARNING: Invalid duration %q for %s, using default %s.", v, key, fallback)
		return fallback
	}
	return d
}
