// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Repository filter values accepted by SECRETS_FLEET_REPOSITORY_FILTER.
const (
	FilterAll      = "all"
	FilterPublic   = "public"
	FilterPrivate  = "private"
	FilterSpecific = "specific"
)

// Defaults for batch scheduling.
const (
	DefaultBatchSize          = 10
	DefaultMaxParallelBatches = 3
)

type Config struct {
	GitHubOwner         string
	GitHubToken         string
	GitHubAppID         string
	GitHubAppPrivateKey string

	RepositoryFilter   string
	SpecificRepos      []string
	SecretNames        []string
	ManifestPath       string
	BatchSize          int
	MaxParallelBatches int
	DryRun             bool

	ScheduleInterval time.Duration
	ListenAddr       string
	AWSRegion        string
	LogLevel         string

	MetricsNamespace         string
	MetricsCloudWatchEnabled bool
	MetricsPrometheusEnabled bool
	MetricsPrometheusPath    string
	MetricsDatadogEnabled    bool
	MetricsDatadogAddr       string
	MetricsDatadogTags       []string

	HistoryEnabled bool
	ValkeyAddr     string
	ValkeyPassword string
	ValkeyDB       int
	HistoryTTL     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		GitHubOwner:         getEnv("SECRETS_FLEET_GITHUB_OWNER", ""),
		GitHubToken:         getEnv("SECRETS_FLEET_GITHUB_TOKEN", ""),
		GitHubAppID:         getEnv("SECRETS_FLEET_GITHUB_APP_ID", ""),
		GitHubAppPrivateKey: getEnv("SECRETS_FLEET_GITHUB_APP_PRIVATE_KEY", ""),

		RepositoryFilter:   getEnv("SECRETS_FLEET_REPOSITORY_FILTER", FilterAll),
		SpecificRepos:      splitList(getEnv("SECRETS_FLEET_SPECIFIC_REPOS", "")),
		SecretNames:        splitList(getEnv("SECRETS_FLEET_SECRETS", "")),
		ManifestPath:       getEnv("SECRETS_FLEET_MANIFEST", ""),
		BatchSize:          getEnvInt("SECRETS_FLEET_BATCH_SIZE", DefaultBatchSize),
		MaxParallelBatches: getEnvInt("SECRETS_FLEET_MAX_PARALLEL_BATCHES", DefaultMaxParallelBatches),
		DryRun:             getEnv("SECRETS_FLEET_DRY_RUN", "false") == "true",

		ScheduleInterval: getEnvDuration("SECRETS_FLEET_SCHEDULE_INTERVAL", 0),
		ListenAddr:       getEnv("SECRETS_FLEET_LISTEN_ADDR", ":8080"),
		AWSRegion:        getEnv("AWS_REGION", "ap-northeast-1"),
		LogLevel:         getEnv("SECRETS_FLEET_LOG_LEVEL", "info"),

		MetricsNamespace:         getEnv("SECRETS_FLEET_METRICS_NAMESPACE", ""),
		MetricsCloudWatchEnabled: getEnv("SECRETS_FLEET_METRICS_CLOUDWATCH", "false") == "true",
		MetricsPrometheusEnabled: getEnv("SECRETS_FLEET_METRICS_PROMETHEUS", "false") == "true",
		MetricsPrometheusPath:    getEnv("SECRETS_FLEET_METRICS_PROMETHEUS_PATH", "/metrics"),
		MetricsDatadogEnabled:    getEnv("SECRETS_FLEET_METRICS_DATADOG", "false") == "true",
		MetricsDatadogAddr:       getEnv("SECRETS_FLEET_METRICS_DATADOG_ADDR", "127.0.0.1:8125"),
		MetricsDatadogTags:       splitList(getEnv("SECRETS_FLEET_METRICS_DATADOG_TAGS", "")),

		HistoryEnabled: getEnv("SECRETS_FLEET_HISTORY_ENABLED", "false") == "true",
		ValkeyAddr:     getEnv("SECRETS_FLEET_VALKEY_ADDR", ""),
		ValkeyPassword: getEnv("SECRETS_FLEET_VALKEY_PASSWORD", ""),
		ValkeyDB:       getEnvInt("SECRETS_FLEET_VALKEY_DB", 0),
		HistoryTTL:     getEnvDuration("SECRETS_FLEET_HISTORY_TTL", 30*24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GitHubOwner == "" {
		return fmt.Errorf("SECRETS_FLEET_GITHUB_OWNER is required")
	}
	if c.GitHubToken == "" && (c.GitHubAppID == "" || c.GitHubAppPrivateKey == "") {
		return fmt.Errorf("SECRETS_FLEET_GITHUB_TOKEN or GitHub App credentials are required")
	}
	switch c.RepositoryFilter {
	case FilterAll, FilterPublic, FilterPrivate:
	case FilterSpecific:
		if len(c.SpecificRepos) == 0 {
			return fmt.Errorf("SECRETS_FLEET_SPECIFIC_REPOS is required when filter is %q", FilterSpecific)
		}
	default:
		return fmt.Errorf("SECRETS_FLEET_REPOSITORY_FILTER must be one of all, public, private, specific; got %q", c.RepositoryFilter)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("SECRETS_FLEET_BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxParallelBatches < 1 {
		return fmt.Errorf("SECRETS_FLEET_MAX_PARALLEL_BATCHES must be >= 1, got %d", c.MaxParallelBatches)
	}
	if c.HistoryEnabled && c.ValkeyAddr == "" {
		return fmt.Errorf("SECRETS_FLEET_VALKEY_ADDR is required when run history is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// splitList splits a comma-separated value into trimmed non-empty elements.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
