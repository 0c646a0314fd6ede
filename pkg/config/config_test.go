package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SECRETS_FLEET_GITHUB_OWNER", "SECRETS_FLEET_GITHUB_TOKEN",
		"SECRETS_FLEET_GITHUB_APP_ID", "SECRETS_FLEET_GITHUB_APP_PRIVATE_KEY",
		"SECRETS_FLEET_REPOSITORY_FILTER", "SECRETS_FLEET_SPECIFIC_REPOS",
		"SECRETS_FLEET_SECRETS", "SECRETS_FLEET_BATCH_SIZE",
		"SECRETS_FLEET_MAX_PARALLEL_BATCHES", "SECRETS_FLEET_DRY_RUN",
		"SECRETS_FLEET_SCHEDULE_INTERVAL", "SECRETS_FLEET_HISTORY_ENABLED",
		"SECRETS_FLEET_VALKEY_ADDR",
	}
	for _, key := range keys {
		_ = os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRETS_FLEET_GITHUB_OWNER", "shavakan")
	t.Setenv("SECRETS_FLEET_GITHUB_TOKEN", "ghp_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if cfg.MaxParallelBatches != DefaultMaxParallelBatches {
		t.Errorf("MaxParallelBatches = %d, want %d", cfg.MaxParallelBatches, DefaultMaxParallelBatches)
	}
	if cfg.RepositoryFilter != FilterAll {
		t.Errorf("RepositoryFilter = %q, want %q", cfg.RepositoryFilter, FilterAll)
	}
	if cfg.DryRun {
		t.Error("DryRun = true, want false by default")
	}
	if cfg.ScheduleInterval != 0 {
		t.Errorf("ScheduleInterval = %v, want 0 (disabled)", cfg.ScheduleInterval)
	}
}

func TestLoad_MissingOwner(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRETS_FLEET_GITHUB_TOKEN", "ghp_test")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error when owner is missing")
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRETS_FLEET_GITHUB_OWNER", "shavakan")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error when no token and no app credentials")
	}
}

func TestLoad_AppCredentialsSufficient(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRETS_FLEET_GITHUB_OWNER", "shavakan")
	t.Setenv("SECRETS_FLEET_GITHUB_APP_ID", "12345")
	t.Setenv("SECRETS_FLEET_GITHUB_APP_PRIVATE_KEY", "base64-pem")

	if _, err := Load(); err != nil {
		t.Errorf("Load() error = %v, want nil with app credentials", err)
	}
}

func TestValidate_Filter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		repos   []string
		wantErr bool
	}{
		{name: "all", filter: FilterAll},
		{name: "public", filter: FilterPublic},
		{name: "private", filter: FilterPrivate},
		{name: "specific with repos", filter: FilterSpecific, repos: []string{"a", "b"}},
		{name: "specific without repos", filter: FilterSpecific, wantErr: true},
		{name: "unknown", filter: "mine", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				GitHubOwner:        "shavakan",
				GitHubToken:        "ghp_test",
				RepositoryFilter:   tt.filter,
				SpecificRepos:      tt.repos,
				BatchSize:          DefaultBatchSize,
				MaxParallelBatches: DefaultMaxParallelBatches,
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_HistoryRequiresAddr(t *testing.T) {
	cfg := &Config{
		GitHubOwner:        "shavakan",
		GitHubToken:        "ghp_test",
		RepositoryFilter:   FilterAll,
		BatchSize:          DefaultBatchSize,
		MaxParallelBatches: DefaultMaxParallelBatches,
		HistoryEnabled:     true,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error when history enabled without Valkey address")
	}
}

func TestLoad_ParsesLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRETS_FLEET_GITHUB_OWNER", "shavakan")
	t.Setenv("SECRETS_FLEET_GITHUB_TOKEN", "ghp_test")
	t.Setenv("SECRETS_FLEET_REPOSITORY_FILTER", "specific")
	t.Setenv("SECRETS_FLEET_SPECIFIC_REPOS", " infra , tools ,")
	t.Setenv("SECRETS_FLEET_SECRETS", "NPM_TOKEN,DOCKER_PASSWORD")
	t.Setenv("SECRETS_FLEET_SCHEDULE_INTERVAL", "6h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.SpecificRepos) != 2 || cfg.SpecificRepos[0] != "infra" || cfg.SpecificRepos[1] != "tools" {
		t.Errorf("SpecificRepos = %v, want [infra tools]", cfg.SpecificRepos)
	}
	if len(cfg.SecretNames) != 2 {
		t.Errorf("SecretNames = %v, want 2 entries", cfg.SecretNames)
	}
	if cfg.ScheduleInterval != 6*time.Hour {
		t.Errorf("ScheduleInterval = %v, want 6h", cfg.ScheduleInterval)
	}
}
