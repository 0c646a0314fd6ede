package main

import (
	"context"
	"testing"
)

func TestValidateRepoFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		repos   []string
		wantErr bool
	}{
		{name: "all", filter: "all"},
		{name: "public", filter: "public"},
		{name: "private", filter: "private"},
		{name: "specific with repos", filter: "specific", repos: []string{"repo-a"}},
		{name: "specific without repos", filter: "specific", wantErr: true},
		{name: "unknown filter", filter: "archived", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRepoFilter(tt.filter, tt.repos)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRepoFilter(%q, %v) error = %v, wantErr %v", tt.filter, tt.repos, err, tt.wantErr)
			}
		})
	}
}

func TestLoadSpecs_RequiresSecretsOrManifest(t *testing.T) {
	saved := deployOpts
	t.Cleanup(func() { deployOpts = saved })

	deployOpts.manifest = ""
	deployOpts.secrets = nil

	if _, err := loadSpecs(); err == nil {
		t.Error("loadSpecs() expected error when neither --secrets nor --manifest is set")
	}
}

func TestLoadSpecs_InlineSecrets(t *testing.T) {
	saved := deployOpts
	t.Cleanup(func() { deployOpts = saved })

	deployOpts.manifest = ""
	deployOpts.secrets = []string{"API_KEY", "DB_PASSWORD"}

	specs, err := loadSpecs()
	if err != nil {
		t.Fatalf("loadSpecs() error = %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("loadSpecs() returned %d specs, want 2", len(specs))
	}
	if specs[0].Name != "API_KEY" {
		t.Errorf("specs[0].Name = %s, want API_KEY", specs[0].Name)
	}
}

func TestNewGitHubClient_TokenFallback(t *testing.T) {
	saved := deployOpts
	t.Cleanup(func() { deployOpts = saved })

	t.Setenv("SECRETS_FLEET_GITHUB_APP_ID", "")
	t.Setenv("SECRETS_FLEET_GITHUB_APP_PRIVATE_KEY", "")
	deployOpts.token = "ghp_test"

	client, err := newGitHubClient(context.Background(), "shavakan")
	if err != nil {
		t.Fatalf("newGitHubClient() error = %v", err)
	}
	if client == nil {
		t.Fatal("newGitHubClient() returned nil client")
	}
}

func TestNewGitHubClient_NoCredentials(t *testing.T) {
	saved := deployOpts
	t.Cleanup(func() { deployOpts = saved })

	t.Setenv("SECRETS_FLEET_GITHUB_APP_ID", "")
	t.Setenv("SECRETS_FLEET_GITHUB_APP_PRIVATE_KEY", "")
	t.Setenv("SECRETS_FLEET_GITHUB_TOKEN", "")
	deployOpts.token = ""

	if _, err := newGitHubClient(context.Background(), "shavakan"); err == nil {
		t.Error("newGitHubClient() expected error without credentials")
	}
}
