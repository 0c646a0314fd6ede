package source

import (
	"context"
	"testing"
)

func TestEnvSource_Resolve(t *testing.T) {
	t.Setenv("SECRETS_FLEET_VALUE_NPM_TOKEN", "npm-secret")
	t.Setenv("SECRETS_FLEET_VALUE_DB_PASSWORD", "db-secret")

	src := NewEnvSource("")
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "direct name", key: "NPM_TOKEN", want: "npm-secret"},
		{name: "lowercase key maps to upper", key: "npm_token", want: "npm-secret"},
		{name: "slash maps to underscore", key: "db/password", want: "db-secret"},
		{name: "missing", key: "ABSENT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Resolve(ctx, tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Resolve() expected error")
				}
				if !IsMissing(err) {
					t.Errorf("error = %v, want MissingSecretError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvSource_CustomPrefix(t *testing.T) {
	t.Setenv("CUSTOM_API_KEY", "custom-secret")

	src := NewEnvSource("CUSTOM_")
	got, err := src.Resolve(context.Background(), "API_KEY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "custom-secret" {
		t.Errorf("Resolve() = %q, want %q", got, "custom-secret")
	}
}

func TestEnvSource_EmptyValueIsPresent(t *testing.T) {
	t.Setenv("SECRETS_FLEET_VALUE_EMPTY", "")

	src := NewEnvSource("")
	got, err := src.Resolve(context.Background(), "EMPTY")
	if err != nil {
		t.Fatalf("Resolve() error = %v, set-but-empty variable must resolve", err)
	}
	if got != "" {
		t.Errorf("Resolve() = %q, want empty string", got)
	}
}
