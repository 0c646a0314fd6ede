package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Backend constants for source backend selection.
const (
	BackendEnv   = "env"
	BackendSSM   = "ssm"
	BackendVault = "vault"
)

// Auth method constants for Vault.
const (
	AuthMethodAWS        = "aws"
	AuthMethodKubernetes = "kubernetes"
	AuthMethodK8s        = "k8s"
	AuthMethodAppRole    = "approle"
	AuthMethodToken      = "token"
)

// Default paths.
const (
	DefaultEnvPrefix       = "SECRETS_FLEET_VALUE_"
	DefaultSSMPrefix       = "/secrets-fleet/values"
	DefaultVaultKVMount    = "secret"
	DefaultVaultPath       = "secrets-fleet"
	DefaultVaultValueField = "value"
	DefaultVaultK8sMount   = "kubernetes"
	DefaultK8sJWTPath      = "/var/run/secrets/kubernetes.io/serviceaccount/token"
)

// Config holds configuration for the secret source backend.
type Config struct {
	Backend string // "env", "ssm", or "vault" (default: "env")
	Env     EnvConfig
	SSM     SSMConfig
	Vault   VaultConfig
}

// EnvConfig holds env-specific configuration.
type EnvConfig struct {
	Prefix string // Environment variable prefix (default: "SECRETS_FLEET_VALUE_")
}

// SSMConfig holds SSM-specific configuration.
type SSMConfig struct {
	Prefix string // Parameter path prefix (default: "/secrets-fleet/values")
}

// LoadConfig loads source configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		Backend: getEnv("SECRETS_FLEET_SOURCE_BACKEND", BackendEnv),
		Env: EnvConfig{
			Prefix: getEnv("SECRETS_FLEET_ENV_PREFIX", DefaultEnvPrefix),
		},
		SSM: SSMConfig{
			Prefix: getEnv("SECRETS_FLEET_SSM_PREFIX", DefaultSSMPrefix),
		},
		Vault: VaultConfig{
			Address:         getEnv("VAULT_ADDR", ""),
			Namespace:       getEnv("VAULT_NAMESPACE", ""),
			KVMount:         getEnv("VAULT_KV_MOUNT", DefaultVaultKVMount),
			KVVersion:       getEnvInt("VAULT_KV_VERSION", 0),
			BasePath:        getEnv("VAULT_BASE_PATH", DefaultVaultPath),
			ValueField:      getEnv("VAULT_VALUE_FIELD", DefaultVaultValueField),
			AuthMethod:      getEnv("VAULT_AUTH_METHOD", AuthMethodAWS),
			AWSRole:         getEnv("VAULT_AWS_ROLE", "secrets-fleet"),
			AWSRegion:       getEnv("VAULT_AWS_REGION", os.Getenv("AWS_REGION")),
			K8sRole:         getEnv("VAULT_K8S_ROLE", ""),
			K8sAuthMount:    getEnv("VAULT_K8S_AUTH_MOUNT", DefaultVaultK8sMount),
			K8sJWTPath:      getEnv("VAULT_K8S_JWT_PATH", DefaultK8sJWTPath),
			AppRoleID:       getEnv("VAULT_APP_ROLE_ID", ""),
			AppRoleSecretID: getEnv("VAULT_APP_SECRET_ID", ""),
			Token:           getEnv("VAULT_TOKEN", ""),
		},
	}
	return cfg
}

// NewSource creates a secret source based on configuration. Callers wrap
// the result with NewCached per run; values resolved in one run must not
// leak into the next.
func NewSource(ctx context.Context, cfg Config, awsCfg aws.Config) (Source, error) {
	switch cfg.Backend {
	case BackendVault:
		return NewVaultSource(ctx, cfg.Vault)
	case BackendSSM:
		return NewSSMSource(awsCfg, cfg.SSM.Prefix), nil
	case BackendEnv, "":
		return NewEnvSource(cfg.Env.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown source backend: %s", cfg.Backend)
	}
}

// Validate checks that the configuration is valid for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendVault:
		if c.Vault.Address == "" {
			return fmt.Errorf("VAULT_ADDR is required when using Vault backend")
		}
		if err := c.validateVaultAuth(); err != nil {
			return err
		}
	case BackendEnv, BackendSSM, "":
		// env and SSM have no required configuration
	default:
		return fmt.Errorf("SECRETS_FLEET_SOURCE_BACKEND must be 'env', 'ssm', or 'vault', got %q", c.Backend)
	}
	return nil
}

// validateVaultAuth checks that required auth parameters are configured.
func (c *Config) validateVaultAuth() error {
	switch c.Vault.AuthMethod {
	case AuthMethodKubernetes, AuthMethodK8s:
		if c.Vault.K8sRole == "" {
			return fmt.Errorf("VAULT_K8S_ROLE is required for Kubernetes auth")
		}
		if err := validateK8sJWTPath(c.Vault.K8sJWTPath); err != nil {
			return err
		}
	case AuthMethodAppRole:
		if c.Vault.AppRoleID == "" {
			return fmt.Errorf("VAULT_APP_ROLE_ID is required for AppRole auth")
		}
		if c.Vault.AppRoleSecretID == "" {
			return fmt.Errorf("VAULT_APP_SECRET_ID is required for AppRole auth")
		}
	case AuthMethodToken:
		if c.Vault.Token == "" && os.Getenv("VAULT_TOKEN") == "" {
			return fmt.Errorf("VAULT_TOKEN is required for token auth")
		}
	case AuthMethodAWS, "":
		// AWS auth uses IAM credentials automatically
	default:
		return fmt.Errorf("VAULT_AUTH_METHOD must be 'aws', 'kubernetes', 'k8s', 'approle', or 'token', got %q", c.Vault.AuthMethod)
	}
	return nil
}

// validateK8sJWTPath validates the Kubernetes JWT token path for security.
func validateK8sJWTPath(path string) error {
	if path == "" {
		return fmt.Errorf("VAULT_K8S_JWT_PATH cannot be empty for Kubernetes auth")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("VAULT_K8S_JWT_PATH must be an absolute path, got %q", path)
	}
	cleanPath := filepath.Clean(path)
	if !strings.HasPrefix(cleanPath, "/var/run/secrets/") {
		return fmt.Errorf("VAULT_K8S_JWT_PATH must be under /var/run/secrets/, got %q", path)
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}
