package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds configuration for the Vault source backend.
type VaultConfig struct {
	Address    string // VAULT_ADDR
	Namespace  string // VAULT_NAMESPACE (enterprise)
	KVMount    string // KV mount path (default: "secret")
	KVVersion  int    // 0=auto-detect, 1, 2
	BasePath   string // Base path for secret values (default: "secrets-fleet")
	ValueField string // Field holding the value within each secret (default: "value")
	AuthMethod string // "aws", "kubernetes", "approle", "token"

	// AWS IAM auth
	AWSRole   string // Vault role for AWS auth
	AWSRegion string // AWS region for STS calls

	// Kubernetes auth
	K8sRole      string // Vault role for K8s auth
	K8sAuthMount string // Auth mount for the login path (default: "kubernetes")
	K8sJWTPath   string // Path to service account token

	// AppRole auth
	AppRoleID       string
	AppRoleSecretID string

	// Token auth (for testing/development)
	Token string
}

// VaultSource resolves secret values from a HashiCorp Vault KV engine.
// A run is short-lived and bounded by the token TTL, so there is no
// background token renewal.
type VaultSource struct {
	client     *api.Client
	kvMount    string
	basePath   string
	valueField string
	kvVersion  int
}

// NewVaultSource creates a Vault-backed source and authenticates.
func NewVaultSource(ctx context.Context, cfg VaultConfig) (*VaultSource, error) {
	vaultCfg := api.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}

	// Set HTTP client timeout to prevent indefinite hangs
	vaultCfg.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticate(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("vault authentication failed: %w", err)
	}

	src := &VaultSource{
		client:     client,
		kvMount:    cfg.KVMount,
		basePath:   cfg.BasePath,
		valueField: cfg.ValueField,
		kvVersion:  cfg.KVVersion,
	}
	src.applyDefaults()

	// Auto-detect KV version if not specified
	if src.kvVersion == 0 {
		version, err := src.detectKVVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to detect KV version: %w", err)
		}
		src.kvVersion = version
	}

	return src, nil
}

// NewVaultSourceWithClient creates a Vault source with a pre-configured client (for testing).
func NewVaultSourceWithClient(client *api.Client, kvMount, basePath string, kvVersion int) *VaultSource {
	src := &VaultSource{
		client:    client,
		kvMount:   kvMount,
		basePath:  basePath,
		kvVersion: kvVersion,
	}
	src.applyDefaults()
	if src.kvVersion == 0 {
		src.kvVersion = 2
	}
	return src
}

func (v *VaultSource) applyDefaults() {
	if v.kvMount == "" {
		v.kvMount = DefaultVaultKVMount
	}
	if v.basePath == "" {
		v.basePath = DefaultVaultPath
	}
	if v.valueField == "" {
		v.valueField = DefaultVaultValueField
	}
}

// detectKVVersion determines whether the KV engine is v1 or v2.
func (v *VaultSource) detectKVVersion(ctx context.Context) (int, error) {
	mounts, err := v.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list mounts for KV version detection: %w", err)
	}

	mountPath := v.kvMount + "/"
	mount, ok := mounts[mountPath]
	if !ok {
		return 0, fmt.Errorf("KV mount %q not found", v.kvMount)
	}

	if mount.Options != nil {
		if version, exists := mount.Options["version"]; exists {
			if version == "1" {
				return 1, nil
			}
		}
	}

	return 2, nil
}

// Resolve reads the secret at basePath/key and returns the configured value
// field. A missing secret or missing field is a MissingSecretError.
func (v *VaultSource) Resolve(ctx context.Context, key string) (string, error) {
	var data map[string]interface{}

	if v.kvVersion == 2 {
		secret, err := v.client.KVv2(v.kvMount).Get(ctx, v.basePath+"/"+key)
		if err != nil {
			if isNotFoundError(err) {
				return "", &MissingSecretError{Key: key, Backend: BackendVault}
			}
			return "", fmt.Errorf("failed to read secret from Vault: %w", err)
		}
		if secret == nil || secret.Data == nil {
			return "", &MissingSecretError{Key: key, Backend: BackendVault}
		}
		data = secret.Data
	} else {
		secret, err := v.client.Logical().ReadWithContext(ctx, v.secretPath(key))
		if err != nil {
			if isNotFoundError(err) {
				return "", &MissingSecretError{Key: key, Backend: BackendVault}
			}
			return "", fmt.Errorf("failed to read secret from Vault: %w", err)
		}
		if secret == nil || secret.Data == nil {
			return "", &MissingSecretError{Key: key, Backend: BackendVault}
		}
		data = secret.Data
	}

	raw, ok := data[v.valueField]
	if !ok {
		return "", &MissingSecretError{Key: key, Backend: BackendVault}
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret %q field %q is not a string", key, v.valueField)
	}

	return value, nil
}

// Close is a no-op for VaultSource; the token expires on its own.
func (v *VaultSource) Close() {}

// isNotFoundError checks if the error indicates a secret was not found.
func isNotFoundError(err error) bool {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return errors.Is(err, api.ErrSecretNotFound)
}

// secretPath returns the full path for a KV v1 secret.
func (v *VaultSource) secretPath(key string) string {
	return fmt.Sprintf("%s/%s/%s", v.kvMount, v.basePath, key)
}

// Ensure VaultSource implements Source.
var _ Source = (*VaultSource)(nil)
