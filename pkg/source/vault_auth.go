package source

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/api/auth/aws"
)

// authenticate exchanges the configured credentials for a Vault client
// token. Renewal is not handled here; a run finishes well inside the TTL.
func authenticate(ctx context.Context, client *api.Client, cfg VaultConfig) error {
	switch cfg.AuthMethod {
	case AuthMethodAWS:
		return loginAWS(ctx, client, cfg)
	case AuthMethodKubernetes, AuthMethodK8s:
		return loginKubernetes(ctx, client, cfg)
	case AuthMethodAppRole:
		return loginAppRole(ctx, client, cfg)
	case AuthMethodToken:
		if cfg.Token != "" {
			client.SetToken(cfg.Token)
		}
		return nil
	case "":
		if token := os.Getenv("VAULT_TOKEN"); token != "" {
			client.SetToken(token)
			return nil
		}
		return loginAWS(ctx, client, cfg)
	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// loginAWS logs in with AWS IAM credentials resolved from the environment.
func loginAWS(ctx context.Context, client *api.Client, cfg VaultConfig) error {
	opts := []aws.LoginOption{aws.WithIAMAuth()}
	if cfg.AWSRole != "" {
		opts = append(opts, aws.WithRole(cfg.AWSRole))
	}
	if cfg.AWSRegion != "" {
		opts = append(opts, aws.WithRegion(cfg.AWSRegion))
	}

	awsAuth, err := aws.NewAWSAuth(opts...)
	if err != nil {
		return fmt.Errorf("failed to create AWS auth (role=%s, region=%s): %w", cfg.AWSRole, cfg.AWSRegion, err)
	}

	authInfo, err := client.Auth().Login(ctx, awsAuth)
	if err != nil {
		return fmt.Errorf("AWS login failed (role=%s, region=%s): %w", cfg.AWSRole, cfg.AWSRegion, err)
	}
	if authInfo == nil {
		return fmt.Errorf("AWS login returned no auth info (role=%s)", cfg.AWSRole)
	}
	return nil
}

// loginKubernetes exchanges the service account JWT at the configured auth
// mount. Clusters that rename the mount set K8sAuthMount.
func loginKubernetes(ctx context.Context, client *api.Client, cfg VaultConfig) error {
	jwtPath := cfg.K8sJWTPath
	if jwtPath == "" {
		jwtPath = DefaultK8sJWTPath
	}
	jwt, err := os.ReadFile(jwtPath)
	if err != nil {
		return fmt.Errorf("failed to read service account JWT from %s: %w", jwtPath, err)
	}

	mount := cfg.K8sAuthMount
	if mount == "" {
		mount = DefaultVaultK8sMount
	}

	payload := map[string]interface{}{
		"role": cfg.K8sRole,
		"jwt":  string(jwt),
	}
	return loginAt(ctx, client, "auth/"+mount+"/login", payload, fmt.Sprintf("kubernetes (role=%s)", cfg.K8sRole))
}

// loginAppRole logs in with role ID and secret ID credentials.
func loginAppRole(ctx context.Context, client *api.Client, cfg VaultConfig) error {
	payload := map[string]interface{}{
		"role_id":   cfg.AppRoleID,
		"secret_id": cfg.AppRoleSecretID,
	}
	return loginAt(ctx, client, "auth/approle/login", payload, "approle")
}

// loginAt performs the login write and installs the returned client token.
func loginAt(ctx context.Context, client *api.Client, path string, payload map[string]interface{}, method string) error {
	secret, err := client.Logical().WriteWithContext(ctx, path, payload)
	if err != nil {
		return fmt.Errorf("%s login failed: %w", method, err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return fmt.Errorf("%s login returned no client token", method)
	}
	client.SetToken(secret.Auth.ClientToken)
	return nil
}
