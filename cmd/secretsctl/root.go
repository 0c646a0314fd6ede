// Package main provides the secretsctl CLI for one-shot secret deployments.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "secretsctl",
	Short: "Distribute secrets to GitHub repositories",
	Long: `secretsctl deploys secret values from a configured source backend
(environment, SSM Parameter Store, or Vault) to the Actions secrets of
every matching GitHub repository.

The source backend is selected with SECRETS_FLEET_SOURCE_BACKEND and
its companion environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// flagOrEnv prefers the flag value and falls back to the environment.
func flagOrEnv(flag, envKey string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(envKey)
}
