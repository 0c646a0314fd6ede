package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/Shavakan/secrets-fleet/pkg/config"
	gh "github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/logging"
	"github.com/Shavakan/secrets-fleet/pkg/metrics"
	"github.com/Shavakan/secrets-fleet/pkg/run"
	"github.com/Shavakan/secrets-fleet/pkg/source"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run one deployment and print the report",
	Long: `Deploy resolves the requested secrets from the source backend,
enumerates matching repositories, and writes each secret to every
repository as an encrypted Actions secret. The full run report is
printed as JSON when the run completes.`,
	RunE: runDeploy,
}

// deployFlags holds the flags for the deploy command.
type deployFlags struct {
	owner       string
	token       string
	filter      string
	repos       []string
	secrets     []string
	manifest    string
	dryRun      bool
	batchSize   int
	maxParallel int
}

var deployOpts deployFlags

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVar(&deployOpts.owner, "owner", "", "GitHub user or organization (default: SECRETS_FLEET_GITHUB_OWNER)")
	deployCmd.Flags().StringVar(&deployOpts.token, "token", "", "GitHub token (default: SECRETS_FLEET_GITHUB_TOKEN)")
	deployCmd.Flags().StringVar(&deployOpts.filter, "filter", config.FilterAll, "Repository filter: all, public, private, or specific")
	deployCmd.Flags().StringSliceVar(&deployOpts.repos, "repos", nil, "Repository names for the specific filter")
	deployCmd.Flags().StringSliceVar(&deployOpts.secrets, "secrets", nil, "Secret names to deploy")
	deployCmd.Flags().StringVar(&deployOpts.manifest, "manifest", "", "Path to a YAML secret manifest (overrides --secrets)")
	deployCmd.Flags().BoolVar(&deployOpts.dryRun, "dry-run", false, "Report what would change without writing anything")
	deployCmd.Flags().IntVar(&deployOpts.batchSize, "batch-size", config.DefaultBatchSize, "Repositories per batch")
	deployCmd.Flags().IntVar(&deployOpts.maxParallel, "max-parallel", config.DefaultMaxParallelBatches, "Batches deployed concurrently")
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logging.Init()

	owner := flagOrEnv(deployOpts.owner, "SECRETS_FLEET_GITHUB_OWNER")
	if owner == "" {
		return fmt.Errorf("--owner or SECRETS_FLEET_GITHUB_OWNER is required")
	}

	if err := validateRepoFilter(deployOpts.filter, deployOpts.repos); err != nil {
		return err
	}

	specs, err := loadSpecs()
	if err != nil {
		return err
	}

	client, err := newGitHubClient(ctx, owner)
	if err != nil {
		return err
	}

	src, err := newSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	ctrl := run.NewController(owner, client, src, metrics.NoopPublisher{})

	summary, err := ctrl.Execute(ctx, run.Request{
		Trigger:            run.TriggerManual,
		DryRun:             deployOpts.dryRun,
		Filter:             gh.Filter(deployOpts.filter),
		SpecificRepos:      deployOpts.repos,
		Secrets:            specs,
		BatchSize:          deployOpts.batchSize,
		MaxParallelBatches: deployOpts.maxParallel,
	})

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(summary)

	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	if summary.Failed > 0 || len(summary.BatchFailures) > 0 {
		return fmt.Errorf("run completed with %d failed deployment(s) and %d batch failure(s)",
			summary.Failed, len(summary.BatchFailures))
	}
	return nil
}

// validateRepoFilter applies the same filter rules as the server dispatch
// endpoint. A specific filter with no repository list would enumerate
// nothing and silently deploy to zero repositories.
func validateRepoFilter(filter string, repos []string) error {
	switch filter {
	case config.FilterAll, config.FilterPublic, config.FilterPrivate:
		return nil
	case config.FilterSpecific:
		if len(repos) == 0 {
			return fmt.Errorf("filter %q requires --repos", config.FilterSpecific)
		}
		return nil
	default:
		return fmt.Errorf("unknown filter %q", filter)
	}
}

func loadSpecs() ([]source.Spec, error) {
	if deployOpts.manifest != "" {
		return source.LoadManifest(deployOpts.manifest)
	}
	if len(deployOpts.secrets) > 0 {
		return source.ParseList(deployOpts.secrets)
	}
	return nil, fmt.Errorf("--secrets or --manifest is required")
}

func newGitHubClient(ctx context.Context, owner string) (*gh.Client, error) {
	appID := os.Getenv("SECRETS_FLEET_GITHUB_APP_ID")
	appKey := os.Getenv("SECRETS_FLEET_GITHUB_APP_PRIVATE_KEY")
	if appID != "" && appKey != "" {
		return gh.NewAppClient(ctx, appID, appKey, owner)
	}

	token := flagOrEnv(deployOpts.token, "SECRETS_FLEET_GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("--token, SECRETS_FLEET_GITHUB_TOKEN, or GitHub App credentials are required")
	}
	return gh.NewTokenClient(token), nil
}

func newSource(ctx context.Context) (source.Source, error) {
	srcCfg := source.LoadConfig()
	if err := srcCfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("AWS_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return source.NewSource(ctx, srcCfg, awsCfg)
}
