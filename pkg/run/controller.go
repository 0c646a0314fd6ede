// Package run orchestrates one deployment run end to end: enumeration,
// resolution, batched deployment, and the final report.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shavakan/secrets-fleet/internal/classifier"
	"github.com/Shavakan/secrets-fleet/pkg/batch"
	"github.com/Shavakan/secrets-fleet/pkg/config"
	"github.com/Shavakan/secrets-fleet/pkg/deploy"
	"github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/logging"
	"github.com/Shavakan/secrets-fleet/pkg/metrics"
	"github.com/Shavakan/secrets-fleet/pkg/report"
	"github.com/Shavakan/secrets-fleet/pkg/source"
)

var log = logging.WithComponent(logging.LogTypeDispatch, "controller")

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// Request describes one run. Zero batch settings fall back to the fleet
// defaults.
type Request struct {
	Trigger            Trigger
	DryRun             bool
	Filter             github.Filter
	SpecificRepos      []string
	Secrets            []source.Spec
	BatchSize          int
	MaxParallelBatches int
}

// GitHubAPI is the full API surface a run needs.
type GitHubAPI interface {
	ListRepositories(ctx context.Context, owner string, filter github.Filter, specific []string) (repos []github.Repository, skipped []error, err error)
	deploy.GitHubAPI
}

// Controller executes runs against a fixed owner and source backend.
// Safe for concurrent runs; each Execute call builds its own resolution
// cache and report.
type Controller struct {
	owner string
	gh    GitHubAPI
	src   source.Source
	pub   metrics.Publisher

	// History, when set, persists each run summary. A history write
	// failure never fails the run.
	History *report.HistoryStore

	classifier *classifier.KeywordClassifier
}

// NewController creates a controller.
func NewController(owner string, gh GitHubAPI, src source.Source, pub metrics.Publisher) *Controller {
	return &Controller{
		owner:      owner,
		gh:         gh,
		src:        src,
		pub:        pub,
		classifier: classifier.NewKeywordClassifier(),
	}
}

// Execute performs one run. Scheduled triggers are always rehearsals
// regardless of the requested DryRun. The summary is returned even on
// fatal authorization failure so callers can surface what happened.
func (c *Controller) Execute(ctx context.Context, req Request) (report.Summary, error) {
	dryRun := req.DryRun
	if req.Trigger == TriggerSchedule {
		dryRun = true
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	maxParallel := req.MaxParallelBatches
	if maxParallel <= 0 {
		maxParallel = config.DefaultMaxParallelBatches
	}

	runID := uuid.NewString()
	rep := report.New(runID, string(req.Trigger), dryRun)
	_ = c.pub.PublishDispatch(ctx, string(req.Trigger))

	log.Info("run dispatched",
		slog.String(logging.KeyRunID, runID),
		slog.String(logging.KeyTrigger, string(req.Trigger)),
		slog.Bool(logging.KeyDryRun, dryRun),
		slog.String(logging.KeyFilter, string(req.Filter)))

	secrets := c.resolveSecrets(ctx, req.Secrets, rep)

	repos, skipped, err := c.gh.ListRepositories(ctx, c.owner, req.Filter, req.SpecificRepos)
	if err != nil {
		rep.AddWarning(fmt.Sprintf("run aborted: %v", err))
		summary := rep.Finish()
		c.publishSummary(ctx, summary)
		return summary, err
	}
	for _, skipErr := range skipped {
		rep.AddWarning(skipErr.Error())
	}
	c.classifier.Annotate(repos)
	_ = c.pub.PublishReposEnumerated(ctx, len(repos))

	switch {
	case len(repos) == 0:
		rep.AddWarning("no repositories matched the filter; nothing to deploy")
		_ = c.pub.PublishEmptyRun(ctx)
	case len(secrets) == 0:
		rep.AddWarning("no secret values resolved; nothing to deploy")
	default:
		c.deploy(ctx, repos, secrets, batchSize, maxParallel, dryRun, rep)
	}

	summary := rep.Finish()
	c.publishSummary(ctx, summary)
	c.saveHistory(ctx, summary)

	log.Info("run completed",
		slog.String(logging.KeyRunID, runID),
		slog.Int(logging.KeyCount, len(summary.Results)),
		slog.Duration(logging.KeyDuration, summary.Duration))
	return summary, nil
}

// resolveSecrets resolves every spec through a per-run cache. Missing or
// unresolvable secrets are recorded once and dropped from the run.
func (c *Controller) resolveSecrets(ctx context.Context, specs []source.Spec, rep *report.Report) []deploy.Secret {
	cached := source.NewCached(c.src)

	secrets := make([]deploy.Secret, 0, len(specs))
	for _, spec := range specs {
		value, err := cached.Resolve(ctx, spec.SourceKey())
		if err != nil {
			rep.AddWarning(fmt.Sprintf("secret %s dropped: %v", spec.Name, err))
			log.Warn("secret resolution failed",
				slog.String(logging.KeySecret, spec.Name),
				slog.String(logging.KeyError, err.Error()))
			continue
		}
		secrets = append(secrets, deploy.Secret{Name: spec.Name, Value: value})
	}
	return secrets
}

func (c *Controller) deploy(ctx context.Context, repos []github.Repository, secrets []deploy.Secret, batchSize, maxParallel int, dryRun bool, rep *report.Report) {
	executor := deploy.NewExecutor(c.gh, secrets, rep, dryRun)

	runner := batch.NewRunner(maxParallel)
	runner.OnBackoff = func(_, _ int, _ time.Duration) {
		_ = c.pub.PublishThrottleBackoff(ctx)
	}

	failures := runner.Run(ctx, batch.Partition(repos, batchSize), executor.DeployRepo)
	for _, failure := range failures {
		rep.AddBatchFailure(failure.Batch, failure.Err.Error())
		_ = c.pub.PublishBatchFailure(ctx)
	}
}

func (c *Controller) publishSummary(ctx context.Context, s report.Summary) {
	_ = c.pub.PublishRunDuration(ctx, int(s.Duration.Seconds()))
	_ = c.pub.PublishSecretsCreated(ctx, s.Created)
	_ = c.pub.PublishSecretsUpdated(ctx, s.Updated)
	_ = c.pub.PublishSecretsSkipped(ctx, s.Skipped)
	_ = c.pub.PublishSecretsFailed(ctx, s.Failed)

	if s.Failed == 0 && len(s.BatchFailures) == 0 {
		_ = c.pub.PublishRunSuccess(ctx)
		return
	}
	_ = c.pub.PublishRunFailure(ctx)
}

func (c *Controller) saveHistory(ctx context.Context, s report.Summary) {
	if c.History == nil {
		return
	}
	if err := c.History.Save(ctx, s); err != nil {
		log.Warn("failed to persist run summary",
			slog.String(logging.KeyRunID, s.RunID),
			slog.String(logging.KeyError, err.Error()))
	}
}
