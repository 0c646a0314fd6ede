// Package deploy writes resolved secret values into target repositories as
// encrypted Actions secrets.
package deploy

import (
	"context"
	"log/slog"
	"sync"

	gogithub "github.com/google/go-github/v57/github"

	"github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/logging"
	"github.com/Shavakan/secrets-fleet/pkg/report"
	"github.com/Shavakan/secrets-fleet/pkg/sealbox"
)

var log = logging.WithComponent(logging.LogTypeDeploy, "executor")

// GitHubAPI is the API surface the executor needs. *github.Client
// implements it; tests substitute fakes.
type GitHubAPI interface {
	GetPublicKey(ctx context.Context, owner, repo string) (*gogithub.PublicKey, error)
	PutSecret(ctx context.Context, owner, repo, name, keyID, ciphertext string) (created bool, err error)
}

// Secret is one resolved (name, value) pair deployed to every repository.
type Secret struct {
	Name  string
	Value string
}

// Executor deploys a fixed set of resolved secrets to repositories, one
// repository at a time. It is re-entry safe: when the batch runner retries
// a repository after throttle backoff, pairs already finalized are not
// attempted or recorded again.
type Executor struct {
	api     GitHubAPI
	secrets []Secret
	rep     *report.Report
	dryRun  bool

	mu   sync.Mutex
	done map[string]map[string]bool // repo full name -> secret name -> finalized
}

// NewExecutor creates an executor for one run.
func NewExecutor(api GitHubAPI, secrets []Secret, rep *report.Report, dryRun bool) *Executor {
	return &Executor{
		api:     api,
		secrets: secrets,
		rep:     rep,
		dryRun:  dryRun,
		done:    make(map[string]map[string]bool),
	}
}

// DeployRepo deploys every secret to one repository. Pair-scoped failures
// are recorded and swallowed; the only non-nil return is a throttled error,
// which the batch runner backs off and retries.
func (e *Executor) DeployRepo(ctx context.Context, repo github.Repository) error {
	if e.dryRun {
		for _, secret := range e.secrets {
			if e.finalized(repo.FullName, secret.Name) {
				continue
			}
			e.record(repo, secret.Name, report.OutcomeSkipped, report.ReasonDryRun)
		}
		return nil
	}

	key, err := e.api.GetPublicKey(ctx, repo.Owner, repo.Name)
	if err != nil {
		if github.IsThrottled(err) {
			return err
		}
		// Key fetch failure poisons every pair for this repository.
		encErr := &github.EncryptionError{Repo: repo.FullName, Err: err}
		for _, secret := range e.secrets {
			if e.finalized(repo.FullName, secret.Name) {
				continue
			}
			e.record(repo, secret.Name, report.OutcomeFailed, encErr.Error())
		}
		return nil
	}

	for _, secret := range e.secrets {
		if e.finalized(repo.FullName, secret.Name) {
			continue
		}

		ciphertext, sealErr := sealbox.Seal(key.GetKey(), secret.Value)
		if sealErr != nil {
			encErr := &github.EncryptionError{Repo: repo.FullName, Secret: secret.Name, Err: sealErr}
			e.record(repo, secret.Name, report.OutcomeFailed, encErr.Error())
			continue
		}

		created, putErr := e.api.PutSecret(ctx, repo.Owner, repo.Name, secret.Name, key.GetKeyID(), ciphertext)
		if putErr != nil {
			if github.IsThrottled(putErr) {
				// Not finalized; the retry resumes from this pair.
				return putErr
			}
			e.record(repo, secret.Name, report.OutcomeFailed, putErr.Error())
			continue
		}

		outcome := report.OutcomeUpdated
		if created {
			outcome = report.OutcomeCreated
		}
		e.record(repo, secret.Name, outcome, "")
	}
	return nil
}

// record finalizes one pair: it is written to the report and never
// attempted again in this run.
func (e *Executor) record(repo github.Repository, secret string, outcome report.Outcome, reason string) {
	e.mu.Lock()
	pairs, ok := e.done[repo.FullName]
	if !ok {
		pairs = make(map[string]bool)
		e.done[repo.FullName] = pairs
	}
	pairs[secret] = true
	e.mu.Unlock()

	e.rep.Add(repo.FullName, secret, outcome, reason)

	attrs := []any{
		slog.String(logging.KeyRepo, repo.FullName),
		slog.String(logging.KeySecret, secret),
		slog.String(logging.KeyOutcome, string(outcome)),
	}
	if reason != "" {
		attrs = append(attrs, slog.String(logging.KeyReason, reason))
	}
	if outcome == report.OutcomeFailed {
		log.Warn("secret deployment failed", attrs...)
		return
	}
	log.Info("secret deployment finalized", attrs...)
}

func (e *Executor) finalized(repoFullName, secret string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done[repoFullName][secret]
}
