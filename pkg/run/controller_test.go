package run

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	gogithub "github.com/google/go-github/v57/github"
	"golang.org/x/crypto/nacl/box"

	"github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/metrics"
	"github.com/Shavakan/secrets-fleet/pkg/report"
	"github.com/Shavakan/secrets-fleet/pkg/source"
)

// fakeGitHub implements GitHubAPI with an in-memory fleet.
type fakeGitHub struct {
	repos    []github.Repository
	skipped  []error
	listErr  error
	key      *gogithub.PublicKey
	existing map[string]bool // "repo/secret" pairs that already exist

	mu       sync.Mutex
	putCalls []string
}

func newFakeGitHub(t *testing.T, repoNames ...string) *fakeGitHub {
	t.Helper()
	pub, _, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	f := &fakeGitHub{
		key: &gogithub.PublicKey{
			KeyID: gogithub.String("key-1"),
			Key:   gogithub.String(base64.StdEncoding.EncodeToString(pub[:])),
		},
		existing: make(map[string]bool),
	}
	for _, name := range repoNames {
		f.repos = append(f.repos, github.Repository{
			Owner:    "shavakan",
			Name:     name,
			FullName: "shavakan/" + name,
		})
	}
	return f
}

func (f *fakeGitHub) ListRepositories(_ context.Context, _ string, _ github.Filter, _ []string) ([]github.Repository, []error, error) {
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	return f.repos, f.skipped, nil
}

func (f *fakeGitHub) GetPublicKey(_ context.Context, _, _ string) (*gogithub.PublicKey, error) {
	return f.key, nil
}

func (f *fakeGitHub) PutSecret(_ context.Context, _, repo, name, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls = append(f.putCalls, repo+"/"+name)
	if f.existing[repo+"/"+name] {
		return false, nil
	}
	f.existing[repo+"/"+name] = true
	return true, nil
}

// mapSource resolves from a fixed map.
type mapSource struct {
	values map[string]string
}

func (s *mapSource) Resolve(_ context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", &source.MissingSecretError{Key: key, Backend: "fake"}
	}
	return value, nil
}

func (s *mapSource) Close() {}

func specs(names ...string) []source.Spec {
	out := make([]source.Spec, 0, len(names))
	for _, name := range names {
		out = append(out, source.Spec{Name: name})
	}
	return out
}

func TestExecute_ManualRunDeploysAllPairs(t *testing.T) {
	gh := newFakeGitHub(t, "infra", "web")
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm", "DB_PASSWORD": "db"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger: TriggerManual,
		Filter:  github.FilterAll,
		Secrets: specs("NPM_TOKEN", "DB_PASSWORD"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if summary.Created != 4 {
		t.Errorf("created = %d, want 4 (2 repos x 2 secrets)", summary.Created)
	}
	if summary.Failed != 0 || len(summary.Warnings) != 0 {
		t.Errorf("unexpected failures or warnings: %+v", summary)
	}
	if summary.Trigger != "manual" || summary.DryRun {
		t.Errorf("summary identity wrong: %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("run ID not assigned")
	}
}

func TestExecute_RerunUpdatesInsteadOfCreates(t *testing.T) {
	gh := newFakeGitHub(t, "infra")
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})
	req := Request{Trigger: TriggerManual, Filter: github.FilterAll, Secrets: specs("NPM_TOKEN")}

	first, err := c.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	second, err := c.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}

	if first.Created != 1 || second.Updated != 1 || second.Created != 0 {
		t.Errorf("create-then-update not observed: first=%+v second=%+v", first, second)
	}
}

func TestExecute_ScheduleForcesDryRun(t *testing.T) {
	gh := newFakeGitHub(t, "infra")
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger: TriggerSchedule,
		DryRun:  false, // must be overridden
		Filter:  github.FilterAll,
		Secrets: specs("NPM_TOKEN"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !summary.DryRun {
		t.Error("scheduled run did not force dry-run")
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if len(gh.putCalls) != 0 {
		t.Errorf("scheduled run mutated repositories: %v", gh.putCalls)
	}
	for _, result := range summary.Results {
		if result.Reason != report.ReasonDryRun {
			t.Errorf("result reason = %q, want %q", result.Reason, report.ReasonDryRun)
		}
	}
}

func TestExecute_ManualHonorsDryRunRequest(t *testing.T) {
	gh := newFakeGitHub(t, "infra")
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger: TriggerManual,
		DryRun:  true,
		Filter:  github.FilterAll,
		Secrets: specs("NPM_TOKEN"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !summary.DryRun || summary.Skipped != 1 || len(gh.putCalls) != 0 {
		t.Errorf("manual dry-run not honored: %+v puts=%v", summary, gh.putCalls)
	}
}

func TestExecute_EmptyRepositoryListWarns(t *testing.T) {
	gh := newFakeGitHub(t)
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger: TriggerManual,
		Filter:  github.FilterAll,
		Secrets: specs("NPM_TOKEN"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, empty fleet must complete", err)
	}
	if len(summary.Warnings) != 1 {
		t.Fatalf("warnings = %v, want explicit empty-list warning", summary.Warnings)
	}
	if len(summary.Results) != 0 {
		t.Errorf("results = %v, want none", summary.Results)
	}
}

func TestExecute_MissingSecretDroppedWithWarning(t *testing.T) {
	gh := newFakeGitHub(t, "infra")
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger: TriggerManual,
		Filter:  github.FilterAll,
		Secrets: specs("NPM_TOKEN", "ABSENT"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if summary.Created != 1 {
		t.Errorf("created = %d, want resolved secret still deployed", summary.Created)
	}
	if len(summary.Warnings) != 1 {
		t.Errorf("warnings = %v, want one for the dropped secret", summary.Warnings)
	}
	for _, call := range gh.putCalls {
		if call == "infra/ABSENT" {
			t.Error("dropped secret was deployed")
		}
	}
}

func TestExecute_AuthorizationFailureAbortsBeforeMutation(t *testing.T) {
	gh := newFakeGitHub(t, "infra")
	gh.listErr = &github.AuthorizationError{Err: errors.New("bad credentials")}
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger: TriggerManual,
		Filter:  github.FilterAll,
		Secrets: specs("NPM_TOKEN"),
	})
	if !github.IsAuthorization(err) {
		t.Fatalf("Execute() error = %v, want AuthorizationError", err)
	}
	if len(gh.putCalls) != 0 {
		t.Errorf("mutations before abort: %v", gh.putCalls)
	}
	if len(summary.Warnings) == 0 {
		t.Error("summary does not mention the abort")
	}
}

func TestExecute_UnresolvableRepoNamesBecomeWarnings(t *testing.T) {
	gh := newFakeGitHub(t, "infra")
	gh.skipped = []error{&github.NotFoundError{Owner: "shavakan", Name: "gone"}}
	src := &mapSource{values: map[string]string{"NPM_TOKEN": "npm"}}
	c := NewController("shavakan", gh, src, metrics.NoopPublisher{})

	summary, err := c.Execute(context.Background(), Request{
		Trigger:       TriggerManual,
		Filter:        github.FilterSpecific,
		SpecificRepos: []string{"infra", "gone"},
		Secrets:       specs("NPM_TOKEN"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1 for the resolvable repo", summary.Created)
	}
	if len(summary.Warnings) != 1 {
		t.Errorf("warnings = %v, want one for the unresolvable name", summary.Warnings)
	}
}
