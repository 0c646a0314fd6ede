package deploy

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	gogithub "github.com/google/go-github/v57/github"
	"golang.org/x/crypto/nacl/box"

	"github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/report"
)

// fakeAPI implements GitHubAPI with scripted responses.
type fakeAPI struct {
	key        *gogithub.PublicKey
	keyErr     error
	keyCalls   int
	putCalls   []string // "repo/secret"
	putResults map[string]putResult
}

type putResult struct {
	created bool
	err     error
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	pub, _, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(pub[:])
	return &fakeAPI{
		key: &gogithub.PublicKey{
			KeyID: gogithub.String("key-1"),
			Key:   gogithub.String(encoded),
		},
		putResults: make(map[string]putResult),
	}
}

func (f *fakeAPI) GetPublicKey(_ context.Context, _, _ string) (*gogithub.PublicKey, error) {
	f.keyCalls++
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return f.key, nil
}

func (f *fakeAPI) PutSecret(_ context.Context, owner, repo, name, _, _ string) (bool, error) {
	pair := fmt.Sprintf("%s/%s/%s", owner, repo, name)
	f.putCalls = append(f.putCalls, pair)
	result, ok := f.putResults[pair]
	if !ok {
		return true, nil
	}
	if result.err != nil {
		// One-shot scripted errors so retries can succeed.
		delete(f.putResults, pair)
	}
	return result.created, result.err
}

func testRepo() github.Repository {
	return github.Repository{Owner: "shavakan", Name: "infra", FullName: "shavakan/infra"}
}

func outcomesByPair(s report.Summary) map[string]report.Result {
	out := make(map[string]report.Result)
	for _, result := range s.Results {
		out[result.Repo+"/"+result.Secret] = result
	}
	return out
}

func TestExecutor_CreatedAndUpdated(t *testing.T) {
	api := newFakeAPI(t)
	api.putResults["shavakan/infra/DB_PASSWORD"] = putResult{created: false}

	rep := report.New("run-1", "manual", false)
	exec := NewExecutor(api, []Secret{
		{Name: "NPM_TOKEN", Value: "npm-secret"},
		{Name: "DB_PASSWORD", Value: "db-secret"},
	}, rep, false)

	if err := exec.DeployRepo(context.Background(), testRepo()); err != nil {
		t.Fatalf("DeployRepo() error = %v", err)
	}

	s := rep.Finish()
	if s.Created != 1 || s.Updated != 1 {
		t.Errorf("created/updated = %d/%d, want 1/1", s.Created, s.Updated)
	}
}

func TestExecutor_DryRunSkipsWithoutAPICalls(t *testing.T) {
	api := newFakeAPI(t)
	rep := report.New("run-1", "schedule", true)
	exec := NewExecutor(api, []Secret{
		{Name: "NPM_TOKEN", Value: "npm-secret"},
		{Name: "DB_PASSWORD", Value: "db-secret"},
	}, rep, true)

	if err := exec.DeployRepo(context.Background(), testRepo()); err != nil {
		t.Fatalf("DeployRepo() error = %v", err)
	}

	if api.keyCalls != 0 || len(api.putCalls) != 0 {
		t.Errorf("dry run touched the API: %d key calls, %d puts", api.keyCalls, len(api.putCalls))
	}

	s := rep.Finish()
	if s.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", s.Skipped)
	}
	for _, result := range s.Results {
		if result.Reason != report.ReasonDryRun {
			t.Errorf("result reason = %q, want %q", result.Reason, report.ReasonDryRun)
		}
	}
}

func TestExecutor_KeyFetchFailurePoisonsAllPairs(t *testing.T) {
	api := newFakeAPI(t)
	api.keyErr = errors.New("boom")

	rep := report.New("run-1", "manual", false)
	exec := NewExecutor(api, []Secret{
		{Name: "NPM_TOKEN", Value: "npm-secret"},
		{Name: "DB_PASSWORD", Value: "db-secret"},
	}, rep, false)

	if err := exec.DeployRepo(context.Background(), testRepo()); err != nil {
		t.Fatalf("DeployRepo() error = %v, key failure is pair-scoped", err)
	}

	s := rep.Finish()
	if s.Failed != 2 {
		t.Errorf("failed = %d, want 2", s.Failed)
	}
	if len(api.putCalls) != 0 {
		t.Errorf("puts attempted without a key: %v", api.putCalls)
	}
}

func TestExecutor_PairFailureDoesNotStopOthers(t *testing.T) {
	api := newFakeAPI(t)
	api.putResults["shavakan/infra/NPM_TOKEN"] = putResult{err: errors.New("422 validation failed")}

	rep := report.New("run-1", "manual", false)
	exec := NewExecutor(api, []Secret{
		{Name: "NPM_TOKEN", Value: "npm-secret"},
		{Name: "DB_PASSWORD", Value: "db-secret"},
	}, rep, false)

	if err := exec.DeployRepo(context.Background(), testRepo()); err != nil {
		t.Fatalf("DeployRepo() error = %v", err)
	}

	s := rep.Finish()
	if s.Failed != 1 || s.Created != 1 {
		t.Errorf("failed/created = %d/%d, want 1/1", s.Failed, s.Created)
	}
	pairs := outcomesByPair(s)
	if pairs["shavakan/infra/DB_PASSWORD"].Outcome != report.OutcomeCreated {
		t.Errorf("DB_PASSWORD outcome = %+v, want created", pairs["shavakan/infra/DB_PASSWORD"])
	}
}

func TestExecutor_ThrottleRetryResumesWithoutDuplicates(t *testing.T) {
	api := newFakeAPI(t)
	throttled := &github.DeployError{Repo: "shavakan/infra", Secret: "DB_PASSWORD", Throttled: true, Err: errors.New("429")}
	api.putResults["shavakan/infra/DB_PASSWORD"] = putResult{err: throttled}

	rep := report.New("run-1", "manual", false)
	exec := NewExecutor(api, []Secret{
		{Name: "NPM_TOKEN", Value: "npm-secret"},
		{Name: "DB_PASSWORD", Value: "db-secret"},
		{Name: "API_KEY", Value: "api-secret"},
	}, rep, false)
	repo := testRepo()

	err := exec.DeployRepo(context.Background(), repo)
	if !github.IsThrottled(err) {
		t.Fatalf("DeployRepo() error = %v, want throttled", err)
	}

	// Simulates the batch runner retrying after backoff.
	if err := exec.DeployRepo(context.Background(), repo); err != nil {
		t.Fatalf("retry DeployRepo() error = %v", err)
	}

	s := rep.Finish()
	if len(s.Results) != 3 {
		t.Fatalf("got %d results, want exactly one per pair: %+v", len(s.Results), s.Results)
	}
	if s.Created != 3 {
		t.Errorf("created = %d, want 3", s.Created)
	}

	var npmPuts int
	for _, call := range api.putCalls {
		if call == "shavakan/infra/NPM_TOKEN" {
			npmPuts++
		}
	}
	if npmPuts != 1 {
		t.Errorf("NPM_TOKEN uploaded %d times, finalized pairs must not be re-attempted", npmPuts)
	}
}
