package report

import (
	"sync"
	"testing"
)

func TestReport_Counts(t *testing.T) {
	r := New("run-1", "manual", false)
	r.Add("shavakan/infra", "NPM_TOKEN", OutcomeCreated, "")
	r.Add("shavakan/infra", "DB_PASSWORD", OutcomeUpdated, "")
	r.Add("shavakan/web", "NPM_TOKEN", OutcomeFailed, "deploy failed")
	r.Add("shavakan/web", "DB_PASSWORD", OutcomeSkipped, ReasonDryRun)
	r.AddWarning("repository list empty after filtering")
	r.AddBatchFailure(2, "rate limit persisted after retries")

	s := r.Finish()
	if s.Created != 1 || s.Updated != 1 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 1/1/1/1", s.Created, s.Updated, s.Skipped, s.Failed)
	}
	if len(s.Results) != 4 {
		t.Errorf("got %d results, want 4", len(s.Results))
	}
	if len(s.Warnings) != 1 || len(s.BatchFailures) != 1 {
		t.Errorf("warnings/batchFailures = %d/%d, want 1/1", len(s.Warnings), len(s.BatchFailures))
	}
	if s.RunID != "run-1" || s.Trigger != "manual" || s.DryRun {
		t.Errorf("summary identity fields wrong: %+v", s)
	}
}

func TestReport_SealedAfterFinish(t *testing.T) {
	r := New("run-1", "manual", false)
	r.Add("shavakan/infra", "NPM_TOKEN", OutcomeCreated, "")

	first := r.Finish()
	r.Add("shavakan/infra", "DB_PASSWORD", OutcomeCreated, "")
	r.AddWarning("late warning")
	second := r.Finish()

	if len(second.Results) != len(first.Results) {
		t.Errorf("results grew after Finish: %d -> %d", len(first.Results), len(second.Results))
	}
	if len(second.Warnings) != 0 {
		t.Errorf("warnings recorded after Finish: %v", second.Warnings)
	}
	if second.Duration != first.Duration {
		t.Error("Finish() is not idempotent")
	}
}

func TestReport_ConcurrentAdd(t *testing.T) {
	r := New("run-1", "schedule", true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Add("shavakan/infra", "NPM_TOKEN", OutcomeSkipped, ReasonDryRun)
		}()
	}
	wg.Wait()

	s := r.Finish()
	if s.Skipped != 50 {
		t.Errorf("skipped = %d, want 50", s.Skipped)
	}
}
