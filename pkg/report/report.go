// Package report accumulates per-pair deployment outcomes for a run and
// produces the final run summary.
package report

import (
	"sync"
	"time"
)

// Outcome classifies the result of one (repository, secret) pair.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ReasonDryRun marks pairs skipped because the run was a rehearsal.
const ReasonDryRun = "dry-run"

// Result records the outcome for one attempted (repository, secret) pair.
type Result struct {
	Repo    string  `json:"repo"`
	Secret  string  `json:"secret"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// BatchFailure records a batch abandoned under persistent throttling.
// Pairs never attempted in that batch carry no Result.
type BatchFailure struct {
	Batch  int    `json:"batch"`
	Reason string `json:"reason"`
}

// Report collects outcomes as batches execute. All methods are safe for
// concurrent use; after Finish the report is sealed and further recording
// is discarded.
type Report struct {
	mu sync.Mutex

	runID   string
	trigger string
	dryRun  bool
	started time.Time

	results       []Result
	warnings      []string
	batchFailures []BatchFailure

	summary *Summary
}

// Summary is the immutable view of a completed run.
type Summary struct {
	RunID    string        `json:"run_id"`
	Trigger  string        `json:"trigger"`
	DryRun   bool          `json:"dry_run"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	Results       []Result       `json:"results"`
	Warnings      []string       `json:"warnings,omitempty"`
	BatchFailures []BatchFailure `json:"batch_failures,omitempty"`
}

// New starts a report for one run.
func New(runID, trigger string, dryRun bool) *Report {
	return &Report{
		runID:   runID,
		trigger: trigger,
		dryRun:  dryRun,
		started: time.Now(),
	}
}

// Add records the outcome for one attempted pair.
func (r *Report) Add(repo, secret string, outcome Outcome, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		return
	}
	r.results = append(r.results, Result{Repo: repo, Secret: secret, Outcome: outcome, Reason: reason})
}

// AddWarning records a run-level condition that is not a failure, such as
// an empty repository list.
func (r *Report) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		return
	}
	r.warnings = append(r.warnings, msg)
}

// AddBatchFailure records a batch abandoned after throttle retries were
// exhausted.
func (r *Report) AddBatchFailure(batch int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		return
	}
	r.batchFailures = append(r.batchFailures, BatchFailure{Batch: batch, Reason: reason})
}

// Finish seals the report and returns the summary. Subsequent calls return
// the same summary.
func (r *Report) Finish() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary != nil {
		return *r.summary
	}

	s := Summary{
		RunID:         r.runID,
		Trigger:       r.trigger,
		DryRun:        r.dryRun,
		Started:       r.started,
		Duration:      time.Since(r.started),
		Results:       r.results,
		Warnings:      r.warnings,
		BatchFailures: r.batchFailures,
	}
	for _, result := range r.results {
		switch result.Outcome {
		case OutcomeCreated:
			s.Created++
		case OutcomeUpdated:
			s.Updated++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}

	r.summary = &s
	return s
}
