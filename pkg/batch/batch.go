// Package batch schedules repository deployment in fixed-size batches with
// bounded parallelism and throttle backoff.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Shavakan/secrets-fleet/pkg/github"
	"github.com/Shavakan/secrets-fleet/pkg/logging"
)

var log = logging.WithComponent(logging.LogTypeBatch, "runner")

// Defaults for the runner. Batch size and parallelism follow the fleet
// defaults in pkg/config.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Partition splits repos into consecutive batches of at most size,
// preserving enumeration order. Every repository lands in exactly one batch.
func Partition(repos []github.Repository, size int) [][]github.Repository {
	if size <= 0 || len(repos) == 0 {
		return nil
	}
	batches := make([][]github.Repository, 0, (len(repos)+size-1)/size)
	for start := 0; start < len(repos); start += size {
		end := start + size
		if end > len(repos) {
			end = len(repos)
		}
		batches = append(batches, repos[start:end])
	}
	return batches
}

// Failure records a batch abandoned before all of its repositories were
// attempted.
type Failure struct {
	Batch int
	Err   error
}

// RepoFunc deploys all secrets to one repository. A throttled error return
// triggers backoff and retry of the same repository; the callee must make
// re-entry safe. Any other error is the callee's to record, and the runner
// moves on to the next repository.
type RepoFunc func(ctx context.Context, repo github.Repository) error

// Runner executes batches of repositories. Batches run concurrently up to
// MaxParallel; within a batch, repositories are processed sequentially to
// keep per-batch API pressure bounded.
type Runner struct {
	MaxParallel int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnBackoff, when set, observes each throttle backoff before the
	// runner sleeps.
	OnBackoff func(batch, attempt int, delay time.Duration)
}

// NewRunner creates a runner with default retry tuning.
func NewRunner(maxParallel int) *Runner {
	return &Runner{
		MaxParallel: maxParallel,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Run executes every batch and returns the batch-level failures. A
// cancelled context abandons batches not yet started; batches already
// running finish their current repository first.
func (r *Runner) Run(ctx context.Context, batches [][]github.Repository, fn RepoFunc) []Failure {
	if len(batches) == 0 {
		return nil
	}

	maxParallel := r.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	failures := make([]error, len(batches))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, repos := range batches {
		if ctx.Err() != nil {
			failures[i] = fmt.Errorf("batch not started: %w", ctx.Err())
			continue
		}

		// Cancellation while waiting for a slot must not dispatch the batch
		// once a running batch frees one.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			failures[i] = fmt.Errorf("batch not started: %w", ctx.Err())
			continue
		}

		wg.Add(1)
		go func(index int, repos []github.Repository) {
			defer wg.Done()
			defer func() { <-sem }()
			failures[index] = r.runBatch(ctx, index, repos, fn)
		}(i, repos)
	}
	wg.Wait()

	var out []Failure
	for i, err := range failures {
		if err != nil {
			out = append(out, Failure{Batch: i, Err: err})
		}
	}
	return out
}

// runBatch processes one batch sequentially. Persistent throttling
// abandons the batch; repositories not yet attempted are skipped.
func (r *Runner) runBatch(ctx context.Context, index int, repos []github.Repository, fn RepoFunc) error {
	for _, repo := range repos {
		if err := r.runRepo(ctx, index, repo, fn); err != nil {
			if github.IsThrottled(err) {
				log.Warn("abandoning batch under persistent throttling",
					slog.Int(logging.KeyBatch, index),
					slog.String(logging.KeyRepo, repo.FullName))
				return fmt.Errorf("rate limit persisted after %d attempts: %w", r.maxAttempts(), err)
			}
			return err
		}
	}
	return nil
}

// runRepo invokes fn, backing off and retrying while the error is
// throttle-classified. Non-throttle errors from fn never surface here.
func (r *Runner) runRepo(ctx context.Context, index int, repo github.Repository, fn RepoFunc) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts(); attempt++ {
		if attempt > 0 {
			delay := r.backoffDelay(attempt - 1)
			if r.OnBackoff != nil {
				r.OnBackoff(index, attempt, delay)
			}
			log.Info("throttled, backing off",
				slog.Int(logging.KeyBatch, index),
				slog.String(logging.KeyRepo, repo.FullName),
				slog.Int(logging.KeyAttempt, attempt),
				slog.Duration(logging.KeyDuration, delay))
			select {
			case <-ctx.Done():
				return fmt.Errorf("backoff interrupted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn(ctx, repo)
		if err == nil || !github.IsThrottled(err) {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (r *Runner) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

// backoffDelay calculates exponential backoff with 50-100% jitter.
func (r *Runner) backoffDelay(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := base * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay / 2)))
	return delay/2 + jitter
}
