// Package metrics provides metrics publishing abstractions and implementations.
package metrics

import "context"

// Publisher defines the interface for publishing metrics to various backends.
type Publisher interface {
	// Close releases any resources held by the publisher.
	// Implementations that don't need cleanup should return nil.
	Close() error

	// PublishRunDuration publishes run duration in seconds.
	PublishRunDuration(ctx context.Context, durationSeconds int) error

	// PublishRunSuccess publishes a completed run with no failures.
	PublishRunSuccess(ctx context.Context) error

	// PublishRunFailure publishes a completed run that recorded failures.
	PublishRunFailure(ctx context.Context) error

	// PublishReposEnumerated publishes the number of repositories a run targeted.
	PublishReposEnumerated(ctx context.Context, count int) error

	// PublishSecretsCreated publishes the number of secrets created in a run.
	PublishSecretsCreated(ctx context.Context, count int) error

	// PublishSecretsUpdated publishes the number of secrets overwritten in a run.
	PublishSecretsUpdated(ctx context.Context, count int) error

	// PublishSecretsSkipped publishes the number of pairs skipped (dry-run) in a run.
	PublishSecretsSkipped(ctx context.Context, count int) error

	// PublishSecretsFailed publishes the number of pair-scoped failures in a run.
	PublishSecretsFailed(ctx context.Context, count int) error

	// PublishThrottleBackoff publishes one throttle backoff event.
	PublishThrottleBackoff(ctx context.Context) error

	// PublishBatchFailure publishes a batch abandoned under persistent throttling.
	PublishBatchFailure(ctx context.Context) error

	// PublishEmptyRun publishes a run whose repository list was empty.
	PublishEmptyRun(ctx context.Context) error

	// PublishDispatch publishes a run dispatch with trigger dimension
	// ("manual" or "schedule").
	PublishDispatch(ctx context.Context, trigger string) error

	// PublishServiceCheck publishes a service health check.
	// status: 0=OK, 1=Warning, 2=Critical, 3=Unknown
	PublishServiceCheck(ctx context.Context, name string, status int, message string) error

	// PublishEvent publishes a notable event (e.g., batch abandoned, auth failure).
	// alertType: "info", "warning", "error", "success"
	PublishEvent(ctx context.Context, title, text, alertType string, tags []string) error
}

// NoopPublisher is a no-op implementation of Publisher for testing or disabled metrics.
// All methods are documented on the Publisher interface.
type NoopPublisher struct{}

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) Close() error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishRunDuration(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishRunSuccess(context.Context) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishRunFailure(context.Context) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishReposEnumerated(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishSecretsCreated(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishSecretsUpdated(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishSecretsSkipped(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishSecretsFailed(context.Context, int) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishThrottleBackoff(context.Context) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishBatchFailure(context.Context) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishEmptyRun(context.Context) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishDispatch(context.Context, string) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishServiceCheck(context.Context, string, int, string) error { return nil }

//nolint:revive // Interface implementation - documented on Publisher interface
func (NoopPublisher) PublishEvent(context.Context, string, string, string, []string) error {
	return nil
}

// Ensure NoopPublisher implements Publisher.
var _ Publisher = NoopPublisher{}
