package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shavakan/secrets-fleet/pkg/logging"
)

const publishTimeout = 5 * time.Second

var metricsLog = logging.WithComponent(logging.LogTypeMetrics, "multi")

// MultiPublisher publishes metrics to multiple backends simultaneously.
// All Publisher interface methods are documented on the Publisher interface.
type MultiPublisher struct {
	publishers []Publisher
}

// Ensure MultiPublisher implements Publisher.
var _ Publisher = (*MultiPublisher)(nil)

// NewMultiPublisher creates a publisher that fans out to multiple backends.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Add adds a publisher to the fan-out list.
func (m *MultiPublisher) Add(p Publisher) {
	m.publishers = append(m.publishers, p)
}

// Publishers returns the list of configured publishers.
func (m *MultiPublisher) Publishers() []Publisher {
	return m.publishers
}

// Close closes all child publishers.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) publishAll(fn func(p Publisher) error) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, p := range m.publishers {
		wg.Add(1)
		go func(pub Publisher) {
			defer wg.Done()
			done := make(chan error, 1)
			go func() {
				done <- fn(pub)
			}()
			select {
			case err := <-done:
				if err != nil {
					metricsLog.Warn("metrics publish error", slog.String("error", err.Error()))
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			case <-time.After(publishTimeout):
				metricsLog.Warn("metrics publish timeout", slog.Duration("timeout", publishTimeout))
				mu.Lock()
				errs = append(errs, fmt.Errorf("publish timeout after %v", publishTimeout))
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Publisher interface implementation below.
// All methods are documented on the Publisher interface.

func (m *MultiPublisher) PublishRunDuration(ctx context.Context, durationSeconds int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishRunDuration(ctx, durationSeconds)
	})
}

func (m *MultiPublisher) PublishRunSuccess(ctx context.Context) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishRunSuccess(ctx)
	})
}

func (m *MultiPublisher) PublishRunFailure(ctx context.Context) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishRunFailure(ctx)
	})
}

func (m *MultiPublisher) PublishReposEnumerated(ctx context.Context, count int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishReposEnumerated(ctx, count)
	})
}

func (m *MultiPublisher) PublishSecretsCreated(ctx context.Context, count int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishSecretsCreated(ctx, count)
	})
}

func (m *MultiPublisher) PublishSecretsUpdated(ctx context.Context, count int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishSecretsUpdated(ctx, count)
	})
}

func (m *MultiPublisher) PublishSecretsSkipped(ctx context.Context, count int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishSecretsSkipped(ctx, count)
	})
}

func (m *MultiPublisher) PublishSecretsFailed(ctx context.Context, count int) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishSecretsFailed(ctx, count)
	})
}

func (m *MultiPublisher) PublishThrottleBackoff(ctx context.Context) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishThrottleBackoff(ctx)
	})
}

func (m *MultiPublisher) PublishBatchFailure(ctx context.Context) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishBatchFailure(ctx)
	})
}

func (m *MultiPublisher) PublishEmptyRun(ctx context.Context) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishEmptyRun(ctx)
	})
}

func (m *MultiPublisher) PublishDispatch(ctx context.Context, trigger string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishDispatch(ctx, trigger)
	})
}

func (m *MultiPublisher) PublishServiceCheck(ctx context.Context, name string, status int, message string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishServiceCheck(ctx, name, status, message)
	})
}

func (m *MultiPublisher) PublishEvent(ctx context.Context, title, text, alertType string, tags []string) error { //nolint:revive
	return m.publishAll(func(p Publisher) error {
		return p.PublishEvent(ctx, title, text, alertType, tags)
	})
}
