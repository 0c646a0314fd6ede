package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

const defaultDatadogNamespace = "secrets_fleet"

// ServiceCheckStatus represents Datadog service check status values.
const (
	ServiceCheckOK       = 0
	ServiceCheckWarning  = 1
	ServiceCheckCritical = 2
	ServiceCheckUnknown  = 3
)

// DatadogPublisher publishes metrics to Datadog via DogStatsD.
// All Publisher interface methods are documented on the Publisher interface.
type DatadogPublisher struct {
	client    *statsd.Client
	namespace string
	tags      []string
}

// Ensure DatadogPublisher implements Publisher.
var _ Publisher = (*DatadogPublisher)(nil)

// DatadogConfig holds configuration for the Datadog publisher.
type DatadogConfig struct {
	// Address is the DogStatsD address (default: "127.0.0.1:8125")
	Address string
	// Namespace is the metric namespace prefix (default: "secrets_fleet")
	Namespace string
	// Tags are global tags applied to all metrics
	Tags []string

	// Client tuning options (0 = use library default)
	BufferFlushInterval time.Duration
	WorkersCount        int
}

// NewDatadogPublisher creates a Datadog metrics publisher using DogStatsD.
func NewDatadogPublisher(cfg DatadogConfig) (*DatadogPublisher, error) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:8125"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = defaultDatadogNamespace
	}

	opts := []statsd.Option{
		statsd.WithNamespace(cfg.Namespace + "."),
		statsd.WithTags(cfg.Tags),
	}

	if cfg.BufferFlushInterval > 0 {
		opts = append(opts, statsd.WithBufferFlushInterval(cfg.BufferFlushInterval))
	}
	if cfg.WorkersCount > 0 {
		opts = append(opts, statsd.WithWorkersCount(cfg.WorkersCount))
	}

	client, err := statsd.New(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DogStatsD client: %w", err)
	}

	return &DatadogPublisher{
		client:    client,
		namespace: cfg.Namespace,
		tags:      cfg.Tags,
	}, nil
}

// Close closes the DogStatsD client connection.
func (p *DatadogPublisher) Close() error {
	return p.client.Close()
}

// Publisher interface implementation below.
// All methods are documented on the Publisher interface.

func (p *DatadogPublisher) PublishRunDuration(_ context.Context, durationSeconds int) error { //nolint:revive
	// Use Distribution for global percentile aggregation across all hosts
	return p.client.Distribution("run_duration_seconds", float64(durationSeconds), nil, 1)
}

func (p *DatadogPublisher) PublishRunSuccess(_ context.Context) error { //nolint:revive
	return p.client.Incr("run_success", nil, 1)
}

func (p *DatadogPublisher) PublishRunFailure(_ context.Context) error { //nolint:revive
	return p.client.Incr("run_failure", nil, 1)
}

func (p *DatadogPublisher) PublishReposEnumerated(_ context.Context, count int) error { //nolint:revive
	return p.client.Gauge("repos_enumerated", float64(count), nil, 1)
}

func (p *DatadogPublisher) PublishSecretsCreated(_ context.Context, count int) error { //nolint:revive
	return p.client.Count("secrets_created", int64(count), nil, 1)
}

func (p *DatadogPublisher) PublishSecretsUpdated(_ context.Context, count int) error { //nolint:revive
	return p.client.Count("secrets_updated", int64(count), nil, 1)
}

func (p *DatadogPublisher) PublishSecretsSkipped(_ context.Context, count int) error { //nolint:revive
	return p.client.Count("secrets_skipped", int64(count), nil, 1)
}

func (p *DatadogPublisher) PublishSecretsFailed(_ context.Context, count int) error { //nolint:revive
	return p.client.Count("secrets_failed", int64(count), nil, 1)
}

func (p *DatadogPublisher) PublishThrottleBackoff(_ context.Context) error { //nolint:revive
	return p.client.Incr("throttle_backoffs", nil, 1)
}

func (p *DatadogPublisher) PublishBatchFailure(_ context.Context) error { //nolint:revive
	return p.client.Incr("batch_failures", nil, 1)
}

func (p *DatadogPublisher) PublishEmptyRun(_ context.Context) error { //nolint:revive
	return p.client.Incr("empty_runs", nil, 1)
}

func (p *DatadogPublisher) PublishDispatch(_ context.Context, trigger string) error { //nolint:revive
	return p.client.Incr("dispatches", []string{"trigger:" + trigger}, 1)
}

// PublishServiceCheck publishes a Datadog service check.
func (p *DatadogPublisher) PublishServiceCheck(_ context.Context, name string, status int, message string) error { //nolint:revive
	var ddStatus statsd.ServiceCheckStatus
	switch status {
	case ServiceCheckOK:
		ddStatus = statsd.Ok
	case ServiceCheckWarning:
		ddStatus = statsd.Warn
	case ServiceCheckCritical:
		ddStatus = statsd.Critical
	default:
		ddStatus = statsd.Unknown
	}

	return p.client.ServiceCheck(&statsd.ServiceCheck{
		Name:    p.namespace + "." + name,
		Status:  ddStatus,
		Message: message,
		Tags:    p.tags,
	})
}

// PublishEvent publishes a Datadog event.
func (p *DatadogPublisher) PublishEvent(_ context.Context, title, text, alertType string, tags []string) error { //nolint:revive
	var ddAlertType statsd.EventAlertType
	switch alertType {
	case "warning":
		ddAlertType = statsd.Warning
	case "error":
		ddAlertType = statsd.Error
	case "success":
		ddAlertType = statsd.Success
	default:
		ddAlertType = statsd.Info
	}

	allTags := make([]string, 0, len(p.tags)+len(tags))
	allTags = append(allTags, p.tags...)
	allTags = append(allTags, tags...)

	return p.client.Event(&statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: ddAlertType,
		Tags:      allTags,
	})
}
