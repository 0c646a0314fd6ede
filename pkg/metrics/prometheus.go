package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultPrometheusNamespace = "secrets_fleet"

// PrometheusPublisher publishes metrics to Prometheus via /metrics endpoint.
// All Publisher interface methods are documented on the Publisher interface.
type PrometheusPublisher struct {
	registry *prometheus.Registry

	runDuration      prometheus.Histogram
	runSuccess       prometheus.Counter
	runFailure       prometheus.Counter
	reposEnumerated  prometheus.Gauge
	secretsCreated   prometheus.Counter
	secretsUpdated   prometheus.Counter
	secretsSkipped   prometheus.Counter
	secretsFailed    prometheus.Counter
	throttleBackoffs prometheus.Counter
	batchFailures    prometheus.Counter
	emptyRuns        prometheus.Counter
	dispatches       *prometheus.CounterVec
}

// Ensure PrometheusPublisher implements Publisher.
var _ Publisher = (*PrometheusPublisher)(nil)

// PrometheusConfig holds configuration for the Prometheus publisher.
type PrometheusConfig struct {
	Namespace string
}

// NewPrometheusPublisher creates a Prometheus metrics publisher.
func NewPrometheusPublisher(cfg PrometheusConfig) *PrometheusPublisher {
	if cfg.Namespace == "" {
		cfg.Namespace = defaultPrometheusNamespace
	}

	registry := prometheus.NewRegistry()

	p := &PrometheusPublisher{
		registry: registry,

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of deployment runs in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		runSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "run_success_total",
			Help:      "Total number of runs completed without failures",
		}),
		runFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "run_failure_total",
			Help:      "Total number of runs that recorded failures",
		}),
		reposEnumerated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "repos_enumerated",
			Help:      "Repositories targeted by the most recent run",
		}),
		secretsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "secrets_created_total",
			Help:      "Total number of repository secrets created",
		}),
		secretsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "secrets_updated_total",
			Help:      "Total number of repository secrets overwritten",
		}),
		secretsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "secrets_skipped_total",
			Help:      "Total number of pairs skipped by dry-run",
		}),
		secretsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "secrets_failed_total",
			Help:      "Total number of pair-scoped deployment failures",
		}),
		throttleBackoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "throttle_backoffs_total",
			Help:      "Total number of throttle backoffs during deployment",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "batch_failures_total",
			Help:      "Total number of batches abandoned under persistent throttling",
		}),
		emptyRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "empty_runs_total",
			Help:      "Total number of runs with an empty repository list",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "dispatches_total",
			Help:      "Total number of run dispatches",
		}, []string{"trigger"}),
	}

	registry.MustRegister(
		p.runDuration,
		p.runSuccess,
		p.runFailure,
		p.reposEnumerated,
		p.secretsCreated,
		p.secretsUpdated,
		p.secretsSkipped,
		p.secretsFailed,
		p.throttleBackoffs,
		p.batchFailures,
		p.emptyRuns,
		p.dispatches,
	)

	return p
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (p *PrometheusPublisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry for custom integrations.
func (p *PrometheusPublisher) Registry() *prometheus.Registry {
	return p.registry
}

// Close implements Publisher.Close. Prometheus registry doesn't require cleanup.
func (p *PrometheusPublisher) Close() error {
	return nil
}

// Publisher interface implementation below.
// All methods are documented on the Publisher interface.

func (p *PrometheusPublisher) PublishRunDuration(_ context.Context, durationSeconds int) error { //nolint:revive
	p.runDuration.Observe(float64(durationSeconds))
	return nil
}

func (p *PrometheusPublisher) PublishRunSuccess(_ context.Context) error { //nolint:revive
	p.runSuccess.Inc()
	return nil
}

func (p *PrometheusPublisher) PublishRunFailure(_ context.Context) error { //nolint:revive
	p.runFailure.Inc()
	return nil
}

func (p *PrometheusPublisher) PublishReposEnumerated(_ context.Context, count int) error { //nolint:revive
	p.reposEnumerated.Set(float64(count))
	return nil
}

func (p *PrometheusPublisher) PublishSecretsCreated(_ context.Context, count int) error { //nolint:revive
	p.secretsCreated.Add(float64(count))
	return nil
}

func (p *PrometheusPublisher) PublishSecretsUpdated(_ context.Context, count int) error { //nolint:revive
	p.secretsUpdated.Add(float64(count))
	return nil
}

func (p *PrometheusPublisher) PublishSecretsSkipped(_ context.Context, count int) error { //nolint:revive
	p.secretsSkipped.Add(float64(count))
	return nil
}

func (p *PrometheusPublisher) PublishSecretsFailed(_ context.Context, count int) error { //nolint:revive
	p.secretsFailed.Add(float64(count))
	return nil
}

func (p *PrometheusPublisher) PublishThrottleBackoff(_ context.Context) error { //nolint:revive
	p.throttleBackoffs.Inc()
	return nil
}

func (p *PrometheusPublisher) PublishBatchFailure(_ context.Context) error { //nolint:revive
	p.batchFailures.Inc()
	return nil
}

func (p *PrometheusPublisher) PublishEmptyRun(_ context.Context) error { //nolint:revive
	p.emptyRuns.Inc()
	return nil
}

func (p *PrometheusPublisher) PublishDispatch(_ context.Context, trigger string) error { //nolint:revive
	p.dispatches.WithLabelValues(trigger).Inc()
	return nil
}

// PublishServiceCheck is a no-op for Prometheus (Datadog-specific feature).
func (p *PrometheusPublisher) PublishServiceCheck(_ context.Context, _ string, _ int, _ string) error { //nolint:revive
	return nil
}

// PublishEvent is a no-op for Prometheus (Datadog-specific feature).
func (p *PrometheusPublisher) PublishEvent(_ context.Context, _, _, _ string, _ []string) error { //nolint:revive
	return nil
}
