package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI provides CloudWatch operations.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher publishes metrics to AWS CloudWatch.
type CloudWatchPublisher struct {
	client    CloudWatchAPI
	namespace string
}

// Ensure CloudWatchPublisher implements Publisher.
var _ Publisher = (*CloudWatchPublisher)(nil)

// NewCloudWatchPublisher creates a CloudWatch metrics publisher.
func NewCloudWatchPublisher(cfg aws.Config) *CloudWatchPublisher {
	return NewCloudWatchPublisherWithNamespace(cfg, "SecretsFleet")
}

// NewCloudWatchPublisherWithNamespace creates a CloudWatch metrics publisher with custom namespace.
func NewCloudWatchPublisherWithNamespace(cfg aws.Config, namespace string) *CloudWatchPublisher {
	return &CloudWatchPublisher{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
	}
}

// NewCloudWatchPublisherWithClient creates a CloudWatch publisher with a custom client (for testing).
func NewCloudWatchPublisherWithClient(client CloudWatchAPI, namespace string) *CloudWatchPublisher {
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
	}
}

// Close implements Publisher.Close. CloudWatch client doesn't require cleanup.
func (p *CloudWatchPublisher) Close() error {
	return nil
}

// PublishRunDuration publishes run duration metric.
func (p *CloudWatchPublisher) PublishRunDuration(ctx context.Context, durationSeconds int) error {
	return p.putMetric(ctx, "RunDuration", float64(durationSeconds), types.StandardUnitSeconds)
}

// PublishRunSuccess publishes run success metric.
func (p *CloudWatchPublisher) PublishRunSuccess(ctx context.Context) error {
	return p.putMetric(ctx, "RunSuccess", 1, types.StandardUnitCount)
}

// PublishRunFailure publishes run failure metric.
func (p *CloudWatchPublisher) PublishRunFailure(ctx context.Context) error {
	return p.putMetric(ctx, "RunFailure", 1, types.StandardUnitCount)
}

// PublishReposEnumerated publishes the targeted repository count as a gauge.
func (p *CloudWatchPublisher) PublishReposEnumerated(ctx context.Context, count int) error {
	return p.putGaugeMetric(ctx, "ReposEnumerated", float64(count), types.StandardUnitCount)
}

// PublishSecretsCreated publishes secrets created metric.
func (p *CloudWatchPublisher) PublishSecretsCreated(ctx context.Context, count int) error {
	return p.putMetric(ctx, "SecretsCreated", float64(count), types.StandardUnitCount)
}

// PublishSecretsUpdated publishes secrets updated metric.
func (p *CloudWatchPublisher) PublishSecretsUpdated(ctx context.Context, count int) error {
	return p.putMetric(ctx, "SecretsUpdated", float64(count), types.StandardUnitCount)
}

// PublishSecretsSkipped publishes secrets skipped metric.
func (p *CloudWatchPublisher) PublishSecretsSkipped(ctx context.Context, count int) error {
	return p.putMetric(ctx, "SecretsSkipped", float64(count), types.StandardUnitCount)
}

// PublishSecretsFailed publishes secrets failed metric.
func (p *CloudWatchPublisher) PublishSecretsFailed(ctx context.Context, count int) error {
	return p.putMetric(ctx, "SecretsFailed", float64(count), types.StandardUnitCount)
}

// PublishThrottleBackoff publishes throttle backoff metric.
func (p *CloudWatchPublisher) PublishThrottleBackoff(ctx context.Context) error {
	return p.putMetric(ctx, "ThrottleBackoffs", 1, types.StandardUnitCount)
}

// PublishBatchFailure publishes batch failure metric.
func (p *CloudWatchPublisher) PublishBatchFailure(ctx context.Context) error {
	return p.putMetric(ctx, "BatchFailures", 1, types.StandardUnitCount)
}

// PublishEmptyRun publishes empty run metric.
func (p *CloudWatchPublisher) PublishEmptyRun(ctx context.Context) error {
	return p.putMetric(ctx, "EmptyRuns", 1, types.StandardUnitCount)
}

// PublishDispatch publishes dispatch metric with trigger dimension.
func (p *CloudWatchPublisher) PublishDispatch(ctx context.Context, trigger string) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String("Dispatches"),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: []types.Dimension{
					{
						Name:  aws.String("Trigger"),
						Value: aws.String(trigger),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish dispatch metric for %s: %w", trigger, err)
	}
	return nil
}

// PublishServiceCheck is a no-op for CloudWatch (Datadog-specific feature).
func (p *CloudWatchPublisher) PublishServiceCheck(_ context.Context, _ string, _ int, _ string) error { //nolint:revive
	return nil
}

// PublishEvent is a no-op for CloudWatch (Datadog-specific feature).
func (p *CloudWatchPublisher) PublishEvent(_ context.Context, _, _, _ string, _ []string) error { //nolint:revive
	return nil
}

func (p *CloudWatchPublisher) putMetric(ctx context.Context, name string, value float64, unit types.StandardUnit) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish metric %s: %w", name, err)
	}
	return nil
}

func (p *CloudWatchPublisher) putGaugeMetric(ctx context.Context, name string, value float64, unit types.StandardUnit) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				StatisticValues: &types.StatisticSet{
					SampleCount: aws.Float64(1),
					Sum:         aws.Float64(value),
					Minimum:     aws.Float64(value),
					Maximum:     aws.Float64(value),
				},
				Unit:      unit,
				Timestamp: aws.Time(time.Now()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish metric %s: %w", name, err)
	}
	return nil
}
