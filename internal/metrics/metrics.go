// Package metrics publishes custom resource delivery outcomes to CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cfnresponse/internal/types"
)

// Result dimension values.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDeliveryMetrics emits one datum per delivery attempt.
//
// Metrics emitted:
//   - DeliveryAttempt: Dims {Status, Result}
//   - DeliveryAttemptLatency: no dims, milliseconds
//
// A failed PutMetricData is logged and otherwise ignored; metrics never
// change a delivery outcome.
type CloudWatchDeliveryMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchDeliveryMetrics creates a recorder publishing to namespace.
// An empty namespace falls back to types.DefaultMetricNamespace.
func NewCloudWatchDeliveryMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchDeliveryMetrics {
	if namespace == "" {
		namespace = types.DefaultMetricNamespace
	}
	return &CloudWatchDeliveryMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDelivery emits a DeliveryAttempt count with the reported status and
// whether the PUT went through.
func (m *CloudWatchDeliveryMetrics) RecordDelivery(ctx context.Context, status string, delivered bool) {
	result := ResultFailed
	if delivered {
		result = ResultDelivered
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimStatus),
						Value: aws.String(status),
					},
					{
						Name:  aws.String(types.DimResult),
						Value: aws.String(result),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"status", status,
			"result", result,
		)
	}
}

// RecordLatency emits the duration of the PUT in milliseconds.
func (m *CloudWatchDeliveryMetrics) RecordLatency(ctx context.Context, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDeliveryLatency),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"duration_ms", d.Milliseconds(),
		)
	}
}

// NoopRecorder discards every measurement.
type NoopRecorder struct{}

func (NoopRecorder) RecordDelivery(context.Context, string, bool)  {}
func (NoopRecorder) RecordLatency(context.Context, time.Duration) {}
