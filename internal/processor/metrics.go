package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"scorepipe/internal/types"
)

// Metrics records batch processing telemetry.
type Metrics interface {
	// RecordBatch emits batch-level counters after each batch completes.
	RecordBatch(ctx context.Context, received, processed, failed int)
	// RecordAlert emits a per-item counter dimensioned by alert level.
	RecordAlert(ctx context.Context, level types.AlertLevel)
	// RecordQueueLag emits the time between enqueue and processing start.
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics against CloudWatch. Metric emission is
// best-effort: failures are logged and never affect message processing.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// Compile-time assertion.
var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordBatch emits BatchReceived, ItemsProcessed, and ItemsFailed counters.
func (m *CloudWatchMetrics) RecordBatch(ctx context.Context, received, processed, failed int) {
	m.put(ctx, []cwtypes.MetricDatum{
		counter(types.MetricBatchReceived, float64(received)),
		counter(types.MetricItemsProcessed, float64(processed)),
		counter(types.MetricItemsFailed, float64(failed)),
	})
}

// RecordAlert emits an ItemsProcessed counter dimensioned by alert level.
func (m *CloudWatchMetrics) RecordAlert(ctx context.Context, level types.AlertLevel) {
	datum := counter(types.MetricItemsProcessed, 1)
	datum.Dimensions = []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimAlertLevel),
			Value: aws.String(string(level)),
		},
	}
	m.put(ctx, []cwtypes.MetricDatum{datum})
}

// RecordQueueLag emits the QueueLag metric in milliseconds.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricQueueLag),
			Value:      aws.Float64(float64(lag.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics", "error", err)
	}
}

func counter(name string, value float64) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
	}
}

// NoopMetrics discards all telemetry. Used when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordBatch(ctx context.Context, received, processed, failed int) {}
func (NoopMetrics) RecordAlert(ctx context.Context, level types.AlertLevel)          {}
func (NoopMetrics) RecordQueueLag(ctx context.Context, lag time.Duration)            {}
