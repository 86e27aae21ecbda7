package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"scorepipe/internal/types"
)

// metricsFlushTimeout bounds each background PutMetricData call.
const metricsFlushTimeout = 5 * time.Second

// CloudWatchAPI abstracts the PutMetricData operation for testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector implements MetricsCollector against CloudWatch.
// Emission happens on a detached goroutine and is best-effort: a metrics
// outage never adds latency to, or fails, the request path.
type CloudWatchCollector struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

var _ MetricsCollector = (*CloudWatchCollector)(nil)

// NewCloudWatchCollector creates a collector publishing to the given
// namespace.
func NewCloudWatchCollector(client CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatchCollector {
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits the request latency dimensioned by endpoint.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEndpoint), Value: aws.String(method + " " + endpoint)},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
		defer cancel()

		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: []cwtypes.MetricDatum{datum},
		})
		if err != nil {
			c.logger.Warn("failed to publish request metrics",
				"endpoint", endpoint,
				"status", status,
				"error", err,
			)
		}
	}()
}
