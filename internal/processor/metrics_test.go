package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorepipe/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func metricNames(data []cwtypes.MetricDatum) []string {
	names := make([]string, 0, len(data))
	for _, d := range data {
		names = append(names, aws.ToString(d.MetricName))
	}
	return names
}

func TestCloudWatchMetrics_RecordBatch(t *testing.T) {
	client := &mockCloudWatch{}
	m := NewCloudWatchMetrics(client, "ScorePipe", testLogger())

	m.RecordBatch(context.Background(), 10, 8, 2)

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "ScorePipe", aws.ToString(in.Namespace))
	assert.ElementsMatch(t,
		[]string{types.MetricBatchReceived, types.MetricItemsProcessed, types.MetricItemsFailed},
		metricNames(in.MetricData),
	)
}

func TestCloudWatchMetrics_RecordAlertDimension(t *testing.T) {
	client := &mockCloudWatch{}
	m := NewCloudWatchMetrics(client, "ScorePipe", testLogger())

	m.RecordAlert(context.Background(), types.AlertHigh)

	require.Len(t, client.inputs, 1)
	require.Len(t, client.inputs[0].MetricData, 1)
	datum := client.inputs[0].MetricData[0]
	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, types.DimAlertLevel, aws.ToString(datum.Dimensions[0].Name))
	assert.Equal(t, "HIGH", aws.ToString(datum.Dimensions[0].Value))
}

func TestCloudWatchMetrics_RecordQueueLagMilliseconds(t *testing.T) {
	client := &mockCloudWatch{}
	m := NewCloudWatchMetrics(client, "ScorePipe", testLogger())

	m.RecordQueueLag(context.Background(), 1500*time.Millisecond)

	require.Len(t, client.inputs, 1)
	require.Len(t, client.inputs[0].MetricData, 1)
	datum := client.inputs[0].MetricData[0]
	assert.Equal(t, types.MetricQueueLag, aws.ToString(datum.MetricName))
	assert.Equal(t, float64(1500), aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)
}

func TestCloudWatchMetrics_PublishFailureIsAbsorbed(t *testing.T) {
	client := &mockCloudWatch{err: fmt.Errorf("throttled")}
	m := NewCloudWatchMetrics(client, "ScorePipe", testLogger())

	assert.NotPanics(t, func() {
		m.RecordBatch(context.Background(), 1, 1, 0)
	})
}
