package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
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
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	done   chan struct{}
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, params)
	m.mu.Unlock()
	close(m.done)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchCollector_RecordRequest(t *testing.T) {
	client := &mockCloudWatch{done: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCloudWatchCollector(client, "ScorePipe", logger)

	c.RecordRequest("GET", "/api/score", "200", 42*time.Millisecond)

	select {
	case <-client.done:
	case <-time.After(time.Second):
		t.Fatal("metric was never published")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "ScorePipe", aws.ToString(in.Namespace))

	require.Len(t, in.MetricData, 1)
	datum := in.MetricData[0]
	assert.Equal(t, types.MetricAPILatency, aws.ToString(datum.MetricName))
	assert.Equal(t, float64(42), aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)

	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, types.DimEndpoint, aws.ToString(datum.Dimensions[0].Name))
	assert.Equal(t, "GET /api/score", aws.ToString(datum.Dimensions[0].Value))
}
