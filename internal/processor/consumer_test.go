package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorepipe/internal/queue"
	"scorepipe/internal/types"
)

// scriptedQueue delivers one batch of messages, then cancels the consumer's
// context so Run returns.
type scriptedQueue struct {
	batch  []queue.Message
	cancel context.CancelFunc

	mu     sync.Mutex
	served bool
	acked  []string
	nacked []string
}

func (q *scriptedQueue) ReceiveBatch(_ context.Context, _ int, _ time.Duration) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.served {
		q.cancel()
		return nil, nil
	}
	q.served = true
	return q.batch, nil
}

func (q *scriptedQueue) Ack(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, msg.ID)
	return nil
}

func (q *scriptedQueue) Nack(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nacked = append(q.nacked, msg.ID)
	return nil
}

func runConsumerOnce(t *testing.T, q *scriptedQueue, proc *Processor, metrics Metrics) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.cancel = cancel

	c := NewConsumer(q, proc, metrics, ConsumerConfig{BatchSize: 10, MaxWait: 0}, testLogger())
	require.NoError(t, c.Run(ctx))
}

func TestConsumer_AcksSuccessesNacksFailures(t *testing.T) {
	store := &failOnStore{failIDs: map[string]bool{"msg-2": true}}
	proc := newTestProcessor(store)
	metrics := &captureMetrics{}

	q := &scriptedQueue{
		batch: []queue.Message{
			{ID: "msg-1", Body: envelopeBody(t, types.ScoreEvent{Score: "30"}), Attempt: 1},
			{ID: "msg-2", Body: envelopeBody(t, types.ScoreEvent{Score: "10"}), Attempt: 1},
			{ID: "msg-3", Body: envelopeBody(t, types.ScoreEvent{Score: types.ScoreMissing}), Attempt: 2},
		},
	}

	runConsumerOnce(t, q, proc, metrics)

	assert.ElementsMatch(t, []string{"msg-1", "msg-3"}, q.acked)
	assert.Equal(t, []string{"msg-2"}, q.nacked)

	require.Len(t, metrics.batches, 1)
	assert.Equal(t, [3]int{3, 2, 1}, metrics.batches[0])
	assert.ElementsMatch(t, []types.AlertLevel{types.AlertMedium, types.AlertHigh}, metrics.alerts)
}

func TestConsumer_RecordsQueueLag(t *testing.T) {
	proc := newTestProcessor(nil)
	metrics := &captureMetrics{}

	q := &scriptedQueue{
		batch: []queue.Message{
			{ID: "msg-1", Body: envelopeBody(t, types.ScoreEvent{Score: "30"}), SentAt: time.Now().Add(-2 * time.Second)},
			{ID: "msg-2", Body: envelopeBody(t, types.ScoreEvent{Score: "30"})}, // no SentAt reported
		},
	}

	runConsumerOnce(t, q, proc, metrics)

	require.Len(t, metrics.queueLag, 1, "lag is only recorded when the queue reported the enqueue time")
	assert.GreaterOrEqual(t, metrics.queueLag[0], 2*time.Second)
}

func TestConsumer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &scriptedQueue{cancel: func() {}}
	c := NewConsumer(q, newTestProcessor(nil), nil, ConsumerConfig{BatchSize: 10}, testLogger())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after context cancellation")
	}
}

// flakyQueue fails every receive until the context is cancelled.
type flakyQueue struct {
	mu    sync.Mutex
	calls int
}

func (q *flakyQueue) ReceiveBatch(context.Context, int, time.Duration) ([]queue.Message, error) {
	q.mu.Lock()
	q.calls++
	q.mu.Unlock()
	return nil, fmt.Errorf("transient network error")
}

func (q *flakyQueue) Ack(context.Context, queue.Message) error  { return nil }
func (q *flakyQueue) Nack(context.Context, queue.Message) error { return nil }

func TestConsumer_ReceiveErrorDoesNotTerminate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	q := &flakyQueue{}
	c := NewConsumer(q, newTestProcessor(nil), nil, ConsumerConfig{BatchSize: 10}, testLogger())

	require.NoError(t, c.Run(ctx))

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.GreaterOrEqual(t, q.calls, 1)
}
