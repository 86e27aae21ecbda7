package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorepipe/internal/types"
)

type mockStore struct {
	mu      sync.Mutex
	records []types.ProcessingRecord
	err     error
}

func (m *mockStore) SaveRecord(_ context.Context, rec types.ProcessingRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *mockStore) saved() []types.ProcessingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ProcessingRecord(nil), m.records...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTime = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func newTestProcessor(store RecordStore) *Processor {
	p := NewProcessor(store, testLogger())
	p.now = func() time.Time { return testTime }
	p.newID = func() string { return "proc-test" }
	return p
}

func envelopeBody(t *testing.T, detail types.ScoreEvent) string {
	t.Helper()
	raw, err := json.Marshal(detail)
	require.NoError(t, err)

	body, err := json.Marshal(types.EventEnvelope{
		ID:         "evt-1",
		Source:     types.BusSource,
		DetailType: types.DetailTypeLowScore,
		Time:       testTime.Format(time.RFC3339),
		Detail:     raw,
	})
	require.NoError(t, err)
	return string(body)
}

func TestProcessMessage_Classification(t *testing.T) {
	tests := []struct {
		name      string
		score     string
		wantLevel types.AlertLevel
	}{
		{"missing score is high alert", types.ScoreMissing, types.AlertHigh},
		{"low numeric score is medium alert", "30", types.AlertMedium},
		{"non-numeric token is medium alert", "abc", types.AlertMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newTestProcessor(nil)
			body := envelopeBody(t, types.ScoreEvent{
				Source: types.ProducerTag,
				Score:  tt.score,
				Reason: types.ReasonScoreBelowMin,
			})

			rec, err := proc.ProcessMessage(context.Background(), "msg-1", body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLevel, rec.AlertLevel)
			assert.Equal(t, "msg-1", rec.MessageID)
			assert.Equal(t, "proc-test", rec.ProcessingID)
			assert.Equal(t, types.ProcessedByTag, rec.ProcessedBy)
			assert.Equal(t, types.BusSource, rec.EventSource)
			assert.True(t, rec.FollowUpRequired)
			assert.Equal(t, testTime, rec.ProcessedAt)
			require.NotNil(t, rec.Detail)
			assert.Equal(t, tt.score, rec.Detail.Score)
		})
	}
}

func TestProcessMessage_MalformedBody(t *testing.T) {
	proc := newTestProcessor(nil)

	rec, err := proc.ProcessMessage(context.Background(), "msg-1", "not json at all")

	// A malformed body degrades to an opaque record; it never fails the item.
	require.NoError(t, err)
	assert.Equal(t, "unknown", rec.EventSource)
	assert.Equal(t, types.AlertMedium, rec.AlertLevel)
	assert.Nil(t, rec.Detail)
}

func TestProcessMessage_MalformedDetail(t *testing.T) {
	proc := newTestProcessor(nil)
	body := `{"id":"evt-1","source":"lambda.score-processor","detail-type":"Low Score Event","detail":[1,2,3]}`

	rec, err := proc.ProcessMessage(context.Background(), "msg-1", body)

	require.NoError(t, err)
	assert.Equal(t, types.BusSource, rec.EventSource)
	assert.Equal(t, types.AlertMedium, rec.AlertLevel)
	assert.Nil(t, rec.Detail)
}

func TestProcessMessage_StringEncodedDetail(t *testing.T) {
	proc := newTestProcessor(nil)

	// The detail itself arrives as a JSON string containing JSON.
	inner, err := json.Marshal(types.ScoreEvent{Score: types.ScoreMissing, Reason: types.ReasonScoreMissing})
	require.NoError(t, err)
	wrapped, err := json.Marshal(string(inner))
	require.NoError(t, err)
	body := fmt.Sprintf(`{"id":"evt-1","source":%q,"detail-type":%q,"detail":%s}`,
		types.BusSource, types.DetailTypeLowScore, wrapped)

	rec, err := proc.ProcessMessage(context.Background(), "msg-1", body)
	require.NoError(t, err)

	require.NotNil(t, rec.Detail)
	assert.Equal(t, types.ScoreMissing, rec.Detail.Score)
	assert.Equal(t, types.AlertHigh, rec.AlertLevel)
}

func TestProcessMessage_PersistsRecord(t *testing.T) {
	store := &mockStore{}
	proc := newTestProcessor(store)

	rec, err := proc.ProcessMessage(context.Background(), "msg-1", envelopeBody(t, types.ScoreEvent{Score: "30"}))
	require.NoError(t, err)

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, rec, saved[0])
}

func TestProcessMessage_StoreFaultFailsItem(t *testing.T) {
	store := &mockStore{err: fmt.Errorf("connection refused")}
	proc := newTestProcessor(store)

	_, err := proc.ProcessMessage(context.Background(), "msg-1", envelopeBody(t, types.ScoreEvent{Score: "30"}))

	// Only a store fault marks the item failed for redelivery.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "msg-1")
}
