// Package types defines the shared domain types for the scorepipe escalation
// pipeline: the escalation event published by the score validator, the bus
// envelope it travels in, and the processing record produced by the batch
// consumer. JSON tags match the wire contract consumed by downstream tooling.
package types

import (
	"encoding/json"
	"time"
)

// Fixed tags of the escalation path. The producer tag identifies the logical
// origin of an escalation event; the bus source and detail type are the
// routing keys the event router matches on.
const (
	ProducerTag         = "sample-lambda-1"
	BusSource           = "lambda.score-processor"
	DetailTypeLowScore  = "Low Score Event"
	DefaultEventBusName = "score-processing-bus"
)

// ProcessedByTag identifies this consumer in processing records.
const ProcessedByTag = "score-worker"

// ScoreMissing is the sentinel value carried in ScoreEvent.Score when the
// inbound request had no score token at all. A non-numeric token is NOT
// replaced by this sentinel; the original token is preserved so the two
// failure modes stay distinguishable downstream.
const ScoreMissing = "missing"

// Escalation reasons. Exactly one of these appears on every ScoreEvent.
const (
	ReasonScoreMissing  = "Score parameter missing"
	ReasonScoreBelowMin = "Score less than 50"
)

// ScoreEvent is the escalation event published when score validation fails.
// It exists if and only if the originating request's score failed validation.
// The struct is immutable after construction; it travels as the detail body
// of an EventEnvelope.
type ScoreEvent struct {
	// Source identifies the logical producer (always ProducerTag).
	Source string `json:"source"`

	// Score is the original score token, or ScoreMissing when the token
	// was absent or empty. Non-numeric tokens are preserved verbatim.
	Score string `json:"score"`

	// Timestamp is the event creation time in RFC3339.
	Timestamp string `json:"timestamp"`

	// CorrelationID carries the originating request's correlation ID.
	// May be empty when the transport did not supply one.
	CorrelationID string `json:"requestId,omitempty"`

	// Reason is one of ReasonScoreMissing or ReasonScoreBelowMin.
	Reason string `json:"reason"`
}

// EventEnvelope is the bus-level wrapper an escalation event is delivered in.
// The field names mirror the envelope format the queue receives from the bus,
// including the dashed "detail-type" key.
//
// Detail holds the serialized ScoreEvent. It is kept as a raw message because
// some producers double-encode it as a JSON string; consumers must handle
// both forms.
type EventEnvelope struct {
	ID         string          `json:"id,omitempty"`
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Time       string          `json:"time,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// AlertLevel is the severity classification derived by the batch processor.
type AlertLevel string

const (
	// AlertHigh is assigned when the original score was entirely missing.
	AlertHigh AlertLevel = "HIGH"
	// AlertMedium is assigned when a score was present but failed validation.
	AlertMedium AlertLevel = "MEDIUM"
)

// ProcessingRecord is the per-message outcome produced by the batch processor.
// Records are keyed by MessageID so that duplicate deliveries under
// at-least-once semantics collapse into a single persisted row.
type ProcessingRecord struct {
	MessageID        string      `json:"message_id"`
	ProcessingID     string      `json:"processing_id"`
	ProcessedBy      string      `json:"processed_by"`
	EventSource      string      `json:"event_source"`
	AlertLevel       AlertLevel  `json:"alert_level"`
	FollowUpRequired bool        `json:"follow_up_required"`
	ProcessedAt      time.Time   `json:"processed_at"`
	Detail           *ScoreEvent `json:"detail,omitempty"`
}
