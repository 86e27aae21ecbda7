// Package processor implements the asynchronous batch consumer of the
// escalation queue. Each delivered message is classified independently into a
// processing record; per-item outcomes are reported back to the queue so
// acknowledged messages are removed and only failed items are redelivered.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scorepipe/internal/types"
)

// unknownSource is recorded when a message body could not be decoded into a
// bus envelope.
const unknownSource = "unknown"

// RecordStore persists processing records. SaveRecord must be idempotent on
// the record's MessageID so duplicate deliveries under at-least-once
// semantics collapse into one row.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec types.ProcessingRecord) error
}

// Processor classifies escalation queue messages. It holds no per-message
// state; the same instance is safe for concurrent use across batch items.
type Processor struct {
	store  RecordStore // nil disables persistence
	logger *slog.Logger

	// Injected for deterministic tests.
	now   func() time.Time
	newID func() string
}

// NewProcessor creates a Processor. store may be nil, in which case records
// are derived but not persisted.
func NewProcessor(store RecordStore, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return "proc-" + uuid.New().String() },
	}
}

// ProcessMessage classifies one delivered message and returns its processing
// record. The returned error marks the item as failed for redelivery; all
// degradable faults (malformed body, malformed detail) are absorbed into a
// best-effort record instead.
//
// Steps:
//  1. Decode the body as a bus envelope; on failure treat the raw body as an
//     opaque payload rather than failing the item.
//  2. Decode the nested detail, which may itself be a string-encoded
//     structure; on failure log and proceed with a nil detail.
//  3. Derive the alert level: HIGH when the detail's score is the missing
//     sentinel, else MEDIUM.
//  4. Build the record and, when a store is configured, persist it
//     idempotently. Only a store fault fails the item.
func (p *Processor) ProcessMessage(ctx context.Context, messageID, body string) (types.ProcessingRecord, error) {
	source := unknownSource
	var detail *types.ScoreEvent

	var envelope types.EventEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		p.logger.WarnContext(ctx, "message body is not a bus envelope, treating as opaque",
			"message_id", messageID,
			"error", err,
		)
	} else {
		if envelope.Source != "" {
			source = envelope.Source
		}
		detail = p.decodeDetail(ctx, messageID, envelope.Detail)
	}

	alertLevel := types.AlertMedium
	if detail != nil && detail.Score == types.ScoreMissing {
		alertLevel = types.AlertHigh
	}

	rec := types.ProcessingRecord{
		MessageID:        messageID,
		ProcessingID:     p.newID(),
		ProcessedBy:      types.ProcessedByTag,
		EventSource:      source,
		AlertLevel:       alertLevel,
		FollowUpRequired: true,
		ProcessedAt:      p.now().UTC(),
		Detail:           detail,
	}

	if p.store != nil {
		if err := p.store.SaveRecord(ctx, rec); err != nil {
			return rec, fmt.Errorf("processor: failed to save record for message %s: %w", messageID, err)
		}
	}

	p.logger.InfoContext(ctx, "low score event processed",
		"message_id", messageID,
		"processing_id", rec.ProcessingID,
		"alert_level", string(rec.AlertLevel),
		"event_source", rec.EventSource,
	)

	return rec, nil
}

// decodeDetail unpacks the envelope's detail body into a ScoreEvent. The
// detail may arrive either as a JSON object or as a string-encoded JSON
// object (double encoding); both forms are handled. Returns nil when the
// detail is absent or cannot be decoded.
func (p *Processor) decodeDetail(ctx context.Context, messageID string, raw json.RawMessage) *types.ScoreEvent {
	if len(raw) == 0 {
		return nil
	}

	// String-encoded detail: unwrap the outer JSON string first.
	payload := []byte(raw)
	var inner string
	if err := json.Unmarshal(payload, &inner); err == nil {
		payload = []byte(inner)
	}

	var event types.ScoreEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		p.logger.WarnContext(ctx, "failed to decode event detail, proceeding without it",
			"message_id", messageID,
			"error", err,
		)
		return nil
	}

	return &event
}
