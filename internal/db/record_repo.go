package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scorepipe/internal/types"
)

// ProcessingRecordRepository persists batch processing records.
//
// Schema:
//
//	CREATE TABLE processing_records (
//	    message_id         TEXT PRIMARY KEY,
//	    processing_id      TEXT NOT NULL,
//	    processed_by       TEXT NOT NULL,
//	    event_source       TEXT NOT NULL,
//	    alert_level        TEXT NOT NULL,
//	    follow_up_required BOOLEAN NOT NULL,
//	    detail             JSONB,
//	    processed_at       TIMESTAMPTZ NOT NULL
//	);
type ProcessingRecordRepository struct {
	db DBTX
}

// NewProcessingRecordRepository creates a repository over the given
// connection or transaction.
func NewProcessingRecordRepository(db DBTX) *ProcessingRecordRepository {
	return &ProcessingRecordRepository{db: db}
}

// SaveRecord inserts a processing record. The insert is idempotent on
// message_id: a duplicate delivery under at-least-once semantics leaves the
// first record in place and succeeds without modification.
func (r *ProcessingRecordRepository) SaveRecord(ctx context.Context, rec types.ProcessingRecord) error {
	var detail []byte
	if rec.Detail != nil {
		var err error
		detail, err = json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("db: failed to marshal record detail: %w", err)
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO processing_records
			(message_id, processing_id, processed_by, event_source,
			 alert_level, follow_up_required, detail, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING`,
		rec.MessageID,
		rec.ProcessingID,
		rec.ProcessedBy,
		rec.EventSource,
		string(rec.AlertLevel),
		rec.FollowUpRequired,
		detail,
		rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("db: failed to insert processing record %s: %w", rec.MessageID, err)
	}

	return nil
}

// GetRecord fetches a processing record by message ID. Returns nil when no
// record exists.
func (r *ProcessingRecordRepository) GetRecord(ctx context.Context, messageID string) (*types.ProcessingRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT message_id, processing_id, processed_by, event_source,
		       alert_level, follow_up_required, detail, processed_at
		FROM processing_records
		WHERE message_id = $1`,
		messageID,
	)

	var (
		rec         types.ProcessingRecord
		alertLevel  string
		detail      []byte
		processedAt time.Time
	)
	err := row.Scan(
		&rec.MessageID,
		&rec.ProcessingID,
		&rec.ProcessedBy,
		&rec.EventSource,
		&alertLevel,
		&rec.FollowUpRequired,
		&detail,
		&processedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: failed to fetch processing record %s: %w", messageID, err)
	}

	rec.AlertLevel = types.AlertLevel(alertLevel)
	rec.ProcessedAt = processedAt

	if len(detail) > 0 {
		var event types.ScoreEvent
		if err := json.Unmarshal(detail, &event); err != nil {
			return nil, fmt.Errorf("db: failed to unmarshal record detail: %w", err)
		}
		rec.Detail = &event
	}

	return &rec, nil
}
