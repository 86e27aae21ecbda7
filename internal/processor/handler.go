package processor

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// Handler is the Lambda entrypoint for the batch processor. The queue event
// source delivers bounded batches; partial batch responses report exactly the
// failed item identifiers so the queue acknowledges successes and redelivers
// only failures.
type Handler struct {
	proc    *Processor
	metrics Metrics
	logger  *slog.Logger
}

// NewHandler creates a Handler around the processor. metrics may be nil.
func NewHandler(proc *Processor, metrics Metrics, logger *slog.Logger) *Handler {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Handler{
		proc:    proc,
		metrics: metrics,
		logger:  logger,
	}
}

// Handle processes an SQS event containing one or more escalation messages.
// Each message is processed independently; ordering across the batch is not
// assumed. Messages whose processing faults are returned in
// BatchItemFailures; everything else is acknowledged by the platform.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse

	for _, record := range sqsEvent.Records {
		rec, err := h.proc.ProcessMessage(ctx, record.MessageId, record.Body)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to process message",
				"message_id", record.MessageId,
				"error", err,
			)
			// Report partial failure so the queue retries only this message.
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
			continue
		}

		h.metrics.RecordAlert(ctx, rec.AlertLevel)
	}

	processed := len(sqsEvent.Records) - len(response.BatchItemFailures)
	h.metrics.RecordBatch(ctx, len(sqsEvent.Records), processed, len(response.BatchItemFailures))

	h.logger.InfoContext(ctx, "batch complete",
		"received", len(sqsEvent.Records),
		"processed", processed,
		"failed", len(response.BatchItemFailures),
	)

	return response, nil
}
