package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scorepipe/internal/types"
)

// AsyncDispatcher performs fire-and-forget event publishing. Dispatch returns
// immediately; the publish attempt runs on a detached goroutine whose outcome
// is observed only for logging. There is no completion signal back into the
// caller's path, so an escalation-path outage can never alter a response that
// has already been computed.
type AsyncDispatcher struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher around the given publisher.
// timeout bounds each detached publish attempt.
func NewAsyncDispatcher(publisher Publisher, timeout time.Duration, logger *slog.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Dispatch publishes the event on a detached goroutine and returns
// immediately. The goroutine inherits the caller's context values (request
// ID) but not its cancellation, so the publish is unaffected by the response
// completing first.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, event types.ScoreEvent) {
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		pubCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if err := d.publisher.Publish(pubCtx, event); err != nil {
			// Publish failure never propagates to the caller.
			d.logger.ErrorContext(pubCtx, "failed to publish escalation event",
				"reason", event.Reason,
				"score", event.Score,
				"correlation_id", event.CorrelationID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until all in-flight publish attempts complete. Used during
// graceful shutdown and in tests.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
