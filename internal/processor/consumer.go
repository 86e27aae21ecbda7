package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"scorepipe/internal/queue"
)

// BatchQueue is the receive-side contract the consumer needs from the
// escalation queue wrapper.
type BatchQueue interface {
	ReceiveBatch(ctx context.Context, maxItems int, maxWait time.Duration) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Nack(ctx context.Context, msg queue.Message) error
}

// ConsumerConfig tunes the poll loop.
type ConsumerConfig struct {
	BatchSize int
	MaxWait   time.Duration
}

// Consumer is the long-running poll-mode batch processor. It repeatedly
// draws a bounded batch, processes every message independently (in
// parallel), then acknowledges successes and negatively acknowledges
// failures so the queue's retry policy governs redelivery.
//
// A worker that overruns the queue's visibility timeout causes duplicate
// delivery; that is tolerated because processing is stateless and record
// persistence is idempotent on message ID.
type Consumer struct {
	queue   BatchQueue
	proc    *Processor
	metrics Metrics
	cfg     ConsumerConfig
	logger  *slog.Logger
}

// NewConsumer creates a Consumer. metrics may be nil.
func NewConsumer(q BatchQueue, proc *Processor, metrics Metrics, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Consumer{
		queue:   q,
		proc:    proc,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run polls until ctx is cancelled. Receive errors are logged and retried
// after a short backoff; they do not terminate the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started",
		"batch_size", c.cfg.BatchSize,
		"max_wait", c.cfg.MaxWait.String(),
	)

	for {
		if err := ctx.Err(); err != nil {
			c.logger.InfoContext(ctx, "consumer stopping")
			return nil
		}

		if err := c.runBatch(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.logger.ErrorContext(ctx, "batch receive failed, backing off", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// runBatch performs one receive-process-report cycle.
func (c *Consumer) runBatch(ctx context.Context) error {
	messages, err := c.queue.ReceiveBatch(ctx, c.cfg.BatchSize, c.cfg.MaxWait)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	// Process items in parallel; each slot in failed is owned by exactly
	// one goroutine, so no locking is needed.
	failed := make([]bool, len(messages))
	g, gctx := errgroup.WithContext(ctx)

	for i, msg := range messages {
		g.Go(func() error {
			if !msg.SentAt.IsZero() {
				c.metrics.RecordQueueLag(gctx, time.Since(msg.SentAt))
			}

			rec, procErr := c.proc.ProcessMessage(gctx, msg.ID, msg.Body)
			if procErr != nil {
				c.logger.ErrorContext(gctx, "failed to process message",
					"message_id", msg.ID,
					"attempt", msg.Attempt,
					"error", procErr,
				)
				failed[i] = true
				return nil
			}

			c.metrics.RecordAlert(gctx, rec.AlertLevel)
			return nil
		})
	}

	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	// Report per-item outcomes. Ack/nack errors are logged and absorbed:
	// an unreported message simply redelivers after the visibility window.
	failedCount := 0
	for i, msg := range messages {
		if failed[i] {
			failedCount++
			if err := c.queue.Nack(ctx, msg); err != nil {
				c.logger.WarnContext(ctx, "failed to nack message", "message_id", msg.ID, "error", err)
			}
			continue
		}
		if err := c.queue.Ack(ctx, msg); err != nil {
			c.logger.WarnContext(ctx, "failed to ack message", "message_id", msg.ID, "error", err)
		}
	}

	c.metrics.RecordBatch(ctx, len(messages), len(messages)-failedCount, failedCount)

	c.logger.InfoContext(ctx, "batch complete",
		"received", len(messages),
		"processed", len(messages)-failedCount,
		"failed", failedCount,
	)

	return nil
}
