// Package main is the entrypoint for the dead-letter archiver.
//
// Messages that exhaust their delivery attempts land on the dead-letter
// queue, which only retains them for a bounded period. The archiver drains
// the queue in batches and writes each batch to zstd-compressed NDJSON
// before acknowledging, so dead-lettered escalations are durably captured
// before retention purges them.
//
// The archiver is a one-shot command: it stops when the queue is empty or
// the configured message limit is reached.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"scorepipe/internal/archive"
	"scorepipe/internal/config"
	"scorepipe/internal/queue"
)

// drainPollWait is the long-poll wait per drain receive. Short because an
// empty response terminates the run.
const drainPollWait = 2 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.RequireDeadLetterQueue(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	dlq := queue.NewEscalationQueue(sqsClient, cfg.AWS.DeadLetterQueueURL, logger)

	writer, err := archive.NewWriter(cfg.Archive.Dir)
	if err != nil {
		return err
	}

	archived, err := drain(ctx, dlq, writer, cfg.Archive.MaxMessages, logger)
	if err != nil {
		return err
	}

	logger.Info("dead-letter drain complete", "archived", archived)
	return nil
}

// drain receives batches from the dead-letter queue, archives them, and acks
// each message only after its batch is durably written. Returns the number
// of messages archived.
func drain(ctx context.Context, dlq *queue.EscalationQueue, writer *archive.Writer, limit int, logger *slog.Logger) (int, error) {
	archived := 0

	for archived < limit {
		if err := ctx.Err(); err != nil {
			return archived, nil
		}

		batchSize := limit - archived
		if batchSize > 10 {
			batchSize = 10
		}

		messages, err := dlq.ReceiveBatch(ctx, batchSize, drainPollWait)
		if err != nil {
			return archived, fmt.Errorf("receiving from dead-letter queue: %w", err)
		}
		if len(messages) == 0 {
			break
		}

		path, err := writer.Archive(messages)
		if err != nil {
			// Nothing acked: the batch redelivers and is retried whole.
			return archived, fmt.Errorf("archiving batch: %w", err)
		}

		for _, msg := range messages {
			if err := dlq.Ack(ctx, msg); err != nil {
				// Already durably archived; a redelivered duplicate will
				// simply be archived again.
				logger.WarnContext(ctx, "failed to ack archived message",
					"message_id", msg.ID,
					"error", err,
				)
			}
		}

		archived += len(messages)
		logger.InfoContext(ctx, "batch archived",
			"path", path,
			"messages", len(messages),
		)
	}

	return archived, nil
}
