// Package main is the entrypoint for the poll-mode escalation consumer.
//
// The consumer runs the same batch processing logic as the score-worker
// Lambda but drives the queue directly: it long-polls for bounded batches,
// processes items in parallel, acknowledges successes, and negatively
// acknowledges failures for immediate redelivery. When DATABASE_URL is
// configured, processing records are persisted idempotently so duplicate
// deliveries collapse into one row.
//
// The process runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"scorepipe/internal/config"
	"scorepipe/internal/db"
	"scorepipe/internal/processor"
	"scorepipe/internal/queue"
)

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
	if err := cfg.RequireEscalationQueue(); err != nil {
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
	escalationQueue := queue.NewEscalationQueue(sqsClient, cfg.AWS.EscalationQueueURL, logger)

	// Optional idempotent record persistence.
	var store processor.RecordStore
	if cfg.Database.URL.Unmask() != "" {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		store = db.NewProcessingRecordRepository(pool)
		logger.Info("processing record persistence enabled")
	}

	var metrics processor.Metrics = processor.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = processor.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	proc := processor.NewProcessor(store, logger)
	consumer := processor.NewConsumer(escalationQueue, proc, metrics, processor.ConsumerConfig{
		BatchSize: cfg.Queue.BatchSize,
		MaxWait:   cfg.Queue.BatchMaxWait,
	}, logger)

	logger.Info("escalation consumer starting",
		"queue_url", cfg.AWS.EscalationQueueURL,
		"batch_size", cfg.Queue.BatchSize,
		"max_wait", cfg.Queue.BatchMaxWait.String(),
	)

	return consumer.Run(ctx)
}
