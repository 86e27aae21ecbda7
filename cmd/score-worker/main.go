// Package main is the entrypoint for the score-worker Lambda function.
//
// The worker consumes bounded batches from the escalation queue, classifies
// each low score event independently, and reports per-item outcomes through
// partial batch responses: only the identifiers of failed items are returned,
// so the queue acknowledges successes and redelivers failures per its redrive
// policy.
//
// Cold start:
//  1. Initialize the structured logger.
//  2. Load configuration and the AWS SDK config.
//  3. Initialize the CloudWatch metrics publisher.
//  4. Register the handler and call lambda.Start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"scorepipe/internal/config"
	"scorepipe/internal/processor"
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

	logger.Info("score worker initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
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

	proc := processor.NewProcessor(nil, logger)
	handler := processor.NewHandler(proc, metrics, logger)

	logger.Info("score worker initialized",
		"metric_namespace", cfg.Observability.MetricNamespace,
	)

	lambda.Start(handler.Handle)
	return nil
}
