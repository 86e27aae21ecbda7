// Package main is the entry point for the score API server.
//
// It loads configuration, wires the escalation event publish path, builds
// the HTTP server with the core chassis (middleware, routing, health
// checks), and listens for requests. Graceful shutdown is handled via OS
// signal interception (SIGINT, SIGTERM); in-flight event publishes are
// drained before exit.
//
// In local mode (APP_ENV=local) escalation events are routed in-process:
// the LocalBus applies the routing rule and forwards matches straight to
// the escalation queue. In all other environments events are published to
// the managed event bus and routing is the externally provisioned rule.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"scorepipe/internal/api/handlers"
	"scorepipe/internal/config"
	"scorepipe/internal/core"
	"scorepipe/internal/events"
	"scorepipe/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("score API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"threshold", cfg.Score.Threshold,
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}

	publisher, err := newPublisher(cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	dispatcher := events.NewAsyncDispatcher(publisher, cfg.Score.PublishTimeout, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		srv.Metrics = core.NewCloudWatchCollector(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	scoreHandler := handlers.NewScoreHandler(dispatcher, cfg.Score.Threshold, cfg.Score.ProducerTag, logger)
	srv.APIRouteRegistrars = append(srv.APIRouteRegistrars, func(r chi.Router) {
		scoreHandler.RegisterRoutes(r)
	})

	// Drain in-flight publishes during graceful shutdown.
	srv.OnShutdown(func(ctx context.Context) error {
		dispatcher.Wait()
		return nil
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newPublisher selects the escalation publish path for the environment:
// LocalBus (in-process routing straight to the queue) for local mode, the
// managed event bus otherwise.
func newPublisher(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.Environment == "local" {
		if err := cfg.RequireEscalationQueue(); err != nil {
			return nil, err
		}

		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})

		q := queue.NewEscalationQueue(sqsClient, cfg.AWS.EscalationQueueURL, logger)
		return events.NewLocalBus(events.LowScoreRule(), q, cfg.Score.BusSource, cfg.Score.DetailType, logger), nil
	}

	ebClient := eventbridge.NewFromConfig(awsCfg, func(o *eventbridge.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return events.NewBusPublisher(ebClient, cfg.AWS.EventBusName, cfg.Score.BusSource, cfg.Score.DetailType, logger), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}
