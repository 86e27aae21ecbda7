// Package config defines the global configuration for the scorepipe services.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor principles by strictly separating code
// from configuration.
//
// Values are resolved from the OS environment, with a .env file as a local
// development fallback. Any missing required value or invalid format fails
// the process immediately on startup.
package config

import (
	"time"

	"scorepipe/internal/types"
)

// Config is the top-level configuration struct shared by all scorepipe
// binaries. It is populated once during process initialization and never
// modified. Components receive only the subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"scorepipe"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	AWS           AWSConfig
	Score         ScoreConfig
	Queue         QueueConfig
	Database      DatabaseConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings for the score API.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-southeast-2"`

	// Resource Identifiers
	EventBusName       string `envconfig:"EVENT_BUS_NAME" default:"score-processing-bus"`
	EscalationQueueURL string `envconfig:"SQS_ESCALATION_QUEUE" validate:"omitempty,url"`
	DeadLetterQueueURL string `envconfig:"SQS_DLQ" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ScoreConfig holds the validation rule and event tagging settings for the
// score validator.
type ScoreConfig struct {
	// Threshold is the minimum passing score. Parsed scores below this
	// value are escalated.
	Threshold int `envconfig:"SCORE_THRESHOLD" default:"50" validate:"gte=0"`

	// Event tags. Defaults match the fixed producer and routing tags of
	// the escalation path; overridable for multi-producer deployments.
	ProducerTag string `envconfig:"EVENT_PRODUCER_TAG" default:"sample-lambda-1"`
	BusSource   string `envconfig:"EVENT_SOURCE" default:"lambda.score-processor"`
	DetailType  string `envconfig:"EVENT_DETAIL_TYPE" default:"Low Score Event"`

	// PublishTimeout bounds the detached publish attempt so an unavailable
	// bus cannot leak goroutines.
	PublishTimeout time.Duration `envconfig:"EVENT_PUBLISH_TIMEOUT" default:"10s"`
}

// QueueConfig holds escalation queue delivery semantics. The visibility
// timeout, attempt cap, and retention mirror the queue's server-side redrive
// policy; the batch settings tune the consumer side.
type QueueConfig struct {
	VisibilityTimeout time.Duration `envconfig:"QUEUE_VISIBILITY_TIMEOUT" default:"60s"`
	MaxAttempts       int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3" validate:"gte=1"`
	DLQRetention      time.Duration `envconfig:"QUEUE_DLQ_RETENTION" default:"336h"` // 14 days

	// Batch consumption tuning. SQS caps a single receive at 10 messages
	// and long polling at 20 seconds.
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"10" validate:"gte=1,lte=10"`
	BatchMaxWait time.Duration `envconfig:"BATCH_MAX_WAIT" default:"5s"`
}

// DatabaseConfig holds the optional processing-record store settings.
// When URL is empty, record persistence is disabled and the consumer runs
// stateless.
type DatabaseConfig struct {
	URL types.SecretString `envconfig:"DATABASE_URL"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// ArchiveConfig holds dead-letter archiver settings.
type ArchiveConfig struct {
	Dir         string `envconfig:"ARCHIVE_DIR" default:"./dlq-archive"`
	MaxMessages int    `envconfig:"ARCHIVE_MAX_MESSAGES" default:"1000" validate:"gte=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ScorePipe"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment values into their
	// target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
