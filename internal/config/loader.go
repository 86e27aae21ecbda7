// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid
// debugging. It wraps a ConfigErrorType and an underlying error.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the scorepipe configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing; existing
//     environment variables are never overridden).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Validates the Config struct.
func LoadConfig() (*Config, error) {
	// Enforce UTC to keep event timestamps and queue lag math consistent
	// across deployment regions.
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig runs struct tag validation plus the cross-field checks that
// tags cannot express.
func validateConfig(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	// SQS long polling is capped at 20 seconds per receive call.
	if cfg.Queue.BatchMaxWait < 0 || cfg.Queue.BatchMaxWait > 20*time.Second {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("BATCH_MAX_WAIT must be between 0s and 20s, got %s", cfg.Queue.BatchMaxWait),
		}
	}

	if cfg.Queue.VisibilityTimeout <= 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("QUEUE_VISIBILITY_TIMEOUT must be positive, got %s", cfg.Queue.VisibilityTimeout),
		}
	}

	return nil
}

// RequireEscalationQueue returns a ConfigError unless the escalation queue
// URL is configured. Binaries that consume or forward to the queue call this
// at startup so misconfiguration fails fast rather than at first use.
func (c *Config) RequireEscalationQueue() error {
	if c.AWS.EscalationQueueURL == "" {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "SQS_ESCALATION_QUEUE is required",
		}
	}
	return nil
}

// RequireDeadLetterQueue returns a ConfigError unless the dead-letter queue
// URL is configured. Required by the archiver.
func (c *Config) RequireDeadLetterQueue() error {
	if c.AWS.DeadLetterQueueURL == "" {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "SQS_DLQ is required",
		}
	}
	return nil
}
