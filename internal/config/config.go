// Package config defines the configuration of the custom resource function.
// Configuration is loaded once at process initialization (Lambda cold start)
// and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
package config

import "time"

// Config is the top-level configuration struct.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"cfn-custom-resource" validate:"required"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	AWS           AWSConfig
	Callback      CallbackConfig
	Observability ObservabilityConfig
	Sink          SinkConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// AWSConfig holds regional configuration for the SDK clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1" validate:"required"`
}

// CallbackConfig tunes the client that PUTs responses to the pre-signed URL.
// It has no timeout setting; the invocation deadline carried by the request
// context bounds the call.
type CallbackConfig struct {
	BreakerFailureThreshold uint32        `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5" validate:"min=1"`
	BreakerOpenTimeout      time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s" validate:"gt=0"`
	BlockPrivateNetworks    bool          `envconfig:"BLOCK_PRIVATE_NETWORKS" default:"false"`
	MaxRedirects            int           `envconfig:"CALLBACK_MAX_REDIRECTS" default:"3" validate:"min=0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CfnResponse" validate:"required"`
}

// SinkConfig configures the local response sink tool.
type SinkConfig struct {
	Port string `envconfig:"SINK_PORT" default:"8080" validate:"required,numeric"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates a .env file exists but could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)
