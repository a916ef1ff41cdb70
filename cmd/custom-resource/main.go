// Package main is the entrypoint for the identifier custom resource Lambda.
//
// The function backs a Custom::Identifier resource. On Create it mints a
// prefixed UUID and reports it as the physical resource ID; Update keeps the
// existing ID and Delete has nothing to clean up. Every invocation is answered
// exactly once through a cfn.Sender.
//
// In local mode (APP_ENV=local, outside the Lambda runtime) a single event is
// read from stdin instead of starting the runtime:
//
//	cat event.json | go run ./cmd/custom-resource
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/google/uuid"

	"cfnresponse/internal/cfn"
	"cfnresponse/internal/config"
	"cfnresponse/internal/external"
	"cfnresponse/internal/metrics"
	"cfnresponse/internal/security"
	"cfnresponse/internal/types"
)

// localLogStream stands in for the runtime log stream in local mode.
const localLogStream = "local"

// IdentifierProperties are the ResourceProperties of a Custom::Identifier.
type IdentifierProperties struct {
	Prefix string `json:"Prefix"`
}

// Handler provisions identifiers.
type Handler struct {
	NewID  func() string
	Logger *slog.Logger
}

// Provision implements cfn.CustomResourceFunc for Custom::Identifier.
func (h *Handler) Provision(ctx context.Context, req cfn.Request[IdentifierProperties]) (string, any, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch req.RequestType {
	case cfn.RequestCreate:
		id := req.ResourceProperties.Prefix + h.NewID()
		logger.InfoContext(ctx, "identifier created", "physical_resource_id", id)
		return id, identifierData(id, req.ResourceProperties.Prefix), nil

	case cfn.RequestUpdate:
		// The ID never changes in place, so CloudFormation sees no replacement.
		return req.PhysicalResourceID, identifierData(req.PhysicalResourceID, req.ResourceProperties.Prefix), nil

	case cfn.RequestDelete:
		logger.InfoContext(ctx, "identifier deleted", "physical_resource_id", req.PhysicalResourceID)
		return req.PhysicalResourceID, nil, nil

	default:
		return "", nil, fmt.Errorf("unsupported request type %q", req.RequestType)
	}
}

func identifierData(id, prefix string) map[string]string {
	return map[string]string{
		"Id":     id,
		"Prefix": prefix,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the cold start so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("custom resource Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)

	ctx := context.Background()
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	h := &Handler{NewID: uuid.NewString, Logger: logger}
	handler := cfn.Wrap(sender, h.Provision)

	if cfg.Environment == "local" && !isLambdaEnvironment() {
		return runLocal(ctx, handler, os.Stdin, logger)
	}

	lambda.Start(handler)
	return nil
}

// newSender wires the callback transport, breaker and metrics into a Sender.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cfn.Sender, error) {
	appLogger := types.NewSlogLogger(logger)

	var httpClient *http.Client
	if cfg.Callback.BlockPrivateNetworks {
		safe, err := security.NewSafeHTTPClient(cfg.Callback.MaxRedirects, nil)
		if err != nil {
			return nil, fmt.Errorf("creating callback transport: %w", err)
		}
		httpClient = safe
	} else {
		httpClient = &http.Client{}
	}

	callback := external.NewCallbackClient(httpClient, external.BreakerSettings{
		Name:             external.DefaultBreakerSettings().Name,
		FailureThreshold: cfg.Callback.BreakerFailureThreshold,
		OpenTimeout:      cfg.Callback.BreakerOpenTimeout,
	}, appLogger)

	var recorder cfn.DeliveryRecorder = metrics.NoopRecorder{}
	if cfg.Observability.MetricsEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS SDK config: %w", err)
		}
		recorder = metrics.NewCloudWatchDeliveryMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			appLogger,
		)
	}

	return cfn.NewSender(
		cfn.WithHTTPClient(callback),
		cfn.WithLogger(appLogger),
		cfn.WithRecorder(recorder),
	), nil
}

// runLocal feeds one event from r through handler.
func runLocal(ctx context.Context, handler func(context.Context, cfn.Request[IdentifierProperties]) error, r io.Reader, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading event from stdin")

	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no event received on stdin")
	}

	var event cfn.Request[IdentifierProperties]
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decoding event: %w", err)
	}

	if lambdacontext.LogStreamName == "" {
		lambdacontext.LogStreamName = localLogStream
	}
	if err := handler(ctx, event); err != nil {
		return fmt.Errorf("handler execution failed: %w", err)
	}
	logger.Info("handler execution completed successfully")
	return nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// newLogger creates a JSON slog.Logger for the configured level.
func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: types.ParseLogLevel(level),
	}))
}
