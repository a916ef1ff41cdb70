package cfn

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// ExecutionContext exposes the invocation metadata the Sender falls back on.
type ExecutionContext interface {
	LogStreamName() string
}

// LogStream is a fixed ExecutionContext, for callers running outside Lambda.
type LogStream string

// LogStreamName returns s.
func (s LogStream) LogStreamName() string { return string(s) }

// lambdaExecutionContext reads the log stream name the Lambda runtime
// publishes through AWS_LAMBDA_LOG_STREAM_NAME.
type lambdaExecutionContext struct{}

func (lambdaExecutionContext) LogStreamName() string { return lambdacontext.LogStreamName }

// LambdaContext returns the ExecutionContext of the running Lambda function.
func LambdaContext() ExecutionContext {
	return lambdaExecutionContext{}
}

// awsRequestID returns the invocation request ID the runtime stored in ctx,
// or the empty string outside Lambda.
func awsRequestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}
