package cfn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	"cfnresponse/internal/external"
	"cfnresponse/internal/metrics"
	"cfnresponse/internal/types"
)

// ErrInvalidArgument matches, via errors.Is, the error Send returns when a
// required parameter is missing.
var ErrInvalidArgument = &types.AppError{Code: types.ErrCodeInvalidArgument}

// ErrDeliveryFailed matches, via errors.Is, errors reporting that a response
// could not be delivered. Send itself reports delivery failure as false.
var ErrDeliveryFailed = &types.AppError{Code: types.ErrCodeDeliveryFailed}

// Doer executes a single HTTP request. Implementations must return an error
// for any outcome that should count as a failed delivery.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryRecorder receives the outcome of every attempted PUT.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, status string, delivered bool)
	RecordLatency(ctx context.Context, d time.Duration)
}

// Sender delivers custom resource responses. The HTTP client is created once
// and reused by every Send; a Sender is safe for concurrent use as long as
// its Doer is.
type Sender struct {
	client   Doer
	logger   types.Logger
	recorder DeliveryRecorder
	clock    types.Clock
}

// SenderOption is a functional option for configuring a Sender.
type SenderOption func(*Sender)

// WithHTTPClient replaces the transport used for the PUT.
func WithHTTPClient(d Doer) SenderOption {
	return func(s *Sender) {
		s.client = d
	}
}

// WithLogger sets the logger used for the request body and failure entries.
func WithLogger(l types.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = l
	}
}

// WithRecorder sets where delivery outcomes are reported.
func WithRecorder(r DeliveryRecorder) SenderOption {
	return func(s *Sender) {
		s.recorder = r
	}
}

// WithClock overrides the clock used for latency measurement.
func WithClock(c types.Clock) SenderOption {
	return func(s *Sender) {
		s.clock = c
	}
}

// NewSender creates a Sender. Without options it PUTs through a
// CallbackClient over a plain http.Client with no timeout, logs through
// slog.Default() and records no metrics.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		logger:   types.NewSlogLogger(nil),
		recorder: metrics.NoopRecorder{},
		clock:    types.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = external.NewCallbackClient(&http.Client{}, external.DefaultBreakerSettings(), s.logger)
	}
	return s
}

// SendOption supplies one of the optional response fields.
type SendOption func(*sendOptions)

type sendOptions struct {
	reason             *string
	physicalResourceID *string
	data               any
	noEcho             bool
}

// WithReason sets the human readable reason. Without it the reason points at
// the CloudWatch log stream.
func WithReason(reason string) SendOption {
	return func(o *sendOptions) {
		o.reason = &reason
	}
}

// WithPhysicalResourceID overrides the physical resource ID. Without it the
// log stream name is used.
func WithPhysicalResourceID(id string) SendOption {
	return func(o *sendOptions) {
		o.physicalResourceID = &id
	}
}

// WithData attaches the caller's payload, serialized as the Data field.
func WithData(data any) SendOption {
	return func(o *sendOptions) {
		o.data = data
	}
}

// WithNoEcho asks CloudFormation to mask Data when displaying it.
func WithNoEcho(noEcho bool) SendOption {
	return func(o *sendOptions) {
		o.noEcho = noEcho
	}
}

// Send synchronously reports status for event to its ResponseURL.
//
// A nil event, an empty or unknown status, or a nil execution context is a
// programming error: Send returns false and an error matching
// ErrInvalidArgument without touching the network. Otherwise exactly one PUT
// is attempted. Any failure to serialize, build, or complete that request is
// logged with the target URL and reported as false with a nil error. Send
// never retries.
func (s *Sender) Send(ctx context.Context, event Event, status Status, execCtx ExecutionContext, opts ...SendOption) (bool, error) {
	header, err := checkArguments(event, status, execCtx)
	if err != nil {
		return false, err
	}

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := s.loggerFor(ctx)
	response := newResponse(header, status, execCtx.LogStreamName(), o)

	body, err := json.Marshal(response)
	if err != nil {
		logger.Error("could not serialize custom resource response",
			"response_url", header.ResponseURL,
			"error", err,
		)
		s.recorder.RecordDelivery(ctx, string(status), false)
		return false, nil
	}

	logger.Info("sending custom resource response",
		"body", string(body),
	)

	delivered := s.put(ctx, logger, header.ResponseURL, body)
	s.recorder.RecordDelivery(ctx, string(status), delivered)
	return delivered, nil
}

// put performs the single delivery attempt.
func (s *Sender) put(ctx context.Context, logger types.Logger, url string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		logger.Error("could not send custom resource response",
			"response_url", url,
			"error", err,
		)
		return false
	}
	// The pre-signed target rejects any other content type, including the
	// one a client would add by default.
	req.Header.Set("Content-Type", "")

	start := s.clock.Now()
	resp, err := s.client.Do(req)
	s.recorder.RecordLatency(ctx, s.clock.Now().Sub(start))
	if err != nil {
		args := []any{"response_url", url, "error", err}
		if code := types.CodeOf(err); code != "" {
			args = append(args, "error_code", string(code))
		}
		logger.Error("could not send custom resource response", args...)
		return false
	}
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return true
}

// loggerFor prefers the request-scoped logger stored in ctx.
func (s *Sender) loggerFor(ctx context.Context) types.Logger {
	logger := s.logger
	if l := types.LoggerFromContext(ctx); l != nil {
		logger = l
	}
	if id := types.GetRequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}

// checkArguments enforces the non-null parameters of Send.
func checkArguments(event Event, status Status, execCtx ExecutionContext) (*RequestHeader, error) {
	var header *RequestHeader
	if event != nil {
		header = event.Header()
	}
	if header == nil {
		return nil, nullArgument("event")
	}
	if status == "" {
		return nil, nullArgument("status")
	}
	if !status.Valid() {
		return nil, types.NewAppError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("param status must be %s or %s, got %q", StatusSuccess, StatusFailed, status), nil).
			WithDetails(map[string]any{"param": "status"})
	}
	if isNil(execCtx) {
		return nil, nullArgument("context")
	}
	return header, nil
}

// isNil reports whether execCtx is nil or a nil pointer, map, slice, func or
// channel wrapped in the interface.
func isNil(execCtx ExecutionContext) bool {
	if execCtx == nil {
		return true
	}
	v := reflect.ValueOf(execCtx)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func nullArgument(name string) *types.AppError {
	return types.NewAppError(types.ErrCodeInvalidArgument,
		fmt.Sprintf("param %s cannot be null", name), nil).
		WithDetails(map[string]any{"param": name})
}
