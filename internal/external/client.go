// Package external wraps the outbound HTTP call to the pre-signed callback
// URL. The CallbackClient tracks endpoint health with a circuit breaker and
// surfaces non-2xx answers as errors. It never retries: a pre-signed response
// URL accepts one PUT, and retry policy belongs to the caller.
//
// The breaker never suppresses a request. Each URL is single use and belongs
// to one stack operation, so a request refused by an open breaker is still
// attempted once, outside the breaker, and the open state is logged.
package external

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"cfnresponse/internal/types"
)

// maxErrorBodyRead limits how much of a rejected response is kept for the
// error message.
const maxErrorBodyRead = 1024

// BreakerSettings configures the circuit breaker of a CallbackClient.
type BreakerSettings struct {
	Name string
	// FailureThreshold is the number of consecutive upstream failures after
	// which the breaker opens.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a probe
	// request through.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the settings used when none are configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "cfn-response-url",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// StatusError reports a callback endpoint answer outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("callback endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("callback endpoint returned %d: %s", e.StatusCode, e.Body)
}

// CallbackClient executes single requests against pre-signed URLs.
type CallbackClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  types.Logger
}

// NewCallbackClient creates a CallbackClient over httpClient. State changes of
// the breaker are logged through logger.
func NewCallbackClient(httpClient *http.Client, settings BreakerSettings, logger types.Logger) *CallbackClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = DefaultBreakerSettings().FailureThreshold
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("callback circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
		},
	})

	return &CallbackClient{
		client:  httpClient,
		breaker: cb,
		logger:  logger,
	}
}

// Do executes req exactly once. On a 2xx answer the response is returned and
// the caller must close its body. Any other outcome is returned as a
// *types.AppError wrapping the cause.
func (c *CallbackClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.attempt(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Execute did not run the request, so its body is untouched.
		if c.logger != nil {
			c.logger.Warn("callback circuit breaker open; attempting delivery anyway",
				"breaker", c.breaker.Name(),
				"state", c.breaker.State().String(),
			)
		}
		resp, err = c.attempt(req)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

// attempt performs the HTTP round trip and turns a non-2xx answer into a
// *StatusError.
func (c *CallbackClient) attempt(req *http.Request) (*http.Response, error) {
	r, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBodyRead))
		r.Body.Close()
		return nil, &StatusError{StatusCode: r.StatusCode, Body: string(body)}
	}
	return r, nil
}

// countsAsHealthy decides what the breaker counts as a failure. A 4xx other
// than 429 is a problem with one particular URL (expired or already used),
// not with the endpoint, so it does not trip the breaker.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// mapError translates transport failures into AppErrors.
func mapError(err error) *types.AppError {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		details := map[string]any{"status_code": statusErr.StatusCode}
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "callback endpoint rate limited", err).WithDetails(details)
		case statusErr.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, "callback endpoint unavailable", err).WithDetails(details)
		default:
			return types.NewAppError(types.ErrCodeUpstreamRejected, "callback endpoint rejected the response", err).WithDetails(details)
		}
	}

	return types.NewAppError(
		types.ErrCodeInternalUnexpected,
		"callback request failed",
		err,
	)
}
