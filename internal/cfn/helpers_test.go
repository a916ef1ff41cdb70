package cfn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cfnresponse/internal/types"
)

// logEntry is one call recorded by recordingLogger.
type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures entries so tests can assert on the side channel.
type recordingLogger struct {
	mu      sync.Mutex
	entries *[]logEntry
	fields  []any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: &[]logEntry{}}
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, args: append(append([]any{}, l.fields...), args...)})
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) With(args ...any) types.Logger {
	return &recordingLogger{entries: l.entries, fields: append(append([]any{}, l.fields...), args...)}
}

// byLevel returns the entries logged at level.
func (l *recordingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range *l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

// attr returns the value logged under key, if any.
func (e logEntry) attr(key string) (any, bool) {
	for i := 0; i+1 < len(e.args); i += 2 {
		if k, ok := e.args[i].(string); ok && k == key {
			return e.args[i+1], true
		}
	}
	return nil, false
}

// capturedRequest is what the fake callback endpoint saw.
type capturedRequest struct {
	method      string
	path        string
	body        string
	contentType []string
	hasCT       bool
}

// callbackServer stands in for the pre-signed S3 URL.
type callbackServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func newCallbackServer(t *testing.T, status int) *callbackServer {
	t.Helper()
	cs := &callbackServer{status: status}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ct, ok := r.Header["Content-Type"]
		cs.mu.Lock()
		cs.requests = append(cs.requests, capturedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			body:        string(body),
			contentType: ct,
			hasCT:       ok,
		})
		cs.mu.Unlock()
		w.WriteHeader(cs.status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *callbackServer) captured() []capturedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]capturedRequest{}, cs.requests...)
}

// stubDoer records requests and returns a canned result.
type stubDoer struct {
	calls  []*http.Request
	bodies []string
	err    error
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls = append(d.calls, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(b))
	}
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

var errSomethingWentWrong = errors.New("something went wrong")

// recordedDelivery is one RecordDelivery call.
type recordedDelivery struct {
	status    string
	delivered bool
}

// mockRecorder implements DeliveryRecorder.
type mockRecorder struct {
	deliveries []recordedDelivery
	latencies  []time.Duration
}

func (m *mockRecorder) RecordDelivery(_ context.Context, status string, delivered bool) {
	m.deliveries = append(m.deliveries, recordedDelivery{status: status, delivered: delivered})
}

func (m *mockRecorder) RecordLatency(_ context.Context, d time.Duration) {
	m.latencies = append(m.latencies, d)
}

// stepClock advances by step on every Now call.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// fixture reads a file from testdata.
func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err, fmt.Sprintf("reading fixture %s", name))
	return string(b)
}
