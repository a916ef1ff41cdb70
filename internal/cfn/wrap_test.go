package cfn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withLogStream sets the runtime log stream name for the test.
func withLogStream(t *testing.T, name string) {
	t.Helper()
	prev := lambdacontext.LogStreamName
	lambdacontext.LogStreamName = name
	t.Cleanup(func() { lambdacontext.LogStreamName = prev })
}

func loadEvent(t *testing.T, name string) Request[identifierProps] {
	t.Helper()
	var req Request[identifierProps]
	require.NoError(t, json.Unmarshal([]byte(fixture(t, name)), &req))
	return req
}

// sentResponse decodes the single body the stub transport received.
func sentResponse(t *testing.T, doer *stubDoer) Response {
	t.Helper()
	require.Len(t, doer.bodies, 1, "exactly one response is expected")
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(doer.bodies[0]), &resp))
	return resp
}

func TestWrap_Success(t *testing.T) {
	withLogStream(t, "2024/01/01/[$LATEST]abc")
	doer := &stubDoer{}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	var got Request[identifierProps]
	handler := Wrap(sender, func(_ context.Context, req Request[identifierProps]) (string, any, error) {
		got = req
		return "app-42", map[string]string{"Id": "app-42"}, nil
	})

	event := loadEvent(t, "create-event.json")
	require.NoError(t, handler(context.Background(), event))

	assert.Equal(t, "app-", got.ResourceProperties.Prefix)
	resp := sentResponse(t, doer)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "app-42", resp.PhysicalResourceID)
	assert.Equal(t, event.StackID, resp.StackID)
	assert.Equal(t, event.RequestID, resp.RequestID)
	assert.Equal(t, "Identifier", resp.LogicalResourceID)
	assert.Equal(t, "See the details in CloudWatch Log Stream: 2024/01/01/[$LATEST]abc", resp.Reason)
	assert.Equal(t, map[string]any{"Id": "app-42"}, resp.Data)
	assert.Equal(t, event.ResponseURL, doer.calls[0].URL.String())
}

func TestWrap_CreateFallsBackToLogStream(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		return "", nil, nil
	})
	require.NoError(t, handler(context.Background(), loadEvent(t, "create-event.json")))

	resp := sentResponse(t, doer)
	assert.Equal(t, "log-stream-name-123", resp.PhysicalResourceID)
	assert.Nil(t, resp.Data)
}

func TestWrap_UpdateKeepsPhysicalResourceID(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	var old identifierProps
	handler := Wrap(sender, func(_ context.Context, req Request[identifierProps]) (string, any, error) {
		old = req.OldResourceProperties
		return "", nil, nil
	})
	require.NoError(t, handler(context.Background(), loadEvent(t, "update-event.json")))

	assert.Equal(t, "app-", old.Prefix)
	assert.Equal(t, "app-1234", sentResponse(t, doer).PhysicalResourceID)
}

func TestWrap_HandlerError(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{}
	logger := newRecordingLogger()
	sender := NewSender(WithHTTPClient(doer), WithLogger(logger))

	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		return "", nil, errors.New("quota exceeded")
	})
	require.NoError(t, handler(context.Background(), loadEvent(t, "update-event.json")))

	resp := sentResponse(t, doer)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "quota exceeded", resp.Reason)
	assert.Equal(t, "app-1234", resp.PhysicalResourceID)

	errs := logger.byLevel("error")
	require.Len(t, errs, 1)
	rt, _ := errs[0].attr("request_type")
	assert.Equal(t, "Update", rt)
}

func TestWrap_HandlerPanic(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		panic("nil map write")
	})

	var err error
	require.NotPanics(t, func() {
		err = handler(context.Background(), loadEvent(t, "create-event.json"))
	})
	require.NoError(t, err)

	resp := sentResponse(t, doer)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Contains(t, resp.Reason, "panicked")
	assert.Contains(t, resp.Reason, "nil map write")
	assert.Equal(t, "log-stream-name-123", resp.PhysicalResourceID)
}

func TestWrap_MissingResponseURL(t *testing.T) {
	doer := &stubDoer{}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	called := false
	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		called = true
		return "", nil, nil
	})

	event := loadEvent(t, "create-event.json")
	event.ResponseURL = ""

	err := handler(context.Background(), event)
	require.Error(t, err)
	assert.False(t, called)
	assert.Empty(t, doer.calls)
}

func TestWrap_MalformedRequestIsAnswered(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	called := false
	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		called = true
		return "", nil, nil
	})

	event := loadEvent(t, "create-event.json")
	event.LogicalResourceID = ""

	err := handler(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid custom resource request")
	assert.False(t, called)

	resp := sentResponse(t, doer)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Contains(t, resp.Reason, "LogicalResourceID")
}

func TestWrap_DeliveryFailure(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{err: errSomethingWentWrong}
	sender := NewSender(WithHTTPClient(doer), WithLogger(newRecordingLogger()))

	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		return "app-1", nil, nil
	})

	err := handler(context.Background(), loadEvent(t, "create-event.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	assert.False(t, errors.Is(err, ErrInvalidArgument))
	assert.Len(t, doer.calls, 1)
}

func TestWrap_TagsLogsWithInvocationID(t *testing.T) {
	withLogStream(t, "log-stream-name-123")
	doer := &stubDoer{}
	logger := newRecordingLogger()
	sender := NewSender(WithHTTPClient(doer), WithLogger(logger))

	handler := Wrap(sender, func(context.Context, Request[identifierProps]) (string, any, error) {
		return "", nil, nil
	})

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "invocation-1"})
	require.NoError(t, handler(ctx, loadEvent(t, "create-event.json")))

	infos := logger.byLevel("info")
	require.Len(t, infos, 1)
	id, found := infos[0].attr("request_id")
	require.True(t, found)
	assert.Equal(t, "invocation-1", id)
	lid, _ := infos[0].attr("logical_resource_id")
	assert.Equal(t, "Identifier", lid)
}
