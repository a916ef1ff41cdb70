package cfn

import (
	"context"
	"fmt"

	"cfnresponse/internal/types"
)

// CustomResourceFunc provisions, updates, or deletes a resource. It returns
// the physical resource ID to report (empty keeps the current one or falls
// back to the log stream) and the Data payload.
type CustomResourceFunc[P any] func(ctx context.Context, req Request[P]) (physicalResourceID string, data any, err error)

// Wrap turns fn into a Lambda handler that reports exactly once per
// invocation. An error or panic from fn is reported as FAILED with the error
// text as reason. The handler itself only fails when the request cannot be
// answered or the response could not be delivered.
func Wrap[P any](s *Sender, fn CustomResourceFunc[P]) func(context.Context, Request[P]) error {
	return func(ctx context.Context, req Request[P]) error {
		execCtx := LambdaContext()
		logger := s.logger.With(
			"request_type", string(req.RequestType),
			"logical_resource_id", req.LogicalResourceID,
			"stack_id", req.StackID,
		)
		if id := awsRequestID(ctx); id != "" {
			ctx = types.WithRequestID(ctx, id)
		}
		ctx = types.WithLogger(ctx, logger)

		if err := req.Validate(); err != nil {
			logger.Error("rejecting malformed custom resource request", "error", err)
			if req.ResponseURL == "" {
				return err
			}
			// Still answer so the stack does not wait for the timeout.
			if _, sendErr := s.Send(ctx, &req, StatusFailed, execCtx, WithReason(err.Error())); sendErr != nil {
				return sendErr
			}
			return err
		}

		physicalID, data, fnErr := invoke(ctx, fn, req)

		status := StatusSuccess
		opts := []SendOption{WithData(data)}
		if fnErr != nil {
			logger.Error("custom resource handler failed", "error", fnErr)
			status = StatusFailed
			opts = append(opts, WithReason(fnErr.Error()))
		}

		// CloudFormation treats a changed physical ID on Update or Delete as a
		// replacement, so the current one is kept unless fn chose another.
		if physicalID == "" && req.RequestType != RequestCreate {
			physicalID = req.PhysicalResourceID
		}
		if physicalID != "" {
			opts = append(opts, WithPhysicalResourceID(physicalID))
		}

		delivered, err := s.Send(ctx, &req, status, execCtx, opts...)
		if err != nil {
			return err
		}
		if !delivered {
			return types.NewAppError(types.ErrCodeDeliveryFailed,
				fmt.Sprintf("could not deliver %s response for %s", status, req.LogicalResourceID), nil)
		}
		return nil
	}
}

// invoke runs fn and converts a panic into an error.
func invoke[P any](ctx context.Context, fn CustomResourceFunc[P], req Request[P]) (physicalID string, data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			physicalID, data = "", nil
			err = fmt.Errorf("custom resource handler panicked: %v", r)
		}
	}()
	return fn(ctx, req)
}
