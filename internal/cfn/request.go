// Package cfn implements the CloudFormation custom resource response protocol.
//
// A custom resource Lambda receives a Request carrying a pre-signed,
// single-use ResponseURL. When provisioning finishes, the Sender serializes a
// Response and delivers it with exactly one HTTP PUT to that URL. Delivery
// problems are reported as a boolean; only caller programming errors are
// returned as errors.
package cfn

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// RequestType classifies the lifecycle operation CloudFormation is asking for.
// The Sender never branches on it.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// RequestHeader holds the identifying fields of an inbound custom resource
// event. JSON keys follow the CloudFormation wire casing.
type RequestHeader struct {
	RequestType        RequestType `json:"RequestType"`
	ResponseURL        string      `json:"ResponseURL" validate:"required,url"`
	StackID            string      `json:"StackId" validate:"required"`
	RequestID          string      `json:"RequestId" validate:"required"`
	LogicalResourceID  string      `json:"LogicalResourceId" validate:"required"`
	PhysicalResourceID string      `json:"PhysicalResourceId,omitempty"`
	ResourceType       string      `json:"ResourceType,omitempty"`
	ServiceToken       string      `json:"ServiceToken,omitempty"`
}

// Request is a custom resource event whose resource properties decode into P.
// OldResourceProperties is only populated on Update.
type Request[P any] struct {
	RequestHeader

	ResourceProperties    P `json:"ResourceProperties"`
	OldResourceProperties P `json:"OldResourceProperties"`
}

// Event is the view of an inbound request the Sender reads. It is satisfied
// by *Request[P] for any P.
type Event interface {
	Header() *RequestHeader
}

// Header returns the identifying fields of r, or nil when r is nil.
func (r *Request[P]) Header() *RequestHeader {
	if r == nil {
		return nil
	}
	return &r.RequestHeader
}

var requestValidator = validator.New()

// Validate checks that the header carries everything CloudFormation needs to
// correlate a response. The Sender does not call it; handlers that want to
// reject malformed events up front do.
func (h *RequestHeader) Validate() error {
	if h == nil {
		return fmt.Errorf("request header is nil")
	}
	if err := requestValidator.Struct(h); err != nil {
		return fmt.Errorf("invalid custom resource request: %w", err)
	}
	return nil
}
