package cfn

// Status is the outcome reported to CloudFormation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Valid reports whether s is one of the two protocol values.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFailed
}

// defaultReasonPrefix is prepended to the log stream name when the caller
// gives no reason.
const defaultReasonPrefix = "See the details in CloudWatch Log Stream: "

// Response is the body PUT to the pre-signed ResponseURL. Every key is
// always emitted; Data is null when absent.
type Response struct {
	StackID            string `json:"StackId"`
	RequestID          string `json:"RequestId"`
	LogicalResourceID  string `json:"LogicalResourceId"`
	PhysicalResourceID string `json:"PhysicalResourceId"`
	Status             Status `json:"Status"`
	Reason             string `json:"Reason"`
	NoEcho             bool   `json:"NoEcho"`
	Data               any    `json:"Data"`
}

// newResponse resolves the optional fields against the execution context and
// copies the identifying fields from the request.
func newResponse(h *RequestHeader, status Status, logStream string, o sendOptions) *Response {
	resp := &Response{
		StackID:            h.StackID,
		RequestID:          h.RequestID,
		LogicalResourceID:  h.LogicalResourceID,
		PhysicalResourceID: logStream,
		Status:             status,
		Reason:             defaultReasonPrefix + logStream,
		NoEcho:             o.noEcho,
		Data:               o.data,
	}
	if o.physicalResourceID != nil {
		resp.PhysicalResourceID = *o.physicalResourceID
	}
	if o.reason != nil {
		resp.Reason = *o.reason
	}
	return resp
}
