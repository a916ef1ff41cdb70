package types

// Telemetry metric names for CloudWatch.
const (
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliveryLatency = "DeliveryAttemptLatency"

	// Dimension Keys
	DimStatus = "Status"
	DimResult = "Result"

	// DefaultMetricNamespace is used when METRIC_NAMESPACE is unset.
	DefaultMetricNamespace = "CfnResponse"
)
