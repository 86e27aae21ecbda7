package types

// CloudWatch metric names emitted by the batch processor and the API chassis.
const (
	// MetricBatchReceived counts messages received per batch poll.
	MetricBatchReceived = "BatchReceived"
	// MetricItemsProcessed counts messages classified and acknowledged.
	MetricItemsProcessed = "ItemsProcessed"
	// MetricItemsFailed counts messages reported back for redelivery.
	MetricItemsFailed = "ItemsFailed"
	// MetricQueueLag measures time between enqueue and processing start.
	MetricQueueLag = "QueueLag"
	// MetricAPILatency measures API request duration.
	MetricAPILatency = "APILatency"
)

// Metric dimension names.
const (
	DimAlertLevel = "AlertLevel"
	DimEndpoint   = "Endpoint"
)
