package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricJobRun             = "JobRun"
	MetricJobDuration        = "JobDuration"
	MetricJobItemsProcessed  = "JobItemsProcessed"
	MetricJobItemErrors      = "JobItemErrors"
	MetricPredictionFallback = "PredictionFallback"

	// Dimension Keys
	DimTask   = "Task"
	DimResult = "Result"

	// Metric Namespace
	MetricNamespace = "LearnPulse/Engine"
)
