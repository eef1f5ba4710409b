package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency        = "APILatency"
	MetricAPIRequestCount   = "APIRequestCount"
	MetricAccessGranted     = "AccessGranted"
	MetricAccessDenied      = "AccessDenied"
	MetricQuotaExhausted    = "QuotaExhausted"
	MetricUsageRecorded     = "UsageRecorded"
	MetricUsageEventDropped = "UsageEventDropped"
	MetricTrialAssigned     = "TrialAssigned"

	// Dimension Keys
	DimFeature  = "Feature"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimCaller   = "Caller"
	DimState    = "State"

	// Metric Namespace
	MetricNamespace = "LexQuota"
)
