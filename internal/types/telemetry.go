package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAnalysisCompleted  = "AnalysisCompleted"
	MetricAnalysisFailed     = "AnalysisFailed"
	MetricAnalysisLatency    = "AnalysisLatency"
	MetricModelUnavailable   = "ModelUnavailable"
	MetricDangerZones        = "DangerZones"
	MetricProviderFailover   = "ProviderFailover"
	MetricExternalAPIFailure = "ExternalAPIFailure"
	MetricQueueLag           = "QueueLag"

	// Dimension Keys
	DimCropType = "CropType"
	DimStatus   = "Status"
	DimProvider = "Provider"
	DimAction   = "Action"
	DimQueue    = "Queue"

	// Metric Namespace
	MetricNamespace = "ColdTrace"
)

// Feature column names of the scoring contract. Training and inference MUST
// use these exact keys so artifacts and runtime features stay aligned.
const (
	FeatureCropType     = "crop_type"
	FeatureTemperatureC = "temperature_c"
	FeatureHumidityPct  = "humidity_percent"
	FeatureTransitHours = "transit_hours"
	FeatureVPDKpa       = "vpd_kpa"
)
