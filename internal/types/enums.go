package types

// SpoilageStatus represents the reconciled severity band of a prediction.
type SpoilageStatus string

const (
	StatusSafe     SpoilageStatus = "Safe"
	StatusWarning  SpoilageStatus = "Warning"
	StatusCritical SpoilageStatus = "Critical"
	// StatusUnknown is returned when no model is available to score the
	// request. The record is still well-formed; callers check ModelError.
	StatusUnknown SpoilageStatus = "Unknown"
)

// SpoilageLabel is the discrete classifier verdict.
type SpoilageLabel string

const (
	LabelSafe    SpoilageLabel = "Safe"
	LabelSpoiled SpoilageLabel = "Spoiled"
)

// CropCategory groups crops with similar decay behavior.
type CropCategory string

const (
	CategoryBerry     CropCategory = "berry"
	CategoryLeafy     CropCategory = "leafy_green"
	CategoryFlower    CropCategory = "flower"
	CategoryFruit     CropCategory = "fruit"
	CategoryVegetable CropCategory = "vegetable"
	CategoryRoot      CropCategory = "root"
	CategoryOnion     CropCategory = "onion"
	CategoryPotato    CropCategory = "potato"
	CategoryGrain     CropCategory = "grain"
	CategoryGeneral   CropCategory = "general"
)

// TemperatureProfile classifies route temperature variance.
type TemperatureProfile string

const (
	ProfileStable           TemperatureProfile = "Stable"
	ProfileModerateVariance TemperatureProfile = "Moderate Variance"
	ProfileHighVariance     TemperatureProfile = "High Variance"
)

// Temperature variance thresholds (degrees C) for profile classification.
const (
	VarianceHighThreshold     = 10.0
	VarianceModerateThreshold = 5.0
)

// AnalysisAction determines the worker logic for processing a queued job.
type AnalysisAction string

const (
	// ActionAnalyzeTrip runs the full route pipeline: geocode, route,
	// telemetry, prediction, aggregation.
	ActionAnalyzeTrip AnalysisAction = "analyze_trip"
	// ActionAnalyzeConditions scores already-measured conditions directly,
	// skipping route and telemetry generation.
	ActionAnalyzeConditions AnalysisAction = "analyze_conditions"
)

// ProviderKind identifies an external data provider family for logging
// and failover bookkeeping.
type ProviderKind string

const (
	ProviderGoogle    ProviderKind = "google"
	ProviderNominatim ProviderKind = "nominatim"
	ProviderOSRM      ProviderKind = "osrm"
	ProviderSimulated ProviderKind = "simulated"
)

// SupportedLanguages lists the language codes the status localizer knows.
// English is the passthrough default and is not listed.
var SupportedLanguages = []string{"hi", "ta", "te", "kn", "ml", "mr", "gu", "pa", "bn"}
