package types

import (
	"time"
)

// Coordinate is a bare lat/lon pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location represents a geographic coordinate with an optional display name.
type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
}

// RoutePlan is the driving route between origin and destination, normalized
// to a small set of sampling waypoints.
type RoutePlan struct {
	Origin      Location     `json:"origin"`
	Destination Location     `json:"destination"`
	Waypoints   []Coordinate `json:"waypoints"`
	DistanceKm  float64      `json:"distance_km"`
	DurationHrs float64      `json:"duration_hours"`
	Provider    ProviderKind `json:"provider"`
}

// EnvironmentalSnapshot holds the ambient readings fetched (or simulated)
// for a single waypoint.
type EnvironmentalSnapshot struct {
	TemperatureC      float64 `json:"temperature_c"`
	Humidity          float64 `json:"humidity_percent"`
	Condition         string  `json:"condition"`
	PrecipitationProb float64 `json:"precipitation_probability"`
	UVIndex           float64 `json:"uv_index"`
	AQI               float64 `json:"aqi"`
	AQICategory       string  `json:"aqi_category,omitempty"`
	PM25              float64 `json:"pm25,omitempty"`

	// EnvironmentalRisk is the 0..1 ambient-stress heuristic derived from
	// the readings above.
	EnvironmentalRisk float64      `json:"environmental_risk"`
	Source            ProviderKind `json:"source"`
}

// TelemetryPoint is one sampled waypoint of a trip, combining position,
// timing, and environmental readings. JSON tags use snake_case to match the
// upstream ingestion contract.
type TelemetryPoint struct {
	WaypointNum       int     `json:"waypoint_num"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	AmbientTempC      float64 `json:"ambient_temp"`
	InternalTempC     float64 `json:"internal_temp"`
	Humidity          float64 `json:"humidity"`
	Condition         string  `json:"condition"`
	SegmentKm         float64 `json:"segment_km"`
	CumulativeKm      float64 `json:"cumulative_km"`
	CumulativeHours   float64 `json:"cumulative_hours"`
	ExposureHours     float64 `json:"exposure_hours"`
	EnvironmentalRisk float64 `json:"environmental_risk"`

	// Degraded marks points filled with default readings after every
	// environmental provider failed for this waypoint.
	Degraded bool `json:"degraded,omitempty"`
}

// Trip is the generated telemetry for one shipment.
type Trip struct {
	Route       RoutePlan        `json:"route"`
	Points      []TelemetryPoint `json:"telemetry_points"`
	TotalHours  float64          `json:"total_transit_hours"`
	CropType    string           `json:"crop_type"`
	GeneratedAt time.Time        `json:"generated_at"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// TripRequest describes one shipment to analyze.
type TripRequest struct {
	Origin      string `json:"origin" validate:"required,max=200"`
	Destination string `json:"destination" validate:"required,max=200"`
	CropType    string `json:"crop_type" validate:"required,max=100"`
	Language    string `json:"language,omitempty" validate:"omitempty,max=5"`
	SessionID   string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
}

// ConditionsRequest scores already-measured conditions directly, without
// route or telemetry generation.
type ConditionsRequest struct {
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity_percent"`
	TransitHours float64 `json:"transit_hours"`
	CropType     string  `json:"crop_type" validate:"required,max=100"`
}

// SpoilagePrediction is the reconciled model output for one set of conditions.
// It is always well-formed: when no model is available the risk fields are
// zero, Status is Unknown, and ModelError carries the reason.
type SpoilagePrediction struct {
	Risk          float64        `json:"spoilage_risk"`
	Status        SpoilageStatus `json:"status"`
	DaysRemaining float64        `json:"days_remaining"`
	VPD           float64        `json:"calculated_vpd"`

	// Confidence is only set when a discrete classifier participated.
	Confidence *float64 `json:"confidence,omitempty"`
	// ClassifierLabel records the discrete verdict when one was available.
	ClassifierLabel *SpoilageLabel `json:"classifier_label,omitempty"`

	ModelError string `json:"error,omitempty"`
}

// WaypointRisk is the per-waypoint evaluation record.
type WaypointRisk struct {
	WaypointNum    int            `json:"waypoint_num"`
	Lat            float64        `json:"lat"`
	Lon            float64        `json:"lon"`
	TemperatureC   float64        `json:"temperature_c"`
	Humidity       float64        `json:"humidity_percent"`
	VPD            float64        `json:"vpd_kpa"`
	InstantRisk    float64        `json:"instant_risk"`
	CumulativeRisk float64        `json:"cumulative_risk"`
	Status         SpoilageStatus `json:"status"`
	Confidence     *float64       `json:"confidence,omitempty"`
	ExposureHours  float64        `json:"exposure_hours"`

	// Degraded marks records produced from placeholder telemetry or after
	// a scoring failure for this waypoint.
	Degraded bool `json:"degraded,omitempty"`
}

// DangerZone flags waypoints whose instantaneous risk crosses the exposure
// threshold used by route summaries.
func (w WaypointRisk) DangerZone() bool {
	return w.InstantRisk > DangerZoneRiskThreshold
}

// RouteSummary aggregates per-waypoint records into route-level statistics.
type RouteSummary struct {
	WaypointCount int `json:"waypoint_count"`

	TempMinC     float64            `json:"temp_min_c"`
	TempMaxC     float64            `json:"temp_max_c"`
	TempVariance float64            `json:"temp_variance"`
	Profile      TemperatureProfile `json:"temperature_profile"`

	// HighestRiskNum is the waypoint number (1-based) of the first waypoint
	// carrying the maximum instantaneous risk.
	HighestRiskNum   int     `json:"highest_risk_waypoint"`
	HighestRiskValue float64 `json:"highest_risk_value"`
	HighestRiskTempC float64 `json:"highest_risk_temp_c"`

	DangerZoneCount int     `json:"danger_zone_count"`
	DangerZoneHours float64 `json:"danger_zone_hours"`
}

// DangerZoneRiskThreshold is the instantaneous risk above which a waypoint
// counts as a danger zone.
const DangerZoneRiskThreshold = 0.5

// NarrativeContext is the structured trip report handed to insight
// generators (and, downstream, to LLM consumers).
type NarrativeContext struct {
	Crop             string   `json:"crop"`
	Origin           string   `json:"origin"`
	Destination      string   `json:"destination"`
	DistanceKm       float64  `json:"distance_km"`
	DurationHours    float64  `json:"duration_hours"`
	AvgTempC         float64  `json:"avg_temp"`
	AvgHumidity      float64  `json:"avg_humidity"`
	WaypointsSampled int      `json:"waypoints_sampled"`
	RouteSummary     string   `json:"route_summary"`
	StorageRules     []string `json:"storage_rules,omitempty"`
}

// TripAnalysis is the complete analysis result for one request.
type TripAnalysis struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id,omitempty"`

	Route      RoutePlan          `json:"route"`
	Points     []TelemetryPoint   `json:"telemetry_points"`
	Prediction SpoilagePrediction `json:"spoilage_risk"`
	Waypoints  []WaypointRisk     `json:"waypoint_risks"`
	Summary    RouteSummary       `json:"route_summary"`

	Narrative       NarrativeContext `json:"risk_analysis"`
	Insight         string           `json:"agent_insight,omitempty"`
	Language        string           `json:"language,omitempty"`
	LocalizedStatus string           `json:"localized_status,omitempty"`

	Warnings    []string  `json:"warnings,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Crop is one entry of the golden-rules storage catalog.
type Crop struct {
	Name        string       `json:"name" yaml:"name" db:"name"`
	Category    CropCategory `json:"category" yaml:"category" db:"category"`
	TempMinC    float64      `json:"temp_min" yaml:"temp_min" db:"temp_min_c"`
	TempMaxC    float64      `json:"temp_max" yaml:"temp_max" db:"temp_max_c"`
	HumidityMin float64      `json:"humidity_min" yaml:"humidity_min" db:"humidity_min"`
	HumidityMax float64      `json:"humidity_max" yaml:"humidity_max" db:"humidity_max"`
	Notes       string       `json:"notes" yaml:"notes" db:"notes"`
}
