package types

import (
	"fmt"
	"strings"
)

// Validation constraint constants.
const (
	MinLat          = -90.0
	MaxLat          = 90.0
	MinLon          = -180.0
	MaxLon          = 180.0
	MaxNameLength   = 200
	MaxBatchSize    = 50
	MinTransitHours = 1.0
	MaxTransitHours = 336.0
)

// VariableMetadata defines the canonical rules for a telemetry variable.
type VariableMetadata struct {
	ID          string     `json:"id"`
	Unit        string     `json:"unit"`
	Range       [2]float64 `json:"valid_range"`
	Description string     `json:"description"`
}

// StandardVariables defines the authoritative constraints for the pipeline.
// All components MUST validate against these ranges. The keys double as the
// feature column names of the scoring contract.
var StandardVariables = map[string]VariableMetadata{
	"temperature_c":             {ID: "temperature_c", Unit: "celsius", Range: [2]float64{-60, 60}, Description: "Ambient air temperature at the waypoint"},
	"humidity_percent":          {ID: "humidity_percent", Unit: "percent", Range: [2]float64{0, 100}, Description: "Relative humidity"},
	"transit_hours":             {ID: "transit_hours", Unit: "hours", Range: [2]float64{0, MaxTransitHours}, Description: "Elapsed transit duration"},
	"vpd_kpa":                   {ID: "vpd_kpa", Unit: "kPa", Range: [2]float64{0, 12}, Description: "Vapor pressure deficit"},
	"spoilage_risk":             {ID: "spoilage_risk", Unit: "fraction", Range: [2]float64{0, 1}, Description: "Normalized spoilage risk score"},
	"precipitation_probability": {ID: "precipitation_probability", Unit: "percent", Range: [2]float64{0, 100}, Description: "Probability of precipitation"},
	"uv_index":                  {ID: "uv_index", Unit: "index", Range: [2]float64{0, 15}, Description: "UV radiation index"},
	"aqi":                       {ID: "aqi", Unit: "index", Range: [2]float64{0, 500}, Description: "Universal air quality index"},
}

// ValidateReading checks if a measured value is within the valid range for
// its variable.
func ValidateReading(variable string, value float64) error {
	meta, ok := StandardVariables[variable]
	if !ok {
		return fmt.Errorf("%s: unknown variable '%s'", ErrCodeValidationInvalidRange, variable)
	}
	if value < meta.Range[0] || value > meta.Range[1] {
		return fmt.Errorf("%s: value %.2f outside valid range [%.2f, %.2f] for %s",
			ErrCodeValidationInvalidRange, value, meta.Range[0], meta.Range[1], variable)
	}
	return nil
}

// ValidateCoordinate checks latitude and longitude bounds.
func ValidateCoordinate(lat, lon float64) error {
	if lat < MinLat || lat > MaxLat {
		return fmt.Errorf("%s: latitude %.4f outside [%.1f, %.1f]", ErrCodeValidationInvalidLat, lat, MinLat, MaxLat)
	}
	if lon < MinLon || lon > MaxLon {
		return fmt.Errorf("%s: longitude %.4f outside [%.1f, %.1f]", ErrCodeValidationInvalidLon, lon, MinLon, MaxLon)
	}
	return nil
}

// Validate implements the Validator interface for TripRequest.
func (r *TripRequest) Validate() error {
	if strings.TrimSpace(r.Origin) == "" {
		return fmt.Errorf("%s: origin", ErrCodeValidationMissingField)
	}
	if strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("%s: destination", ErrCodeValidationMissingField)
	}
	if strings.TrimSpace(r.CropType) == "" {
		return fmt.Errorf("%s: crop_type", ErrCodeValidationMissingField)
	}
	if len(r.Origin) > MaxNameLength || len(r.Destination) > MaxNameLength {
		return fmt.Errorf("%s: place name exceeds %d characters", ErrCodeValidationInvalidRange, MaxNameLength)
	}
	if r.Language != "" && r.Language != "en" && !isSupportedLanguage(r.Language) {
		return fmt.Errorf("%s: %s", ErrCodeValidationInvalidLanguage, r.Language)
	}
	return nil
}

// Validate implements the Validator interface for ConditionsRequest.
func (r *ConditionsRequest) Validate() error {
	if strings.TrimSpace(r.CropType) == "" {
		return fmt.Errorf("%s: crop_type", ErrCodeValidationMissingField)
	}
	if err := ValidateReading("temperature_c", r.TemperatureC); err != nil {
		return err
	}
	if err := ValidateReading("humidity_percent", r.Humidity); err != nil {
		return err
	}
	if r.TransitHours < 0 || r.TransitHours > MaxTransitHours {
		return fmt.Errorf("%s: transit_hours %.2f outside [0, %.0f]",
			ErrCodeValidationInvalidRange, r.TransitHours, MaxTransitHours)
	}
	return nil
}

// Validate implements the Validator interface for AnalysisJob. The
// dispatcher calls it before enqueueing so a malformed job fails fast;
// workers call it again on receipt because the queue is not a trusted
// boundary.
func (j *AnalysisJob) Validate() error {
	switch j.Action {
	case ActionAnalyzeTrip:
		if j.Trip == nil {
			return fmt.Errorf("%s: trip payload for action %q", ErrCodeValidationMissingField, j.Action)
		}
		return j.Trip.Validate()
	case ActionAnalyzeConditions:
		if j.Conditions == nil {
			return fmt.Errorf("%s: conditions payload for action %q", ErrCodeValidationMissingField, j.Action)
		}
		return j.Conditions.Validate()
	default:
		return fmt.Errorf("%s: %q", ErrCodeValidationInvalidAction, j.Action)
	}
}

func isSupportedLanguage(code string) bool {
	for _, l := range SupportedLanguages {
		if l == code {
			return true
		}
	}
	return false
}
