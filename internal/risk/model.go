package risk

import (
	"coldtrace/internal/types"
)

// FeatureVector is the model input describing one set of transit conditions.
// VPD is derived from temperature and humidity at assembly time so every
// model head scores the same physical features.
type FeatureVector struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	VPD          float64 `json:"vpd"`
	TransitHours float64 `json:"transit_hours"`
	CropType     string  `json:"crop_type"`
}

// NewFeatureVector assembles a model input from raw conditions, deriving the
// vapor pressure deficit. Callers are responsible for flooring TransitHours
// where a zero-duration artifact would distort scoring (the route evaluator
// does this per waypoint).
func NewFeatureVector(tempC, humidityPct, transitHours float64, cropType string) FeatureVector {
	return FeatureVector{
		Temperature:  tempC,
		Humidity:     humidityPct,
		VPD:          VaporPressureDeficit(tempC, humidityPct),
		TransitHours: transitHours,
		CropType:     cropType,
	}
}

// Model is the continuous head of a spoilage model: it maps a feature vector
// to a raw risk score. Scores outside [0,1] are permitted here; the
// reconciler clamps. Implementations must be read-only after construction
// and safe for concurrent use.
type Model interface {
	ScoreContinuous(fv FeatureVector) (float64, error)
}

// DiscreteScorer is the optional classifier head of a spoilage model. The
// reconciler detects it via type assertion on the configured Model; models
// without it run the regressor-only path.
type DiscreteScorer interface {
	// ScoreDiscrete returns the Safe/Spoiled verdict and the model's
	// probability that the sample is Safe.
	ScoreDiscrete(fv FeatureVector) (types.SpoilageLabel, float64, error)
}

// RegressorOnly masks any classifier head a model may carry, forcing the
// regressor-only reconciliation path. Used when the classifier is disabled
// by configuration.
func RegressorOnly(m Model) Model {
	if m == nil {
		return nil
	}
	return regressorOnly{m}
}

// regressorOnly promotes only the Model method set, so a DiscreteScorer
// assertion on it fails even when the wrapped model implements one.
type regressorOnly struct {
	Model
}
