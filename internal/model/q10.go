// Package model provides the embedded spoilage model served by the risk
// engine. Scoring applies Q10 decay kinetics: shelf life halves roughly
// every 10°C above a crop's optimal storage temperature, chilling injury
// penalizes readings below it, and sustained dryness or condensation adds
// a multiplicative penalty on top.
//
// Parameters ship as a versioned JSON artifact, either embedded in the
// binary or loaded from disk. A loaded model is read-only and safe for
// concurrent scoring.
package model

import (
	"math"

	"coldtrace/internal/risk"
	"coldtrace/internal/types"
)

const (
	// coldInjuryFactor scales decay linearly per degree below the
	// optimal storage temperature.
	coldInjuryFactor = 3.0
	// dryVPDThreshold is the vapor pressure deficit above which produce
	// loses moisture fast enough to accelerate spoilage.
	dryVPDThreshold = 1.5
	dryPenalty      = 1.2
	// condensationHumidity is the relative humidity above which mold
	// growth accelerates spoilage.
	condensationHumidity = 95.0
	moldPenalty          = 1.3

	hoursPerDay = 24.0
)

// Q10Model scores spoilage risk from the parameters of a loaded Artifact.
// Crop lookups are case-insensitive and fall back from crop to category to
// the artifact default, so an unrecognized crop type still scores.
type Q10Model struct {
	artifact   *Artifact
	crops      map[string]CropParams
	categories map[string]CropParams
}

var (
	_ risk.Model          = (*Q10Model)(nil)
	_ risk.DiscreteScorer = (*Q10Model)(nil)
)

// New builds a scorer over a parsed artifact. The artifact is expected to
// be validated; Parse and Load both do so. Returns nil for a nil artifact.
func New(a *Artifact) *Q10Model {
	if a == nil {
		return nil
	}
	m := &Q10Model{
		artifact:   a,
		crops:      make(map[string]CropParams, len(a.Crops)),
		categories: make(map[string]CropParams, len(a.Categories)),
	}
	for name, p := range a.Crops {
		m.crops[normalizeCrop(name)] = p
	}
	for name, p := range a.Categories {
		m.categories[normalizeCrop(name)] = p
	}
	return m
}

// Version reports the artifact version the model was built from.
func (m *Q10Model) Version() int {
	return m.artifact.Version
}

// Params resolves the decay parameters for a crop type, falling back to
// its category entry and then to the artifact default.
func (m *Q10Model) Params(cropType string) CropParams {
	key := normalizeCrop(cropType)
	if p, ok := m.crops[key]; ok {
		return p
	}
	if p, ok := m.categories[key]; ok {
		return p
	}
	return m.artifact.Default
}

// ScoreContinuous returns the spoilage risk in [0, 1] for one feature
// vector. Risk grows with transit time scaled by the crop's decay rate at
// the observed temperature, normalized by base shelf life. Only non-finite
// features produce an error.
func (m *Q10Model) ScoreContinuous(fv risk.FeatureVector) (float64, error) {
	if !finite(fv.Temperature) || !finite(fv.Humidity) || !finite(fv.VPD) || !finite(fv.TransitHours) {
		return 0, types.NewAppError(types.ErrCodeModelScoringFailed, "non-finite feature value", nil)
	}

	p := m.Params(fv.CropType)
	deltaT := fv.Temperature - p.OptTempC

	// Above the optimum, decay follows Q10 kinetics. Below it, chilling
	// injury dominates and scales linearly with the drop.
	var decay float64
	if deltaT >= 0 {
		decay = math.Pow(p.Q10, deltaT/10)
	} else {
		decay = coldInjuryFactor * math.Abs(deltaT)
	}

	score := (fv.TransitHours / hoursPerDay * decay) / p.BaseShelfLifeDays

	// Dryness and condensation penalties are mutually exclusive, with
	// dryness taking precedence.
	if fv.VPD > dryVPDThreshold {
		score *= dryPenalty
	} else if fv.Humidity > condensationHumidity {
		score *= moldPenalty
	}

	return math.Max(0, math.Min(1, score)), nil
}

// ScoreDiscrete returns the classifier verdict and the calibrated
// probability that the shipment is Safe. The probability follows a
// logistic curve centered on the spoiled threshold, so a score right at
// the boundary reads as an even 0.5.
func (m *Q10Model) ScoreDiscrete(fv risk.FeatureVector) (types.SpoilageLabel, float64, error) {
	score, err := m.ScoreContinuous(fv)
	if err != nil {
		return "", 0, err
	}

	cal := m.artifact.Calibration
	label := types.LabelSafe
	if score >= cal.SpoiledThreshold {
		label = types.LabelSpoiled
	}
	safeProb := 1 / (1 + math.Exp(-cal.LogisticSteepness*(cal.SpoiledThreshold-score)))
	return label, safeProb, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
