// Package risk implements the spoilage risk engine for the ColdTrace
// platform: feature derivation, ensemble reconciliation of regressor and
// classifier model heads, per-waypoint route evaluation, and route-level
// aggregation.
//
// The engine is pure computation over already-fetched telemetry. It performs
// no I/O and holds no locks; every failure degrades into a well-formed
// record instead of propagating out of the layer.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"coldtrace/internal/config"
	"coldtrace/internal/types"
)

// Policy holds the reconciliation constants for the ensemble. The zero value
// is not useful; start from DefaultPolicy or PolicyFromConfig.
type Policy struct {
	// WarningThreshold and CriticalThreshold band the blended risk score
	// into a status. Banding is strict: risk must exceed the threshold.
	WarningThreshold  float64
	CriticalThreshold float64

	// SpoiledPullTarget blends a low regressor score up toward a Spoiled
	// classifier verdict; SafePullTarget blends a high score down toward a
	// Safe verdict. A Safe verdict counts as a high-score disagreement only
	// above the mirror of SpoiledPullTarget around the midpoint.
	SpoiledPullTarget float64
	SafePullTarget    float64

	// RegressorSafeCall is the risk below which the regressor's own verdict
	// counts as Safe when checking head agreement.
	RegressorSafeCall float64

	// Confidence bands. Agreement scales the classifier's probability for
	// the agreed verdict into [base, base+span]; disagreement grows with
	// the score's distance from the maximum-uncertainty midpoint of 0.5 and
	// never exceeds the cap.
	AgreeConfidenceBase    float64
	AgreeConfidenceSpan    float64
	DisagreeConfidenceBase float64
	DisagreeConfidenceSpan float64
	DisagreeConfidenceCap  float64

	// ForceCriticalOnSpoiled escalates status to Critical whenever the
	// classifier says Spoiled, regardless of the blended risk score.
	ForceCriticalOnSpoiled bool

	// BaseShelfLifeDays anchors the linear days-remaining estimate at zero
	// risk. Deliberately not crop-specific.
	BaseShelfLifeDays float64
}

// DefaultPolicy returns the documented reconciliation constants.
func DefaultPolicy() Policy {
	return Policy{
		WarningThreshold:  0.3,
		CriticalThreshold: 0.7,

		SpoiledPullTarget: 0.4,
		SafePullTarget:    0.5,
		RegressorSafeCall: 0.3,

		AgreeConfidenceBase:    0.7,
		AgreeConfidenceSpan:    0.3,
		DisagreeConfidenceBase: 0.4,
		DisagreeConfidenceSpan: 0.1,
		DisagreeConfidenceCap:  0.49,

		ForceCriticalOnSpoiled: true,
		BaseShelfLifeDays:      10,
	}
}

// PolicyFromConfig builds a Policy from the runtime risk configuration.
// Confidence bands are not operator-tunable and stay at their defaults.
func PolicyFromConfig(rc config.RiskConfig) Policy {
	p := DefaultPolicy()
	p.WarningThreshold = rc.WarningThreshold
	p.CriticalThreshold = rc.CriticalThreshold
	p.SpoiledPullTarget = rc.SpoiledPullTarget
	p.SafePullTarget = rc.SafePullTarget
	p.RegressorSafeCall = rc.RegressorSafeCall
	p.ForceCriticalOnSpoiled = rc.ForceCriticalOnSpoiled
	p.BaseShelfLifeDays = rc.BaseShelfLifeDays
	return p
}

// safeDisagreeFloor is the risk above which a Safe classifier verdict counts
// as disagreement, mirrored from the Spoiled trigger around the midpoint.
func (p Policy) safeDisagreeFloor() float64 {
	return 1 - p.SpoiledPullTarget
}

// Reconciler merges the regressor and optional classifier heads of a
// spoilage model into a single prediction.
type Reconciler struct {
	model  Model
	policy Policy
	logger *slog.Logger
}

// NewReconciler builds a reconciler around a model. A nil model is allowed
// and yields degraded model-unavailable predictions rather than errors.
func NewReconciler(model Model, policy Policy, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		model:  model,
		policy: policy,
		logger: logger,
	}
}

// Predict reconciles the model heads for one feature vector:
//  1. Score the continuous head and clamp the raw output to [0, 1].
//  2. Score the classifier head when the model carries one.
//  3. Blend away head disagreement: a Spoiled verdict pulls a low score up
//     toward SpoiledPullTarget, a Safe verdict pulls a high score down
//     toward SafePullTarget.
//  4. Derive confidence from whether the heads agree on the blended score.
//  5. Band the blended score into a status.
//  6. Estimate shelf days remaining.
//
// Predict never returns an error: a missing or failing regressor yields a
// well-formed zero-risk record with StatusUnknown and ModelError set, so
// callers always receive a usable record. Callers must check ModelError
// before trusting the risk fields.
func (r *Reconciler) Predict(fv FeatureVector) types.SpoilagePrediction {
	pred := types.SpoilagePrediction{VPD: fv.VPD}

	if r.model == nil {
		pred.Status = types.StatusUnknown
		pred.ModelError = "model unavailable"
		return pred
	}

	raw, err := r.model.ScoreContinuous(fv)
	if err != nil {
		r.logger.Warn("regressor scoring failed",
			"crop", fv.CropType,
			"error", err)
		pred.Status = types.StatusUnknown
		pred.ModelError = fmt.Sprintf("model scoring failed: %v", err)
		return pred
	}
	score := clamp01(raw)

	var (
		label    types.SpoilageLabel
		safeProb float64
		hasLabel bool
	)
	if classifier, ok := r.model.(DiscreteScorer); ok {
		l, p, derr := classifier.ScoreDiscrete(fv)
		if derr != nil {
			// Classifier trouble degrades to the regressor-only path.
			r.logger.Warn("classifier scoring failed",
				"crop", fv.CropType,
				"error", derr)
		} else {
			label, safeProb, hasLabel = l, p, true
		}
	}

	if hasLabel {
		switch {
		case label == types.LabelSpoiled && score < r.policy.SpoiledPullTarget:
			score = (score + r.policy.SpoiledPullTarget) / 2
		case label == types.LabelSafe && score > r.policy.safeDisagreeFloor():
			score = (score + r.policy.SafePullTarget) / 2
		}

		regressorSafe := score < r.policy.RegressorSafeCall
		classifierSafe := label == types.LabelSafe

		var conf float64
		if regressorSafe == classifierSafe {
			prob := safeProb
			if !classifierSafe {
				prob = 1 - safeProb
			}
			conf = r.policy.AgreeConfidenceBase + r.policy.AgreeConfidenceSpan*prob
		} else {
			conf = r.policy.DisagreeConfidenceBase + r.policy.DisagreeConfidenceSpan*math.Abs(score-0.5)
			if conf > r.policy.DisagreeConfidenceCap {
				conf = r.policy.DisagreeConfidenceCap
			}
		}
		pred.Confidence = &conf
		pred.ClassifierLabel = &label
	}

	pred.Risk = score
	pred.Status = r.bandStatus(score, label, hasLabel)
	pred.DaysRemaining = r.policy.BaseShelfLifeDays * (1 - score)
	return pred
}

// bandStatus maps a blended score to a status, honoring the forced-Critical
// rule for Spoiled classifier verdicts.
func (r *Reconciler) bandStatus(score float64, label types.SpoilageLabel, hasLabel bool) types.SpoilageStatus {
	switch {
	case score > r.policy.CriticalThreshold:
		return types.StatusCritical
	case hasLabel && label == types.LabelSpoiled && r.policy.ForceCriticalOnSpoiled:
		return types.StatusCritical
	case score > r.policy.WarningThreshold:
		return types.StatusWarning
	default:
		return types.StatusSafe
	}
}
