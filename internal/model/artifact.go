package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"coldtrace/internal/types"
)

// CropParams are the fitted decay parameters for one crop or category.
type CropParams struct {
	// Q10 is the decay-rate multiplier per 10°C above the optimum.
	Q10 float64 `json:"q10"`
	// BaseShelfLifeDays is the shelf life at optimal storage conditions.
	BaseShelfLifeDays float64 `json:"base_shelf_life_days"`
	// OptTempC is the bottom of the crop's optimal storage band. Decay
	// accelerates above it; chilling injury applies below it.
	OptTempC float64 `json:"opt_temp_c"`
}

// Calibration holds the classifier head calibration.
type Calibration struct {
	// SpoiledThreshold is the risk at or above which the discrete head
	// calls Spoiled.
	SpoiledThreshold float64 `json:"spoiled_threshold"`
	// LogisticSteepness shapes the safe-probability curve around the
	// threshold.
	LogisticSteepness float64 `json:"logistic_steepness"`
}

// Artifact is the serialized parameter set of the embedded spoilage model.
// Crop keys resolve case-insensitively; unknown crops fall back to their
// category entry and finally to Default.
type Artifact struct {
	Version     int                   `json:"version"`
	Crops       map[string]CropParams `json:"crops"`
	Categories  map[string]CropParams `json:"categories"`
	Default     CropParams            `json:"default"`
	Calibration Calibration           `json:"calibration"`
}

var _ types.Validator = (*Artifact)(nil)

// Validate checks that every parameter set can be scored safely.
func (a *Artifact) Validate() error {
	if a.Version < 1 {
		return types.NewAppError(types.ErrCodeModelArtifact,
			fmt.Sprintf("unsupported artifact version %d", a.Version), nil)
	}
	if err := a.Default.validate("default"); err != nil {
		return err
	}
	for name, p := range a.Crops {
		if err := p.validate("crop " + name); err != nil {
			return err
		}
	}
	for name, p := range a.Categories {
		if err := p.validate("category " + name); err != nil {
			return err
		}
	}
	c := a.Calibration
	if c.SpoiledThreshold <= 0 || c.SpoiledThreshold >= 1 {
		return types.NewAppError(types.ErrCodeModelArtifact,
			fmt.Sprintf("spoiled threshold %v outside (0,1)", c.SpoiledThreshold), nil)
	}
	if c.LogisticSteepness <= 0 {
		return types.NewAppError(types.ErrCodeModelArtifact,
			fmt.Sprintf("logistic steepness %v must be positive", c.LogisticSteepness), nil)
	}
	return nil
}

func (p CropParams) validate(scope string) error {
	if p.Q10 <= 1 {
		return types.NewAppError(types.ErrCodeModelArtifact,
			fmt.Sprintf("%s: q10 %v must exceed 1", scope, p.Q10), nil)
	}
	if p.BaseShelfLifeDays <= 0 {
		return types.NewAppError(types.ErrCodeModelArtifact,
			fmt.Sprintf("%s: base shelf life %v must be positive", scope, p.BaseShelfLifeDays), nil)
	}
	return nil
}

// Parse decodes and validates an artifact from raw JSON.
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, types.NewAppError(types.ErrCodeModelArtifact, "failed to decode model artifact", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// normalizeCrop canonicalizes a crop identifier for lookup.
func normalizeCrop(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
