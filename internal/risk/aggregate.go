package risk

import (
	"coldtrace/internal/types"
)

// Summarize folds per-waypoint records into route-level statistics: the
// temperature envelope, the single highest-risk waypoint, and the danger
// zones the cargo crosses. An empty input returns a zero-value summary.
func Summarize(records []types.WaypointRisk) types.RouteSummary {
	if len(records) == 0 {
		return types.RouteSummary{}
	}

	tempMin := records[0].TemperatureC
	tempMax := records[0].TemperatureC
	highest := 0
	var dangerCount int
	var dangerHours float64

	for i, rec := range records {
		if rec.TemperatureC < tempMin {
			tempMin = rec.TemperatureC
		}
		if rec.TemperatureC > tempMax {
			tempMax = rec.TemperatureC
		}
		// Strict comparison keeps the first occurrence on ties.
		if rec.InstantRisk > records[highest].InstantRisk {
			highest = i
		}
		if rec.DangerZone() {
			dangerCount++
			dangerHours += rec.ExposureHours
		}
	}

	variance := tempMax - tempMin

	return types.RouteSummary{
		WaypointCount: len(records),

		TempMinC:     tempMin,
		TempMaxC:     tempMax,
		TempVariance: variance,
		Profile:      classifyProfile(variance),

		HighestRiskNum:   records[highest].WaypointNum,
		HighestRiskValue: records[highest].InstantRisk,
		HighestRiskTempC: records[highest].TemperatureC,

		DangerZoneCount: dangerCount,
		DangerZoneHours: dangerHours,
	}
}

// classifyProfile bands the route's temperature spread. Thresholds are fixed
// design constants, not learned.
func classifyProfile(variance float64) types.TemperatureProfile {
	switch {
	case variance > types.VarianceHighThreshold:
		return types.ProfileHighVariance
	case variance > types.VarianceModerateThreshold:
		return types.ProfileModerateVariance
	default:
		return types.ProfileStable
	}
}
