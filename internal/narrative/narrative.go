// Package narrative turns a scored trip into the report an agronomist (or a
// downstream LLM consumer) would read: a structured context, a rendered
// prompt, and a rule-based insight with localized status labels.
package narrative

import (
	"fmt"
	"math"
	"strings"

	"coldtrace/internal/knowledge"
	"coldtrace/internal/types"
)

// GeneralCropName stands in when a trip request names no crop.
const GeneralCropName = "General Perishables"

// DefaultUserQuery seeds the prompt when the caller asks nothing specific.
const DefaultUserQuery = "Provide a comprehensive analysis of this trip."

// ContextInput carries everything BuildContext needs. Averages arrive
// pre-computed so the caller and the context always agree on them.
type ContextInput struct {
	Trip        types.Trip
	Summary     types.RouteSummary
	AvgTempC    float64
	AvgHumidity float64
	Rules       []knowledge.ScoredDoc
}

// BuildContext assembles the structured trip report handed to insight
// generators.
func BuildContext(in ContextInput) types.NarrativeContext {
	crop := in.Trip.CropType
	if crop == "" {
		crop = GeneralCropName
	}
	origin := in.Trip.Route.Origin.DisplayName
	destination := in.Trip.Route.Destination.DisplayName

	nc := types.NarrativeContext{
		Crop:             crop,
		Origin:           origin,
		Destination:      destination,
		DistanceKm:       in.Trip.Route.DistanceKm,
		DurationHours:    in.Trip.Route.DurationHrs,
		AvgTempC:         round2(in.AvgTempC),
		AvgHumidity:      round2(in.AvgHumidity),
		WaypointsSampled: len(in.Trip.Points),
		RouteSummary:     routeSummaryText(crop, origin, destination, in.Trip.Route.DistanceKm, in.Summary),
	}
	for _, doc := range in.Rules {
		nc.StorageRules = append(nc.StorageRules, fmt.Sprintf("%s (Confidence: %.2f)", doc.Document.Text, doc.Score))
	}
	return nc
}

// routeSummaryText renders the one-line trip description, pointing at the
// most dangerous stretch of the route when the summary identifies one.
func routeSummaryText(crop, origin, destination string, distanceKm float64, summary types.RouteSummary) string {
	text := fmt.Sprintf("Transporting %s from %s to %s (%g km)", crop, origin, destination, distanceKm)
	if summary.WaypointCount == 0 || summary.HighestRiskNum == 0 {
		return text
	}
	text += fmt.Sprintf(". Highest spoilage risk at waypoint %d of %d (%.1f°C, %.0f%% risk)",
		summary.HighestRiskNum, summary.WaypointCount, summary.HighestRiskTempC, summary.HighestRiskValue*100)
	if summary.DangerZoneCount > 0 {
		text += fmt.Sprintf("; %d of %d waypoints sit in the danger zone for %.1f exposure hours",
			summary.DangerZoneCount, summary.WaypointCount, summary.DangerZoneHours)
	}
	return text
}

// RenderPrompt builds the full agronomist prompt for an LLM consumer. The
// storage rules section is the source of truth; the model is told to check
// the trip report against it rather than invent thresholds.
func RenderPrompt(nc types.NarrativeContext, pred types.SpoilagePrediction, userQuery string) string {
	if userQuery == "" {
		userQuery = DefaultUserQuery
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI chief agronomist specializing in %s transport.\n\n", nc.Crop)

	fmt.Fprintf(&b, "SOURCE OF TRUTH (internal storage rules for %s):\n", nc.Crop)
	if len(nc.StorageRules) == 0 {
		b.WriteString("No internal knowledge found.\n")
	} else {
		for _, rule := range nc.StorageRules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}

	b.WriteString("\nCURRENT TRIP REPORT:\n")
	fmt.Fprintf(&b, "- Crop being transported: %s\n", nc.Crop)
	fmt.Fprintf(&b, "- Route: %s\n", nc.RouteSummary)
	fmt.Fprintf(&b, "- Avg temperature: %g°C\n", nc.AvgTempC)
	fmt.Fprintf(&b, "- Avg humidity: %g%%\n", nc.AvgHumidity)
	fmt.Fprintf(&b, "- Duration: %g hrs\n", nc.DurationHours)
	fmt.Fprintf(&b, "- Predicted spoilage risk: %.1f%% (%s)\n", pred.Risk*100, pred.Status)
	fmt.Fprintf(&b, "- Estimated shelf life remaining: %.1f days\n", pred.DaysRemaining)

	fmt.Fprintf(&b, "\nUSER QUERY: %s\n", userQuery)

	fmt.Fprintf(&b, "\nINSTRUCTIONS:\n")
	fmt.Fprintf(&b, "1. You are analyzing %s; do not ask which crop is being shipped.\n", nc.Crop)
	fmt.Fprintf(&b, "2. Check the internal rules above: does the average temperature violate the optimal band for this crop?\n")
	fmt.Fprintf(&b, "3. If it does, flag the violation immediately and cite the rule.\n")
	fmt.Fprintf(&b, "4. Explain why the model predicted %s for these conditions.\n", pred.Status)
	fmt.Fprintf(&b, "5. Provide 2-3 actionable recommendations specific to %s.\n", nc.Crop)
	fmt.Fprintf(&b, "6. Keep the response concise but informative (200-300 words).\n")
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
