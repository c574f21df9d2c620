package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"coldtrace/internal/crops"
	"coldtrace/internal/types"
)

// Generator produces the final written insight for a scored trip.
// Implementations backed by remote models should honor ctx.
type Generator interface {
	Insight(ctx context.Context, nc types.NarrativeContext, pred types.SpoilagePrediction) (string, error)
}

// RuleBasedGenerator writes the insight locally from the golden-rules
// catalog: band violations, a status explanation, and 2-3 recommendations.
// It never fails, so analyses stay available when no LLM is wired in.
type RuleBasedGenerator struct {
	catalog *crops.Catalog
	logger  *slog.Logger
}

func NewRuleBasedGenerator(catalog *crops.Catalog, logger *slog.Logger) *RuleBasedGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleBasedGenerator{catalog: catalog, logger: logger}
}

func (g *RuleBasedGenerator) Insight(_ context.Context, nc types.NarrativeContext, pred types.SpoilagePrediction) (string, error) {
	var b strings.Builder

	// Conditions-only analyses carry no route summary line.
	if nc.RouteSummary != "" {
		fmt.Fprintf(&b, "%s.\n\n", strings.TrimSuffix(nc.RouteSummary, "."))
	}
	if pred.ModelError != "" {
		fmt.Fprintf(&b, "Spoilage scoring was unavailable (%s); the assessment below relies on the golden rules alone.\n\n", pred.ModelError)
	} else {
		fmt.Fprintf(&b, "Predicted spoilage risk for %s is %.1f%% (%s), with an estimated %.1f days of shelf life remaining.\n\n",
			nc.Crop, pred.Risk*100, pred.Status, pred.DaysRemaining)
	}

	rule, known := g.lookupRule(nc.Crop)
	violations := bandViolations(rule, known, nc)
	switch {
	case len(violations) > 0:
		fmt.Fprintf(&b, "Golden rule check: %s.", strings.Join(violations, "; "))
		if rule.Notes != "" {
			fmt.Fprintf(&b, " Rule note: %s", rule.Notes)
		}
		b.WriteString("\n\n")
	case known:
		fmt.Fprintf(&b, "Golden rule check: conditions stay within the optimal %g-%g°C and %g-%g%% bands for %s.\n\n",
			rule.TempMinC, rule.TempMaxC, rule.HumidityMin, rule.HumidityMax, nc.Crop)
	}

	b.WriteString(statusExplanation(nc, pred, violations))
	b.WriteString("\n\nRecommendations:\n")
	for i, rec := range recommendations(rule, known, nc, pred) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (g *RuleBasedGenerator) lookupRule(crop string) (types.Crop, bool) {
	if g.catalog == nil {
		return types.Crop{}, false
	}
	rule, ok := g.catalog.Get(crop)
	if !ok && crop != GeneralCropName {
		g.logger.Debug("no golden rule for crop", "crop", crop)
	}
	return rule, ok
}

// bandViolations compares the trip averages to the crop's optimal bands.
func bandViolations(rule types.Crop, known bool, nc types.NarrativeContext) []string {
	if !known {
		return nil
	}
	var violations []string
	switch {
	case nc.AvgTempC > rule.TempMaxC:
		violations = append(violations, fmt.Sprintf("average transit temperature %.1f°C sits above the optimal %g-%g°C band",
			nc.AvgTempC, rule.TempMinC, rule.TempMaxC))
	case nc.AvgTempC < rule.TempMinC:
		violations = append(violations, fmt.Sprintf("average transit temperature %.1f°C sits below the optimal %g-%g°C band and risks chilling injury",
			nc.AvgTempC, rule.TempMinC, rule.TempMaxC))
	}
	switch {
	case nc.AvgHumidity > rule.HumidityMax:
		violations = append(violations, fmt.Sprintf("average humidity %.0f%% exceeds the optimal %g-%g%% range",
			nc.AvgHumidity, rule.HumidityMin, rule.HumidityMax))
	case nc.AvgHumidity < rule.HumidityMin:
		violations = append(violations, fmt.Sprintf("average humidity %.0f%% falls below the optimal %g-%g%% range",
			nc.AvgHumidity, rule.HumidityMin, rule.HumidityMax))
	}
	return violations
}

func statusExplanation(nc types.NarrativeContext, pred types.SpoilagePrediction, violations []string) string {
	switch pred.Status {
	case types.StatusCritical:
		if len(violations) > 0 {
			return fmt.Sprintf("The %s verdict follows directly from the rule violations above: sustained out-of-band conditions over %g hours accelerate decay beyond recovery.",
				pred.Status, nc.DurationHours)
		}
		return fmt.Sprintf("The %s verdict reflects cumulative heat exposure along the route even though the trip averages look tolerable.", pred.Status)
	case types.StatusWarning:
		return fmt.Sprintf("The %s verdict means the load is degrading faster than ideal but remains sellable if handled promptly.", pred.Status)
	case types.StatusSafe:
		return fmt.Sprintf("The %s verdict indicates transit conditions close to the crop's optimum for the full %g hours.", pred.Status, nc.DurationHours)
	default:
		return "No model verdict is available for this trip."
	}
}

// recommendations returns 2-3 actions ordered by urgency: fix the violated
// band first, then act on the verdict.
func recommendations(rule types.Crop, known bool, nc types.NarrativeContext, pred types.SpoilagePrediction) []string {
	var recs []string
	if known && nc.AvgTempC > rule.TempMaxC {
		recs = append(recs, fmt.Sprintf("Pre-cool the load and hold refrigerated transport at %g-%g°C.", rule.TempMinC, rule.TempMaxC))
	}
	if known && nc.AvgTempC < rule.TempMinC {
		recs = append(recs, fmt.Sprintf("Raise the set point toward %g°C; chilling-sensitive produce degrades below its band.", rule.TempMinC))
	}
	if known && nc.AvgHumidity > rule.HumidityMax {
		recs = append(recs, "Improve airflow to shed excess moisture and mold pressure.")
	}
	if known && nc.AvgHumidity < rule.HumidityMin {
		recs = append(recs, fmt.Sprintf("Add humidity control; target %g-%g%% to limit moisture loss.", rule.HumidityMin, rule.HumidityMax))
	}

	switch pred.Status {
	case types.StatusCritical:
		recs = append(recs, "Divert to the nearest cold storage or prioritize immediate sale on arrival.")
	case types.StatusWarning:
		recs = append(recs, "Minimize dwell time at stops; every idle hour in ambient heat compounds the risk.")
	case types.StatusSafe:
		recs = append(recs, "Maintain current handling; conditions are inside tolerance.")
	default:
		recs = append(recs, "Verify conditions manually before dispatch; automated scoring was unavailable.")
	}

	if len(recs) > 3 {
		recs = recs[:3]
	}
	if len(recs) < 2 {
		recs = append(recs, "Recheck conditions at the next waypoint and rerun the analysis.")
	}
	return recs
}

var _ Generator = (*RuleBasedGenerator)(nil)
