package narrative

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"coldtrace/internal/crops"
	"coldtrace/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGenerator(t *testing.T) *RuleBasedGenerator {
	t.Helper()
	cat, err := crops.NewCatalog([]types.Crop{
		{Name: "Tomato", Category: types.CategoryVegetable, TempMinC: 10, TempMaxC: 12, HumidityMin: 85, HumidityMax: 90, Notes: "Chilling injury below 10 C."},
		{Name: "Mango", Category: types.CategoryFruit, TempMinC: 13, TempMaxC: 14, HumidityMin: 85, HumidityMax: 90, Notes: "Ripens fast in heat."},
	})
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return NewRuleBasedGenerator(cat, discardLogger())
}

func insightOrFail(t *testing.T, g *RuleBasedGenerator, nc types.NarrativeContext, pred types.SpoilagePrediction) string {
	t.Helper()
	text, err := g.Insight(context.Background(), nc, pred)
	if err != nil {
		t.Fatalf("Insight: %v", err)
	}
	return text
}

func TestInsight_HotTripWarning(t *testing.T) {
	g := testGenerator(t)
	nc := types.NarrativeContext{
		Crop:          "Mango",
		AvgTempC:      31.46,
		AvgHumidity:   87,
		DurationHours: 3.5,
		RouteSummary:  "Transporting Mango from Nashik to Mumbai (165.5 km)",
	}
	pred := types.SpoilagePrediction{Risk: 0.62, Status: types.StatusWarning, DaysRemaining: 3.8}

	text := insightOrFail(t, g, nc, pred)

	for _, want := range []string{
		"Transporting Mango from Nashik to Mumbai (165.5 km).",
		"Predicted spoilage risk for Mango is 62.0% (Warning), with an estimated 3.8 days of shelf life remaining.",
		"average transit temperature 31.5°C sits above the optimal 13-14°C band",
		"Rule note: Ripens fast in heat.",
		"1. Pre-cool the load and hold refrigerated transport at 13-14°C.",
		"2. Minimize dwell time at stops",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("insight missing %q\n\n%s", want, text)
		}
	}
	if strings.Contains(text, "chilling") {
		t.Errorf("hot trip should not mention chilling:\n%s", text)
	}
}

func TestInsight_ChillingBelowBand(t *testing.T) {
	g := testGenerator(t)
	nc := types.NarrativeContext{Crop: "Tomato", AvgTempC: 4, AvgHumidity: 87, DurationHours: 6}
	pred := types.SpoilagePrediction{Risk: 0.35, Status: types.StatusWarning, DaysRemaining: 6.5}

	text := insightOrFail(t, g, nc, pred)

	if !strings.Contains(text, "sits below the optimal 10-12°C band and risks chilling injury") {
		t.Errorf("insight missing chilling violation:\n%s", text)
	}
	if !strings.Contains(text, "Raise the set point toward 10°C") {
		t.Errorf("insight missing set-point recommendation:\n%s", text)
	}
}

func TestInsight_SafeInBand(t *testing.T) {
	g := testGenerator(t)
	nc := types.NarrativeContext{Crop: "Tomato", AvgTempC: 11, AvgHumidity: 87, DurationHours: 4}
	pred := types.SpoilagePrediction{Risk: 0.05, Status: types.StatusSafe, DaysRemaining: 9.5}

	text := insightOrFail(t, g, nc, pred)

	for _, want := range []string{
		"Golden rule check: conditions stay within the optimal 10-12°C and 85-90% bands for Tomato.",
		"The Safe verdict indicates transit conditions close to the crop's optimum for the full 4 hours.",
		"1. Maintain current handling; conditions are inside tolerance.",
		"2. Recheck conditions at the next waypoint and rerun the analysis.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("insight missing %q\n\n%s", want, text)
		}
	}
	if strings.Contains(text, "3. ") {
		t.Errorf("safe in-band trip should carry exactly two recommendations:\n%s", text)
	}
}

func TestInsight_CapsAtThreeRecommendations(t *testing.T) {
	g := testGenerator(t)
	// Temperature and humidity both out of band plus a Critical verdict
	// would yield four candidate actions.
	nc := types.NarrativeContext{Crop: "Mango", AvgTempC: 35, AvgHumidity: 95, DurationHours: 8}
	pred := types.SpoilagePrediction{Risk: 0.82, Status: types.StatusCritical, DaysRemaining: 1.8}

	text := insightOrFail(t, g, nc, pred)

	if !strings.Contains(text, "3. ") {
		t.Errorf("expected a third recommendation:\n%s", text)
	}
	if strings.Contains(text, "4. ") {
		t.Errorf("recommendations must cap at three:\n%s", text)
	}
	if !strings.Contains(text, "The Critical verdict follows directly from the rule violations above") {
		t.Errorf("insight missing critical explanation:\n%s", text)
	}
}

func TestInsight_UnknownCropSkipsRuleCheck(t *testing.T) {
	g := testGenerator(t)
	nc := types.NarrativeContext{Crop: "Dragonfruit", AvgTempC: 30, AvgHumidity: 60, DurationHours: 5}
	pred := types.SpoilagePrediction{Risk: 0.4, Status: types.StatusWarning, DaysRemaining: 6}

	text := insightOrFail(t, g, nc, pred)

	if strings.Contains(text, "Golden rule check:") {
		t.Errorf("unknown crop must not get a rule check:\n%s", text)
	}
	if !strings.Contains(text, "1. Minimize dwell time at stops") {
		t.Errorf("insight missing verdict recommendation:\n%s", text)
	}
	if !strings.Contains(text, "2. Recheck conditions at the next waypoint") {
		t.Errorf("insight missing fallback recommendation:\n%s", text)
	}
}

func TestInsight_ModelError(t *testing.T) {
	g := testGenerator(t)
	nc := types.NarrativeContext{Crop: "Mango", AvgTempC: 13.5, AvgHumidity: 87, DurationHours: 3}
	pred := types.SpoilagePrediction{Status: types.StatusUnknown, ModelError: "spoilage model unavailable"}

	text := insightOrFail(t, g, nc, pred)

	if !strings.Contains(text, "Spoilage scoring was unavailable (spoilage model unavailable)") {
		t.Errorf("insight missing degradation notice:\n%s", text)
	}
	if strings.Contains(text, "Predicted spoilage risk") {
		t.Errorf("degraded insight must not quote a risk figure:\n%s", text)
	}
	if !strings.Contains(text, "No model verdict is available for this trip.") {
		t.Errorf("insight missing unknown-status explanation:\n%s", text)
	}
	if !strings.Contains(text, "Verify conditions manually before dispatch") {
		t.Errorf("insight missing manual-check recommendation:\n%s", text)
	}
}

func TestInsight_NilCatalog(t *testing.T) {
	g := NewRuleBasedGenerator(nil, nil)
	nc := types.NarrativeContext{Crop: "Mango", AvgTempC: 35, AvgHumidity: 60, DurationHours: 5}
	pred := types.SpoilagePrediction{Risk: 0.5, Status: types.StatusWarning, DaysRemaining: 5}

	text := insightOrFail(t, g, nc, pred)

	if strings.Contains(text, "Golden rule check:") {
		t.Errorf("nil catalog must behave like an unknown crop:\n%s", text)
	}
}
