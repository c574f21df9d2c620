package risk

import (
	"context"
	"testing"

	"coldtrace/internal/types"
)

func TestNewInferenceContext_Wiring(t *testing.T) {
	policy := DefaultPolicy()
	policy.BaseShelfLifeDays = 12

	ic := NewInferenceContext(tempDrivenModel{}, policy, 4, nil, nil)

	if ic.Reconciler == nil || ic.Evaluator == nil {
		t.Fatal("expected reconciler and evaluator wired")
	}
	if ic.Evaluator.reconciler != ic.Reconciler {
		t.Error("evaluator must share the context's reconciler")
	}
	if ic.Policy.BaseShelfLifeDays != 12 {
		t.Errorf("expected policy carried through, got %v", ic.Policy.BaseShelfLifeDays)
	}
	if ic.Logger == nil {
		t.Error("expected a defaulted logger")
	}
	if ic.Clock == nil {
		t.Error("expected a defaulted clock")
	}
}

func TestInferenceContext_HealthAvailable(t *testing.T) {
	ic := NewInferenceContext(tempDrivenModel{}, DefaultPolicy(), 0, nil, nil)

	h := ic.Health()

	if !h.ModelAvailable {
		t.Error("expected model reported available")
	}
	if h.Detail != "" {
		t.Errorf("expected empty detail, got %q", h.Detail)
	}
}

func TestInferenceContext_HealthDegraded(t *testing.T) {
	ic := NewInferenceContext(nil, DefaultPolicy(), 0, nil, nil)

	h := ic.Health()

	if h.ModelAvailable {
		t.Error("expected model reported unavailable")
	}
	if h.Detail != "model unavailable" {
		t.Errorf("expected model-unavailable detail, got %q", h.Detail)
	}

	// A degraded context still serves well-formed records.
	pred := ic.Reconciler.Predict(testVector())
	if pred.Status != types.StatusUnknown || pred.ModelError == "" {
		t.Errorf("expected degraded prediction, got %+v", pred)
	}
}

func TestInferenceContext_EndToEnd(t *testing.T) {
	ic := NewInferenceContext(tempDrivenModel{}, DefaultPolicy(), 4, nil, nil)
	points := makePoints([]float64{18, 24, 41, 22}, 2)

	records := ic.Evaluator.EvaluateRoute(context.Background(), points, "Strawberry", 6)
	summary := Summarize(records)

	if summary.WaypointCount != 4 {
		t.Fatalf("expected 4 waypoints summarized, got %d", summary.WaypointCount)
	}
	if summary.HighestRiskNum != 3 {
		t.Errorf("expected the 41°C waypoint as highest risk, got %d", summary.HighestRiskNum)
	}
	if summary.TempVariance != 23 {
		t.Errorf("expected variance 23, got %v", summary.TempVariance)
	}
	if summary.Profile != types.ProfileHighVariance {
		t.Errorf("expected High Variance, got %s", summary.Profile)
	}
}
