// End-to-end tests for the ColdTrace analysis pipeline:
// queue dispatch, worker consumption, route planning, telemetry, spoilage
// prediction, narrative, and session caching, all against stubbed provider
// endpoints. See helpers.go for the environment wiring.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"coldtrace/internal/config"
	"coldtrace/internal/queue"
	"coldtrace/internal/types"
	"coldtrace/internal/worker"
)

// env is the shared test environment initialized in TestMain.
var env *TestEnv

func TestMain(m *testing.M) {
	var err error
	env, err = NewTestEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build e2e test environment: %v\n", err)
		os.Exit(1)
	}

	// Close resources explicitly after m.Run completes; os.Exit does not
	// run deferred functions.
	code := m.Run()
	env.Close()
	os.Exit(code)
}

// TestTripAnalysisPipeline walks a mango shipment through the whole trip
// pipeline: Google geocoding and routing, environmental sampling per
// waypoint, model prediction, route aggregation, narrative generation,
// localization, and session caching.
func TestTripAnalysisPipeline(t *testing.T) {
	before := env.Stub.Counts()

	result, err := env.Service.AnalyzeTrip(context.Background(), types.TripRequest{
		Origin:      "Nashik, Maharashtra",
		Destination: "Mumbai, Maharashtra",
		CropType:    "Mango (Alphonso)",
		Language:    "hi",
	})
	if err != nil {
		t.Fatalf("AnalyzeTrip returned error: %v", err)
	}
	if result.RequestID == "" {
		t.Error("expected a request ID")
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings with all collaborators healthy, got %v", result.Warnings)
	}

	// Route planning resolves both endpoints and computes one route.
	after := env.Stub.Counts()
	if got := after.Geocode - before.Geocode; got != 2 {
		t.Errorf("expected 2 geocode calls, got %d", got)
	}
	if got := after.Routes - before.Routes; got != 1 {
		t.Errorf("expected 1 routes call, got %d", got)
	}

	route := result.Route
	if route.Provider != types.ProviderGoogle {
		t.Errorf("expected provider %q, got %q", types.ProviderGoogle, route.Provider)
	}
	if route.DistanceKm != 166 {
		t.Errorf("expected distance 166 km, got %v", route.DistanceKm)
	}
	if route.DurationHrs != 4 {
		t.Errorf("expected duration 4 hours, got %v", route.DurationHrs)
	}
	if route.Origin.DisplayName != "Nashik, Maharashtra, India" {
		t.Errorf("unexpected origin display name %q", route.Origin.DisplayName)
	}

	// Five route steps become five waypoints pinned to the endpoints, each
	// sampled once against weather and air quality.
	if len(result.Points) != 5 {
		t.Fatalf("expected 5 telemetry points, got %d", len(result.Points))
	}
	if got := after.Weather - before.Weather; got != 5 {
		t.Errorf("expected 5 weather lookups, got %d", got)
	}
	if got := after.Air - before.Air; got != 5 {
		t.Errorf("expected 5 air quality lookups, got %d", got)
	}
	first := result.Points[0]
	last := result.Points[len(result.Points)-1]
	if first.Lat != 19.9975 || first.Lon != 73.7898 {
		t.Errorf("first point not pinned to origin: (%v, %v)", first.Lat, first.Lon)
	}
	if last.Lat != 19.0760 || last.Lon != 72.8777 {
		t.Errorf("last point not pinned to destination: (%v, %v)", last.Lat, last.Lon)
	}

	var exposure float64
	for i, p := range result.Points {
		if p.AmbientTempC != 32.5 || p.Humidity != 78 {
			t.Errorf("point %d: expected stubbed conditions 32.5C/78%%, got %vC/%v%%",
				i, p.AmbientTempC, p.Humidity)
		}
		if p.Degraded {
			t.Errorf("point %d unexpectedly degraded", i)
		}
		exposure += p.ExposureHours
	}
	if math.Abs(exposure-4) > 0.05 {
		t.Errorf("expected exposure hours to sum to the 4 hour transit, got %v", exposure)
	}
	if last.ExposureHours != 0 {
		t.Errorf("expected zero exposure on the final waypoint, got %v", last.ExposureHours)
	}

	pred := result.Prediction
	if pred.ModelError != "" {
		t.Fatalf("unexpected model error: %s", pred.ModelError)
	}
	if pred.Status != types.StatusSafe {
		t.Errorf("expected status %q for a 4 hour mango trip, got %q", types.StatusSafe, pred.Status)
	}
	if pred.Risk <= 0 || pred.Risk >= 0.3 {
		t.Errorf("expected risk inside (0, 0.3), got %v", pred.Risk)
	}
	if pred.DaysRemaining <= 5 {
		t.Errorf("expected more than 5 shelf days remaining, got %v", pred.DaysRemaining)
	}
	if pred.VPD < 1.0 || pred.VPD > 1.2 {
		t.Errorf("expected VPD near 1.08 kPa for 32.5C at 78%%, got %v", pred.VPD)
	}
	if pred.Confidence == nil || *pred.Confidence < 0.7 {
		t.Errorf("expected agreed-heads confidence of at least 0.7, got %v", pred.Confidence)
	}
	if pred.ClassifierLabel == nil || *pred.ClassifierLabel != types.LabelSafe {
		t.Errorf("expected a Safe classifier label, got %v", pred.ClassifierLabel)
	}

	if len(result.Waypoints) != len(result.Points) {
		t.Fatalf("expected %d waypoint risks, got %d", len(result.Points), len(result.Waypoints))
	}
	prevCumulative := 0.0
	for i, wp := range result.Waypoints {
		if wp.WaypointNum != i+1 {
			t.Errorf("waypoint %d: expected number %d, got %d", i, i+1, wp.WaypointNum)
		}
		if wp.CumulativeRisk < prevCumulative {
			t.Errorf("waypoint %d: cumulative risk decreased from %v to %v",
				i, prevCumulative, wp.CumulativeRisk)
		}
		prevCumulative = wp.CumulativeRisk
		if wp.Status != types.StatusSafe {
			t.Errorf("waypoint %d: expected Safe status, got %q", i, wp.Status)
		}
		if wp.Degraded {
			t.Errorf("waypoint %d unexpectedly degraded", i)
		}
	}

	sum := result.Summary
	if sum.WaypointCount != 5 {
		t.Errorf("expected waypoint count 5, got %d", sum.WaypointCount)
	}
	if sum.TempMinC != 32.5 || sum.TempMaxC != 32.5 {
		t.Errorf("expected uniform 32.5C readings, got min %v max %v", sum.TempMinC, sum.TempMaxC)
	}
	if sum.Profile != types.ProfileStable {
		t.Errorf("expected %q profile, got %q", types.ProfileStable, sum.Profile)
	}
	if sum.DangerZoneCount != 0 {
		t.Errorf("expected no danger zones, got %d", sum.DangerZoneCount)
	}

	nc := result.Narrative
	if nc.Crop != "Mango (Alphonso)" {
		t.Errorf("expected narrative crop %q, got %q", "Mango (Alphonso)", nc.Crop)
	}
	if nc.Origin != "Nashik, Maharashtra, India" || nc.Destination != "Mumbai, Maharashtra, India" {
		t.Errorf("unexpected narrative endpoints %q -> %q", nc.Origin, nc.Destination)
	}
	if nc.DistanceKm != 166 || nc.DurationHours != 4 {
		t.Errorf("unexpected narrative route figures: %v km, %v hours", nc.DistanceKm, nc.DurationHours)
	}
	if nc.WaypointsSampled != 5 {
		t.Errorf("expected 5 sampled waypoints in the narrative, got %d", nc.WaypointsSampled)
	}
	if len(nc.StorageRules) == 0 {
		t.Error("expected storage rules retrieved for a catalog crop")
	}
	if nc.RouteSummary == "" {
		t.Error("expected a route summary line")
	}
	if result.Insight == "" {
		t.Error("expected a generated insight")
	}

	if result.Language != "hi" {
		t.Errorf("expected language %q on the record, got %q", "hi", result.Language)
	}
	if result.LocalizedStatus == "" {
		t.Error("expected a localized status for language hi")
	}

	if result.SessionID == "" {
		t.Fatal("expected a session ID on the record")
	}
	cached, err := env.Sessions.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if cached == nil || cached.RequestID != result.RequestID {
		t.Error("session returned a different analysis record")
	}
}

// TestConditionsAnalysisPipeline scores pre-measured conditions hot enough
// to spoil coriander outright and verifies the direct path skips the
// providers entirely.
func TestConditionsAnalysisPipeline(t *testing.T) {
	before := env.Stub.Counts()

	result, err := env.Service.AnalyzeConditions(context.Background(), types.ConditionsRequest{
		TemperatureC: 38,
		Humidity:     55,
		TransitHours: 48,
		CropType:     "Coriander",
	})
	if err != nil {
		t.Fatalf("AnalyzeConditions returned error: %v", err)
	}

	if after := env.Stub.Counts(); after != before {
		t.Errorf("expected no provider traffic, got %+v -> %+v", before, after)
	}

	pred := result.Prediction
	if pred.ModelError != "" {
		t.Fatalf("unexpected model error: %s", pred.ModelError)
	}
	if pred.Status != types.StatusCritical {
		t.Errorf("expected status %q for 48 hours at 38C, got %q", types.StatusCritical, pred.Status)
	}
	if pred.Risk <= 0.7 {
		t.Errorf("expected risk above the critical threshold, got %v", pred.Risk)
	}
	if pred.DaysRemaining != 0 {
		t.Errorf("expected zero shelf days at saturated risk, got %v", pred.DaysRemaining)
	}
	if pred.ClassifierLabel == nil || *pred.ClassifierLabel != types.LabelSpoiled {
		t.Errorf("expected a Spoiled classifier label, got %v", pred.ClassifierLabel)
	}

	// The record carries the trip contract with the route sections empty.
	if result.Route.Provider != "" || len(result.Points) != 0 {
		t.Errorf("expected empty route sections, got provider %q with %d points",
			result.Route.Provider, len(result.Points))
	}
	if result.SessionID != "" {
		t.Errorf("expected no session for a conditions analysis, got %q", result.SessionID)
	}

	nc := result.Narrative
	if nc.Crop != "Coriander" {
		t.Errorf("expected narrative crop %q, got %q", "Coriander", nc.Crop)
	}
	if nc.AvgTempC != 38 || nc.AvgHumidity != 55 || nc.DurationHours != 48 {
		t.Errorf("unexpected narrative figures: %vC, %v%%, %v hours",
			nc.AvgTempC, nc.AvgHumidity, nc.DurationHours)
	}
	if len(nc.StorageRules) == 0 {
		t.Error("expected storage rules retrieved for a catalog crop")
	}
	if result.Insight == "" {
		t.Error("expected a generated insight")
	}
}

// TestQueueDispatchDrivesWorker publishes a batch through the dispatcher,
// replays the captured messages as a Lambda SQS event, and runs them through
// the worker against the real analysis service.
func TestQueueDispatchDrivesWorker(t *testing.T) {
	const queueARN = "arn:aws:sqs:ap-south-1:123456789012:coldtrace-analysis"
	awsCfg := config.AWSConfig{
		AnalysisQueueURL: "https://sqs.ap-south-1.amazonaws.com/123456789012/coldtrace-analysis",
	}

	client := &fakeSQS{}
	dispatcher := queue.NewDispatcher(client, awsCfg, env.Logger)

	jobs := []types.AnalysisJob{
		{
			Action: types.ActionAnalyzeTrip,
			Trip: &types.TripRequest{
				Origin:      "Nashik, Maharashtra",
				Destination: "Mumbai, Maharashtra",
				CropType:    "Mango (Alphonso)",
			},
		},
		{
			Action: types.ActionAnalyzeConditions,
			Conditions: &types.ConditionsRequest{
				TemperatureC: 38,
				Humidity:     55,
				TransitHours: 48,
				CropType:     "Coriander",
			},
		},
	}

	batchID, err := dispatcher.DispatchBatch(context.Background(), jobs, "scheduled_batch")
	if err != nil {
		t.Fatalf("DispatchBatch returned error: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected a batch ID")
	}

	event := client.capturedEvent(queueARN)
	if len(event.Records) != 2 {
		t.Fatalf("expected 2 queued records, got %d", len(event.Records))
	}
	for i, record := range event.Records {
		var job types.AnalysisJob
		if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
			t.Fatalf("record %d: failed to unmarshal job: %v", i, err)
		}
		if job.BatchID != batchID {
			t.Errorf("record %d: expected batch ID %q, got %q", i, batchID, job.BatchID)
		}
		if job.JobID == "" || job.TraceID == "" {
			t.Errorf("record %d: expected minted job and trace IDs, got %q / %q",
				i, job.JobID, job.TraceID)
		}
	}

	lagBefore := env.Metrics.QueueLagCount("coldtrace-analysis")
	tripBefore := env.Metrics.AnalysisCount(types.ActionAnalyzeTrip)
	condBefore := env.Metrics.AnalysisCount(types.ActionAnalyzeConditions)

	handler := worker.NewHandler(env.Service, nil, nil, env.Metrics, worker.DefaultRetryPolicy, nil)
	response, err := handler.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(response.BatchItemFailures) != 0 {
		t.Fatalf("expected no batch item failures, got %v", response.BatchItemFailures)
	}

	if got := env.Metrics.QueueLagCount("coldtrace-analysis") - lagBefore; got != 2 {
		t.Errorf("expected 2 queue lag samples, got %d", got)
	}
	if got := env.Metrics.AnalysisCount(types.ActionAnalyzeTrip) - tripBefore; got != 1 {
		t.Errorf("expected 1 completed trip analysis, got %d", got)
	}
	if got := env.Metrics.AnalysisCount(types.ActionAnalyzeConditions) - condBefore; got != 1 {
		t.Errorf("expected 1 completed conditions analysis, got %d", got)
	}
}

// TestSessionContinuityAcrossAnalyses reuses the session from one analysis
// for a second one and verifies the store holds the latest record under the
// same ID.
func TestSessionContinuityAcrossAnalyses(t *testing.T) {
	ctx := context.Background()

	first, err := env.Service.AnalyzeTrip(ctx, types.TripRequest{
		Origin:      "Nashik, Maharashtra",
		Destination: "Mumbai, Maharashtra",
		CropType:    "Tomato (Desi)",
	})
	if err != nil {
		t.Fatalf("first AnalyzeTrip returned error: %v", err)
	}
	if first.SessionID == "" {
		t.Fatal("expected a session ID on the first analysis")
	}

	second, err := env.Service.AnalyzeTrip(ctx, types.TripRequest{
		Origin:      "Mumbai, Maharashtra",
		Destination: "Nashik, Maharashtra",
		CropType:    "Strawberry",
		SessionID:   first.SessionID,
	})
	if err != nil {
		t.Fatalf("second AnalyzeTrip returned error: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("expected the session to continue as %q, got %q", first.SessionID, second.SessionID)
	}

	cached, err := env.Sessions.Get(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if cached == nil || cached.RequestID != second.RequestID {
		t.Error("expected the session to hold the latest analysis")
	}
}

// TestGeocodeExhaustionFailsTrip sends an address no provider can resolve
// and verifies the failure crosses the whole fallback chain before surfacing
// as a terminal geocoding error.
func TestGeocodeExhaustionFailsTrip(t *testing.T) {
	before := env.Stub.Counts()
	failsBefore := env.Metrics.FailureCount(types.ActionAnalyzeTrip)

	_, err := env.Service.AnalyzeTrip(context.Background(), types.TripRequest{
		Origin:      "Shangri-La",
		Destination: "Mumbai, Maharashtra",
		CropType:    "Mango (Alphonso)",
	})
	if err == nil {
		t.Fatal("expected an error for an unresolvable origin")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected an AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamGeocoding {
		t.Errorf("expected error code %q, got %q", types.ErrCodeUpstreamGeocoding, appErr.Code)
	}

	// Google rejected the address and the Nominatim fallback was attempted
	// before the chain gave up; routing never started.
	after := env.Stub.Counts()
	if got := after.Geocode - before.Geocode; got != 1 {
		t.Errorf("expected 1 google geocode attempt, got %d", got)
	}
	if got := after.Nominatim - before.Nominatim; got != 1 {
		t.Errorf("expected 1 nominatim fallback attempt, got %d", got)
	}
	if after.Routes != before.Routes {
		t.Error("expected no route call after geocoding failed")
	}

	if got := env.Metrics.FailureCount(types.ActionAnalyzeTrip) - failsBefore; got != 1 {
		t.Errorf("expected 1 recorded trip failure, got %d", got)
	}
}

// TestNoUnexpectedProviderTraffic runs after the suite's other tests and
// verifies every HTTP request made during the run hit a stubbed endpoint.
func TestNoUnexpectedProviderTraffic(t *testing.T) {
	if urls := env.Stub.Unexpected(); len(urls) != 0 {
		t.Errorf("requests escaped the stubbed endpoints: %v", urls)
	}
}
