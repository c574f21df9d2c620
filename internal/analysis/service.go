// Package analysis orchestrates the full pipeline for one request: route,
// telemetry, spoilage prediction, per-waypoint evaluation, knowledge
// retrieval, narrative, and session caching.
package analysis

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"coldtrace/internal/knowledge"
	"coldtrace/internal/narrative"
	"coldtrace/internal/risk"
	"coldtrace/internal/session"
	"coldtrace/internal/types"
)

// TripPlanner produces the route and telemetry for a shipment. Implemented
// by telemetry.Generator; tests supply fakes.
type TripPlanner interface {
	PlanRoute(ctx context.Context, origin, destination string) (types.RoutePlan, error)
	BuildTrip(ctx context.Context, plan types.RoutePlan, cropType string) (types.Trip, error)
}

// Service runs analyses. All collaborators are wired once at startup and
// shared read-only.
type Service struct {
	planner   TripPlanner
	inference *risk.InferenceContext
	knowledge *knowledge.Base
	insight   narrative.Generator
	sessions  session.Store
	metrics   AnalysisMetrics
	clock     types.Clock
	logger    *slog.Logger
}

// NewService wires the pipeline. knowledge, insight, and sessions may be nil;
// the corresponding steps are skipped with a warning on the analysis record.
func NewService(
	planner TripPlanner,
	inference *risk.InferenceContext,
	kb *knowledge.Base,
	insight narrative.Generator,
	sessions session.Store,
	metrics AnalysisMetrics,
	clock types.Clock,
	logger *slog.Logger,
) *Service {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		planner:   planner,
		inference: inference,
		knowledge: kb,
		insight:   insight,
		sessions:  sessions,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
	}
}

// AnalyzeTrip runs the full route pipeline for one shipment. Route planning
// failures are terminal; everything downstream degrades instead of failing,
// so a valid route always yields a complete record.
func (s *Service) AnalyzeTrip(ctx context.Context, req types.TripRequest) (*types.TripAnalysis, error) {
	start := s.clock.Now()
	if err := req.Validate(); err != nil {
		s.metrics.RecordFailure(ctx, types.ActionAnalyzeTrip)
		return nil, err
	}

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "crop", req.CropType)

	plan, err := s.planner.PlanRoute(ctx, req.Origin, req.Destination)
	if err != nil {
		s.metrics.RecordFailure(ctx, types.ActionAnalyzeTrip)
		logger.ErrorContext(ctx, "route planning failed",
			"origin", req.Origin, "destination", req.Destination, "error", err)
		return nil, err
	}
	trip, err := s.planner.BuildTrip(ctx, plan, req.CropType)
	if err != nil {
		s.metrics.RecordFailure(ctx, types.ActionAnalyzeTrip)
		logger.ErrorContext(ctx, "telemetry generation failed", "error", err)
		return nil, err
	}

	avgTemp, avgHumidity := routeAverages(trip.Points)

	pred := s.inference.Reconciler.Predict(risk.NewFeatureVector(avgTemp, avgHumidity, trip.TotalHours, req.CropType))
	if pred.ModelError != "" {
		s.metrics.RecordModelUnavailable(ctx)
	}

	waypoints := s.inference.Evaluator.EvaluateRoute(ctx, trip.Points, req.CropType, trip.TotalHours)
	summary := risk.Summarize(waypoints)
	if summary.DangerZoneCount > 0 {
		s.metrics.RecordDangerZones(ctx, req.CropType, summary.DangerZoneCount)
	}

	analysis := &types.TripAnalysis{
		RequestID:   requestID,
		Route:       trip.Route,
		Points:      trip.Points,
		Prediction:  pred,
		Waypoints:   waypoints,
		Summary:     summary,
		Warnings:    trip.Warnings,
		GeneratedAt: s.clock.Now(),
	}

	nc := narrative.BuildContext(narrative.ContextInput{
		Trip:        trip,
		Summary:     summary,
		AvgTempC:    avgTemp,
		AvgHumidity: avgHumidity,
		Rules:       s.retrieveRules(ctx, cropOrGeneral(req.CropType)),
	})
	analysis.Narrative = nc

	if s.insight != nil {
		text, err := s.insight.Insight(ctx, nc, pred)
		if err != nil {
			logger.WarnContext(ctx, "insight generation failed", "error", err)
			analysis.Warnings = append(analysis.Warnings, "insight generation unavailable")
		} else {
			analysis.Insight = text
		}
	}

	if lang := req.Language; lang != "" && lang != "en" {
		analysis.Language = lang
		analysis.LocalizedStatus = narrative.LocalizeStatus(pred.Status, lang)
	}

	if s.sessions != nil {
		sessionID, err := s.sessions.Put(ctx, req.SessionID, analysis)
		if err != nil {
			logger.WarnContext(ctx, "session caching failed", "error", err)
			analysis.Warnings = append(analysis.Warnings, "session caching unavailable")
		} else {
			analysis.SessionID = sessionID
		}
	}

	latency := s.clock.Now().Sub(start)
	s.metrics.RecordAnalysis(ctx, types.ActionAnalyzeTrip, pred.Status, req.CropType, latency)
	logger.InfoContext(ctx, "trip analysis completed",
		"status", pred.Status,
		"risk", pred.Risk,
		"waypoints", len(waypoints),
		"danger_zones", summary.DangerZoneCount,
		"latency_ms", latency.Milliseconds(),
	)
	return analysis, nil
}

// AnalyzeConditions scores already-measured conditions directly, skipping
// route and telemetry generation. The record carries the same contract as a
// trip analysis with the route sections empty.
func (s *Service) AnalyzeConditions(ctx context.Context, req types.ConditionsRequest) (*types.TripAnalysis, error) {
	start := s.clock.Now()
	if err := req.Validate(); err != nil {
		s.metrics.RecordFailure(ctx, types.ActionAnalyzeConditions)
		return nil, err
	}

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "crop", req.CropType)

	pred := s.inference.Reconciler.Predict(risk.NewFeatureVector(req.TemperatureC, req.Humidity, req.TransitHours, req.CropType))
	if pred.ModelError != "" {
		s.metrics.RecordModelUnavailable(ctx)
	}

	nc := types.NarrativeContext{
		Crop:          req.CropType,
		DurationHours: req.TransitHours,
		AvgTempC:      req.TemperatureC,
		AvgHumidity:   req.Humidity,
	}
	for _, doc := range s.retrieveRules(ctx, req.CropType) {
		nc.StorageRules = append(nc.StorageRules, doc.Document.Text)
	}

	analysis := &types.TripAnalysis{
		RequestID:   requestID,
		Prediction:  pred,
		Narrative:   nc,
		GeneratedAt: s.clock.Now(),
	}
	if s.insight != nil {
		text, err := s.insight.Insight(ctx, nc, pred)
		if err != nil {
			logger.WarnContext(ctx, "insight generation failed", "error", err)
			analysis.Warnings = append(analysis.Warnings, "insight generation unavailable")
		} else {
			analysis.Insight = text
		}
	}

	latency := s.clock.Now().Sub(start)
	s.metrics.RecordAnalysis(ctx, types.ActionAnalyzeConditions, pred.Status, req.CropType, latency)
	logger.InfoContext(ctx, "conditions analysis completed",
		"status", pred.Status,
		"risk", pred.Risk,
		"latency_ms", latency.Milliseconds(),
	)
	return analysis, nil
}

// Health reports engine readiness for liveness tooling.
func (s *Service) Health() risk.Health {
	return s.inference.Health()
}

// retrieveRules queries the knowledge base the way the original ingest
// phrased it, so token ranking favors the crop's own rule.
func (s *Service) retrieveRules(ctx context.Context, crop string) []knowledge.ScoredDoc {
	if s.knowledge == nil {
		return nil
	}
	return s.knowledge.Query(ctx, "Optimal conditions storage transport "+crop, knowledge.DefaultResults)
}

// routeAverages reduces telemetry to the mean internal temperature and
// humidity the aggregate prediction runs on.
func routeAverages(points []types.TelemetryPoint) (avgTemp, avgHumidity float64) {
	if len(points) == 0 {
		return 0, 0
	}
	temps := make([]float64, len(points))
	hums := make([]float64, len(points))
	for i, p := range points {
		temps[i] = p.InternalTempC
		hums[i] = p.Humidity
	}
	return stat.Mean(temps, nil), stat.Mean(hums, nil)
}

func cropOrGeneral(crop string) string {
	if crop == "" {
		return narrative.GeneralCropName
	}
	return crop
}
