package risk

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"coldtrace/internal/types"
)

const (
	// DefaultScoreConcurrency bounds the instant-risk scoring fan-out when
	// the caller does not configure a limit.
	DefaultScoreConcurrency = 8

	// MinTransitHours floors elapsed and total transit durations so a
	// zero-duration artifact cannot distort time-sensitive scoring.
	MinTransitHours = 1.0
)

// Evaluator applies the reconciler to every waypoint of a route, producing
// instantaneous and exposure-weighted cumulative risk per waypoint.
type Evaluator struct {
	reconciler  *Reconciler
	concurrency int
	logger      *slog.Logger
}

// NewEvaluator builds a route evaluator. concurrency bounds the instant-score
// fan-out; values below 1 fall back to DefaultScoreConcurrency.
func NewEvaluator(reconciler *Reconciler, concurrency int, logger *slog.Logger) *Evaluator {
	if concurrency < 1 {
		concurrency = DefaultScoreConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		reconciler:  reconciler,
		concurrency: concurrency,
		logger:      logger,
	}
}

// EvaluateRoute scores every waypoint of a route for the given crop:
//  1. Fan out instant-risk scoring across waypoints on a bounded errgroup.
//     Instant scores carry no ordering dependency; each goroutine writes a
//     distinct index of the result slice. A waypoint that cannot be scored
//     becomes a zero-risk degraded record and never aborts the route.
//  2. Accumulate exposure-weighted cumulative risk strictly in route order:
//     cum += instant * exposure/totalTransitHours, capped at 1.0. The final
//     waypoint carries zero exposure by convention and adds nothing.
//
// totalTransitHours is floored at MinTransitHours, as is each waypoint's
// cumulative elapsed time when assembling its feature vector. An empty
// waypoint list yields an empty, non-nil slice. Cancelling ctx stops scoring
// early; unscored waypoints come back as degraded placeholders.
func (e *Evaluator) EvaluateRoute(ctx context.Context, points []types.TelemetryPoint, cropType string, totalTransitHours float64) []types.WaypointRisk {
	records := make([]types.WaypointRisk, len(points))
	if len(points) == 0 {
		return records
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range points {
		g.Go(func() error {
			if gCtx.Err() != nil {
				records[i] = placeholderRecord(i, points[i])
				return nil
			}
			records[i] = e.scoreWaypoint(i, points[i], cropType)
			return nil
		})
	}
	// No goroutine returns an error and all writes hit disjoint indices;
	// Wait only synchronizes completion.
	_ = g.Wait()

	if ctx.Err() != nil {
		e.logger.WarnContext(ctx, "route evaluation cancelled, unscored waypoints degraded",
			"waypoints", len(points))
	}

	// The cumulative pass is a running weighted sum over exposure shares and
	// must follow route order.
	hours := math.Max(MinTransitHours, totalTransitHours)
	var cum float64
	for i := range records {
		cum += records[i].InstantRisk * (records[i].ExposureHours / hours)
		if cum > 1 {
			cum = 1
		}
		records[i].CumulativeRisk = cum
	}

	return records
}

// scoreWaypoint derives features for one waypoint and reconciles a
// prediction for it. Scoring failures surface as degraded records through
// the reconciler's ModelError marker.
func (e *Evaluator) scoreWaypoint(idx int, pt types.TelemetryPoint, cropType string) types.WaypointRisk {
	elapsed := math.Max(MinTransitHours, pt.CumulativeHours)
	fv := NewFeatureVector(pt.AmbientTempC, pt.Humidity, elapsed, cropType)
	pred := e.reconciler.Predict(fv)

	rec := types.WaypointRisk{
		WaypointNum:   pt.WaypointNum,
		Lat:           pt.Lat,
		Lon:           pt.Lon,
		TemperatureC:  pt.AmbientTempC,
		Humidity:      pt.Humidity,
		VPD:           pred.VPD,
		InstantRisk:   pred.Risk,
		Status:        pred.Status,
		Confidence:    pred.Confidence,
		ExposureHours: pt.ExposureHours,
		Degraded:      pt.Degraded || pred.ModelError != "",
	}
	if rec.WaypointNum == 0 {
		rec.WaypointNum = idx + 1
	}
	return rec
}

// placeholderRecord is the zero-risk stand-in for a waypoint that was never
// scored because evaluation was cancelled mid-route.
func placeholderRecord(idx int, pt types.TelemetryPoint) types.WaypointRisk {
	rec := types.WaypointRisk{
		WaypointNum:   pt.WaypointNum,
		Lat:           pt.Lat,
		Lon:           pt.Lon,
		TemperatureC:  pt.AmbientTempC,
		Humidity:      pt.Humidity,
		Status:        types.StatusUnknown,
		ExposureHours: pt.ExposureHours,
		Degraded:      true,
	}
	if rec.WaypointNum == 0 {
		rec.WaypointNum = idx + 1
	}
	return rec
}
