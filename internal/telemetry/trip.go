// Package telemetry turns a shipment request into per-waypoint transit
// telemetry: it plans the road route through the provider chains, spaces
// transit time across haversine segment distances, and samples (or
// simulates) the ambient conditions at every waypoint.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"coldtrace/internal/config"
	"coldtrace/internal/external"
	"coldtrace/internal/types"
)

const (
	// DefaultFanoutLimit bounds concurrent environmental lookups when the
	// configuration does not set one.
	DefaultFanoutLimit = 6

	earthRadiusKm = 6371
)

// Generator plans routes and builds trip telemetry.
type Generator struct {
	geocoder external.Geocoder
	router   external.Router
	env      ConditionsSampler

	maxWaypoints int
	fanout       int
	clock        types.Clock
	logger       *slog.Logger
}

// NewGenerator wires a generator from the provider registry. Weather and air
// providers may be absent from the registry; the environmental sampler then
// simulates every reading.
func NewGenerator(providers *external.Registry, cfg config.TelemetryConfig, clock types.Clock, logger *slog.Logger) *Generator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	fanout := cfg.FanoutLimit
	if fanout < 1 {
		fanout = DefaultFanoutLimit
	}
	return &Generator{
		geocoder:     providers.Geocoder,
		router:       providers.Router,
		env:          NewEnvSampler(providers.Weather, providers.Air, NewSimulator(clock), logger),
		maxWaypoints: cfg.MaxWaypoints,
		fanout:       fanout,
		clock:        clock,
		logger:       logger,
	}
}

// PlanRoute resolves both endpoints and computes the road route between
// them. Provider chain errors pass through unchanged so callers see which
// upstream concern failed. The returned plan carries at most MaxWaypoints
// sampling waypoints.
func (g *Generator) PlanRoute(ctx context.Context, origin, destination string) (types.RoutePlan, error) {
	originLoc, err := g.geocoder.Geocode(ctx, origin)
	if err != nil {
		return types.RoutePlan{}, err
	}
	destLoc, err := g.geocoder.Geocode(ctx, destination)
	if err != nil {
		return types.RoutePlan{}, err
	}

	plan, err := g.router.Route(ctx, originLoc, destLoc)
	if err != nil {
		return types.RoutePlan{}, err
	}

	if g.maxWaypoints > 0 && len(plan.Waypoints) > g.maxWaypoints {
		plan.Waypoints = sampleEvenly(plan.Waypoints, g.maxWaypoints)
	}

	g.logger.InfoContext(ctx, "route planned",
		"origin", originLoc.DisplayName,
		"destination", destLoc.DisplayName,
		"provider", plan.Provider,
		"distance_km", plan.DistanceKm,
		"duration_hours", plan.DurationHrs,
		"waypoints", len(plan.Waypoints))

	return plan, nil
}

// BuildTrip samples conditions for every waypoint of the plan and assembles
// the telemetry points. Transit time is spread across waypoints in
// proportion to haversine segment distance; each waypoint's exposure hours
// cover the segment to the next waypoint, so the final waypoint carries
// zero exposure.
//
// Environmental lookups fan out on a bounded errgroup. A waypoint whose
// lookup fails outright gets default placeholder conditions and a Degraded
// mark; the trip itself only fails when ctx is already canceled.
func (g *Generator) BuildTrip(ctx context.Context, plan types.RoutePlan, cropType string) (types.Trip, error) {
	if err := ctx.Err(); err != nil {
		return types.Trip{}, err
	}

	trip := types.Trip{
		Route:       plan,
		Points:      []types.TelemetryPoint{},
		TotalHours:  plan.DurationHrs,
		CropType:    cropType,
		GeneratedAt: g.clock.Now(),
	}

	waypoints := plan.Waypoints
	if len(waypoints) == 0 {
		trip.Warnings = append(trip.Warnings, "route plan has no waypoints")
		return trip, nil
	}

	// Segment i is the leg arriving at waypoint i; the first segment is zero.
	segments := make([]float64, len(waypoints))
	var totalSegment float64
	for i := 1; i < len(waypoints); i++ {
		segments[i] = haversineKm(waypoints[i-1], waypoints[i])
		totalSegment += segments[i]
	}
	if totalSegment == 0 {
		// Degenerate geometry (single or repeated waypoints); fall back to
		// the provider's total so time shares stay defined.
		totalSegment = plan.DistanceKm
	}

	snapshots := make([]types.EnvironmentalSnapshot, len(waypoints))
	failed := make([]bool, len(waypoints))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.fanout)
	for i := range waypoints {
		eg.Go(func() error {
			snap, err := g.env.Sample(gCtx, waypoints[i].Lat, waypoints[i].Lon)
			if err != nil {
				// Isolate the failure; the rest of the route still samples.
				failed[i] = true
				return nil
			}
			snapshots[i] = snap
			return nil
		})
	}
	// Goroutines never return errors and write disjoint indices.
	_ = eg.Wait()

	var (
		cumHours float64
		cumKm    float64
		degraded int
	)
	for i, wp := range waypoints {
		snap := snapshots[i]
		if failed[i] {
			snap = placeholderSnapshot()
			degraded++
		}

		var segHours float64
		if totalSegment > 0 {
			segHours = segments[i] / totalSegment * plan.DurationHrs
		}
		cumHours += segHours
		cumKm += segments[i]

		var exposure float64
		if i < len(waypoints)-1 && totalSegment > 0 {
			exposure = segments[i+1] / totalSegment * plan.DurationHrs
		}

		trip.Points = append(trip.Points, types.TelemetryPoint{
			WaypointNum:       i + 1,
			Lat:               wp.Lat,
			Lon:               wp.Lon,
			AmbientTempC:      snap.TemperatureC,
			InternalTempC:     snap.TemperatureC,
			Humidity:          snap.Humidity,
			Condition:         snap.Condition,
			SegmentKm:         round2(segments[i]),
			CumulativeKm:      round2(cumKm),
			CumulativeHours:   round2(cumHours),
			ExposureHours:     round2(exposure),
			EnvironmentalRisk: snap.EnvironmentalRisk,
			Degraded:          failed[i],
		})
	}

	if degraded > 0 {
		trip.Warnings = append(trip.Warnings,
			fmt.Sprintf("%d of %d waypoints use default conditions after provider failures", degraded, len(waypoints)))
	}

	g.logger.InfoContext(ctx, "trip telemetry generated",
		"waypoints", len(trip.Points),
		"degraded", degraded,
		"total_hours", trip.TotalHours,
		"crop", cropType)

	return trip, nil
}

// placeholderSnapshot is the default-conditions stand-in for a waypoint
// whose environmental lookup failed entirely.
func placeholderSnapshot() types.EnvironmentalSnapshot {
	return types.EnvironmentalSnapshot{
		TemperatureC:      28,
		Humidity:          65,
		Condition:         "Data unavailable",
		EnvironmentalRisk: 0.2,
	}
}

// sampleEvenly reduces wps to max entries spaced evenly across the list,
// always keeping the first and last.
func sampleEvenly(wps []types.Coordinate, max int) []types.Coordinate {
	if max < 2 || len(wps) <= max {
		return wps
	}
	out := make([]types.Coordinate, max)
	last := len(wps) - 1
	for i := range out {
		out[i] = wps[i*last/(max-1)]
	}
	return out
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(a, b types.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
