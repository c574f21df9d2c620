package external

import (
	"math"

	"coldtrace/internal/types"
)

// Route waypoints feed one environmental lookup each, so providers thin dense
// step lists down to roughly a dozen sampling points before returning them.

// downsampleWaypoints strides over wps to reduce it to roughly target points.
// Lists at or under limit are returned unchanged.
func downsampleWaypoints(wps []types.Coordinate, limit, target int) []types.Coordinate {
	if len(wps) <= limit || target <= 0 {
		return wps
	}
	stride := len(wps) / target
	if stride < 2 {
		return wps
	}
	out := make([]types.Coordinate, 0, target+1)
	for i := 0; i < len(wps); i += stride {
		out = append(out, wps[i])
	}
	return out
}

// pinEndpoints forces the first and last waypoints onto the resolved origin
// and destination so exposure accounting starts and ends at the real
// endpoints. Degenerate lists are replaced with the two endpoints.
func pinEndpoints(wps []types.Coordinate, origin, destination types.Location) []types.Coordinate {
	if len(wps) < 2 {
		return []types.Coordinate{
			{Lat: origin.Lat, Lon: origin.Lon},
			{Lat: destination.Lat, Lon: destination.Lon},
		}
	}
	wps[0] = types.Coordinate{Lat: origin.Lat, Lon: origin.Lon}
	wps[len(wps)-1] = types.Coordinate{Lat: destination.Lat, Lon: destination.Lon}
	return wps
}

// round2 rounds to two decimal places, matching the ingestion contract for
// distances and durations.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
