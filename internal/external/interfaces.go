package external

import (
	"context"

	"coldtrace/internal/types"
)

// ---------------------------------------------------------------------------
// Geocoding & Routing
// ---------------------------------------------------------------------------

// Geocoder resolves a free-form place name to coordinates. Implementations
// translate between the domain Location type and vendor-specific APIs.
type Geocoder interface {
	// Name returns the provider identifier (e.g., "google", "nominatim")
	// used in logs when walking a fallback chain.
	Name() string

	// Geocode resolves an address or city name to a Location. A lookup that
	// completes but matches nothing is an error, not an empty result.
	Geocode(ctx context.Context, address string) (types.Location, error)
}

// Router computes a driving route between two already-resolved locations.
type Router interface {
	// Name returns the provider identifier (e.g., "google", "osrm").
	Name() string

	// Route returns the road route from origin to destination, normalized to
	// a small set of sampling waypoints with the first and last pinned to the
	// resolved endpoints.
	Route(ctx context.Context, origin, destination types.Location) (types.RoutePlan, error)
}

// ---------------------------------------------------------------------------
// Environmental Conditions
// ---------------------------------------------------------------------------

// WeatherReport carries the current ambient readings at a point. It is the
// provider-layer shape; telemetry merges it into an EnvironmentalSnapshot.
type WeatherReport struct {
	TemperatureC      float64
	FeelsLikeC        float64
	Humidity          float64
	Condition         string
	ConditionType     string
	UVIndex           float64
	WindSpeedKmh      float64
	PrecipitationProb float64
	CloudCover        float64
	Source            types.ProviderKind
}

// AirQualityReport carries the current air quality indexes at a point.
type AirQualityReport struct {
	AQI               float64
	Category          string
	DominantPollutant string
	PM25              float64
	Source            types.ProviderKind
}

// WeatherProvider reads current ambient conditions for a coordinate.
type WeatherProvider interface {
	Name() string
	CurrentWeather(ctx context.Context, lat, lon float64) (WeatherReport, error)
}

// AirQualityProvider reads current air quality for a coordinate.
type AirQualityProvider interface {
	Name() string
	AirQuality(ctx context.Context, lat, lon float64) (AirQualityReport, error)
}
