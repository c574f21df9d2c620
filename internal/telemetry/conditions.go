package telemetry

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"coldtrace/internal/external"
	"coldtrace/internal/types"
)

// ConditionsSampler reads the ambient conditions at a coordinate. The trip
// generator depends on this seam rather than on concrete providers.
type ConditionsSampler interface {
	Sample(ctx context.Context, lat, lon float64) (types.EnvironmentalSnapshot, error)
}

// EnvSampler merges weather and air quality readings into environmental
// snapshots. Both lookups run concurrently; a nil or failing provider falls
// back to the simulator, so the only error Sample returns is context
// cancellation.
type EnvSampler struct {
	weather external.WeatherProvider
	air     external.AirQualityProvider
	sim     *Simulator
	logger  *slog.Logger
}

// NewEnvSampler builds a sampler. weather and air may be nil; sim must not.
func NewEnvSampler(weather external.WeatherProvider, air external.AirQualityProvider, sim *Simulator, logger *slog.Logger) *EnvSampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvSampler{weather: weather, air: air, sim: sim, logger: logger}
}

// Sample returns the snapshot for one coordinate: readings rounded to the
// ingestion precision (temperature 1dp, humidity whole percent), a condition
// description, and the ambient-stress heuristic.
func (s *EnvSampler) Sample(ctx context.Context, lat, lon float64) (types.EnvironmentalSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.EnvironmentalSnapshot{}, err
	}

	var (
		weather external.WeatherReport
		air     external.AirQualityReport
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		weather = s.sampleWeather(gCtx, lat, lon)
		return nil
	})
	g.Go(func() error {
		air = s.sampleAir(gCtx, lat, lon)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return types.EnvironmentalSnapshot{}, err
	}

	return types.EnvironmentalSnapshot{
		TemperatureC:      round1(weather.TemperatureC),
		Humidity:          math.Round(weather.Humidity),
		Condition:         conditionDescription(weather, air),
		PrecipitationProb: weather.PrecipitationProb,
		UVIndex:           weather.UVIndex,
		AQI:               air.AQI,
		AQICategory:       air.Category,
		PM25:              air.PM25,
		EnvironmentalRisk: environmentalRisk(weather, air),
		Source:            weather.Source,
	}, nil
}

func (s *EnvSampler) sampleWeather(ctx context.Context, lat, lon float64) external.WeatherReport {
	if s.weather != nil {
		report, err := s.weather.CurrentWeather(ctx, lat, lon)
		if err == nil {
			return report
		}
		s.logger.WarnContext(ctx, "weather provider failed, simulating",
			"provider", s.weather.Name(),
			"error", err)
	}
	report, _ := s.sim.CurrentWeather(ctx, lat, lon)
	return report
}

func (s *EnvSampler) sampleAir(ctx context.Context, lat, lon float64) external.AirQualityReport {
	if s.air != nil {
		report, err := s.air.AirQuality(ctx, lat, lon)
		if err == nil {
			return report
		}
		s.logger.WarnContext(ctx, "air quality provider failed, simulating",
			"provider", s.air.Name(),
			"error", err)
	}
	report, _ := s.sim.AirQuality(ctx, lat, lon)
	return report
}

// environmentalRisk scores ambient stress on produce in 0..1. Temperature
// dominates, then humidity, air quality, precipitation, and UV. Bands are
// strict lower bounds.
func environmentalRisk(weather external.WeatherReport, air external.AirQualityReport) float64 {
	var risk float64

	switch {
	case weather.TemperatureC > 40:
		risk += 0.35
	case weather.TemperatureC > 35:
		risk += 0.28
	case weather.TemperatureC > 32:
		risk += 0.2
	case weather.TemperatureC > 28:
		risk += 0.1
	}

	switch {
	case weather.Humidity > 85:
		risk += 0.25
	case weather.Humidity > 75:
		risk += 0.15
	case weather.Humidity > 65:
		risk += 0.08
	}

	switch {
	case air.AQI > 150:
		risk += 0.2
	case air.AQI > 100:
		risk += 0.12
	case air.AQI > 50:
		risk += 0.05
	}

	switch {
	case weather.PrecipitationProb > 70:
		risk += 0.1
	case weather.PrecipitationProb > 40:
		risk += 0.05
	}

	switch {
	case weather.UVIndex > 8:
		risk += 0.1
	case weather.UVIndex > 6:
		risk += 0.05
	}

	return math.Min(1.0, risk)
}

// conditionDescription assembles the human-readable condition string from
// the same signals the risk heuristic reads.
func conditionDescription(weather external.WeatherReport, air external.AirQualityReport) string {
	var parts []string

	if weather.Condition != "" {
		parts = append(parts, weather.Condition)
	}

	if weather.TemperatureC > 35 {
		parts = append(parts, "Extreme heat")
	} else if weather.TemperatureC > 30 {
		parts = append(parts, "Hot")
	}

	if air.AQI > 100 {
		parts = append(parts, "Poor air quality")
	}

	if weather.UVIndex > 8 {
		parts = append(parts, "High sun exposure")
	}

	if len(parts) == 0 {
		return "Normal conditions"
	}
	return strings.Join(parts, ", ")
}

var _ ConditionsSampler = (*EnvSampler)(nil)
