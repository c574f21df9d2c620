package telemetry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"coldtrace/internal/external"
	"coldtrace/internal/types"
)

// simulatedConditions are the sky states the simulator rotates through.
var simulatedConditions = []string{"Sunny", "Partly Cloudy", "Hazy", "Clear"}

// Simulator produces synthetic weather and air quality readings. It is the
// terminal member of every environmental chain: when no provider is
// configured or every provider fails, trips are still built from simulated
// conditions rather than aborted.
//
// The temperature model is a warm-belt baseline falling off with distance
// from 20°N, shifted for subcontinental summer (Apr-Jun) and winter
// (Dec-Feb), with a few degrees of jitter.
type Simulator struct {
	clock types.Clock
}

// NewSimulator builds a simulator. A nil clock falls back to real time.
func NewSimulator(clock types.Clock) *Simulator {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Simulator{clock: clock}
}

// Name implements the provider interfaces.
func (s *Simulator) Name() string { return "simulated" }

// CurrentWeather returns a synthetic reading for the coordinate. It never
// fails.
func (s *Simulator) CurrentWeather(_ context.Context, lat, _ float64) (external.WeatherReport, error) {
	base := 30 - math.Abs(lat-20)*0.5
	switch s.clock.Now().Month() {
	case time.April, time.May, time.June:
		base += 8
	case time.December, time.January, time.February:
		base -= 8
	}

	return external.WeatherReport{
		TemperatureC:      round1(base + uniform(-3, 3)),
		FeelsLikeC:        round1(base + uniform(0, 5)),
		Humidity:          float64(40 + rand.IntN(41)),
		Condition:         simulatedConditions[rand.IntN(len(simulatedConditions))],
		ConditionType:     "CLEAR",
		UVIndex:           float64(3 + rand.IntN(7)),
		WindSpeedKmh:      float64(5 + rand.IntN(21)),
		PrecipitationProb: float64(rand.IntN(31)),
		CloudCover:        float64(rand.IntN(51)),
		Source:            types.ProviderSimulated,
	}, nil
}

// AirQuality returns a synthetic moderate-band reading. It never fails.
func (s *Simulator) AirQuality(_ context.Context, _, _ float64) (external.AirQualityReport, error) {
	return external.AirQualityReport{
		AQI:               float64(30 + rand.IntN(51)),
		Category:          "Moderate",
		DominantPollutant: "pm25",
		Source:            types.ProviderSimulated,
	}, nil
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

var (
	_ external.WeatherProvider    = (*Simulator)(nil)
	_ external.AirQualityProvider = (*Simulator)(nil)
)
