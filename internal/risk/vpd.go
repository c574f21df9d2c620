package risk

import "math"

// Tetens approximation constants for saturation vapor pressure over water.
// Temperature is in degrees Celsius, pressure in kilopascals.
const (
	tetensScale = 0.6108
	tetensA     = 17.27
	tetensB     = 237.3
)

// VaporPressureDeficit computes the vapor pressure deficit in kPa for an
// ambient temperature (°C) and relative humidity (%). VPD measures the
// atmosphere's drying power: the gap between how much moisture the air could
// hold at saturation and how much it actually holds. High VPD accelerates
// water loss from fresh produce even at safe temperatures.
//
// Saturation pressure uses the Tetens approximation
// es = 0.6108 * exp(17.27*T / (T+237.3)), physically meaningful for roughly
// −10..50°C. The result is rounded to two decimals and is never negative;
// humidity at or above 100% yields 0.
func VaporPressureDeficit(tempC, humidityPct float64) float64 {
	es := tetensScale * math.Exp(tetensA*tempC/(tempC+tetensB))
	vpd := es - es*(humidityPct/100)
	if vpd < 0 {
		vpd = 0
	}
	return round2(vpd)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
