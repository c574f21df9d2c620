package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coldtrace/internal/types"
)

// Default Google Maps Platform endpoints. Overridable in tests and config
// via GoogleClientConfig.
const (
	googleGeocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	googleRoutesURL     = "https://routes.googleapis.com/directions/v2:computeRoutes"
	googleWeatherURL    = "https://weather.googleapis.com/v1/currentConditions:lookup"
	googleAirQualityURL = "https://airquality.googleapis.com/v1/currentConditions:lookup"
)

// googleRoutesFieldMask limits the Routes API response to the fields the
// route parser actually reads. The API rejects requests without a mask.
const googleRoutesFieldMask = "routes.duration,routes.distanceMeters,routes.legs.steps.startLocation"

// Routes API step lists can run to hundreds of points on long hauls; they are
// thinned to roughly googleTargetWaypoints before environmental sampling.
const (
	googleMaxRouteWaypoints    = 15
	googleTargetRouteWaypoints = 12
)

// GoogleClientConfig holds the configuration for creating a GoogleClient.
type GoogleClientConfig struct {
	APIKey string

	// Endpoint overrides for testing; empty fields use the public endpoints.
	GeocodeURL    string
	RoutesURL     string
	WeatherURL    string
	AirQualityURL string

	UserAgent string
	Logger    *slog.Logger
}

// GoogleClient implements Geocoder, Router, WeatherProvider, and
// AirQualityProvider against the Google Maps Platform through BaseClient.
// All four APIs share one circuit breaker: a key or quota problem on one
// endpoint affects the whole platform account.
type GoogleClient struct {
	base          *BaseClient
	apiKey        string
	geocodeURL    string
	routesURL     string
	weatherURL    string
	airQualityURL string
	logger        *slog.Logger
}

// NewGoogleClient creates a new GoogleClient with its own BaseClient.
func NewGoogleClient(httpClient *http.Client, cfg GoogleClientConfig) *GoogleClient {
	base := NewBaseClient(
		httpClient,
		"google",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		cfg.UserAgent,
	)
	return NewGoogleClientWithBase(base, cfg)
}

// NewGoogleClientWithBase creates a GoogleClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewGoogleClientWithBase(base *BaseClient, cfg GoogleClientConfig) *GoogleClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pick := func(override, fallback string) string {
		if override == "" {
			return fallback
		}
		return strings.TrimSuffix(override, "/")
	}

	return &GoogleClient{
		base:          base,
		apiKey:        cfg.APIKey,
		geocodeURL:    pick(cfg.GeocodeURL, googleGeocodeURL),
		routesURL:     pick(cfg.RoutesURL, googleRoutesURL),
		weatherURL:    pick(cfg.WeatherURL, googleWeatherURL),
		airQualityURL: pick(cfg.AirQualityURL, googleAirQualityURL),
		logger:        logger,
	}
}

// Name returns the provider identifier used in fallback-chain logs.
func (c *GoogleClient) Name() string { return "google" }

// ---------------------------------------------------------------------------
// Geocoding
// ---------------------------------------------------------------------------

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address using the Google Geocoding API.
func (c *GoogleClient) Geocode(ctx context.Context, address string) (types.Location, error) {
	reqURL := c.geocodeURL + "?" + url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.Location{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create google geocoding request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return types.Location{}, c.wrapError("Geocode", types.ErrCodeUpstreamGeocoding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Location{}, c.handleErrorResponse(resp, "Geocode", types.ErrCodeUpstreamGeocoding)
	}

	var out googleGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			"failed to decode google geocoding response",
			err,
		)
	}

	// The API reports lookup failures as 200 + status, not as HTTP errors.
	if out.Status != "OK" || len(out.Results) == 0 {
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			fmt.Sprintf("google geocoding returned status %q for %q", out.Status, address),
			nil,
		)
	}

	first := out.Results[0]
	return types.Location{
		Lat:         first.Geometry.Location.Lat,
		Lon:         first.Geometry.Location.Lng,
		DisplayName: first.FormattedAddress,
	}, nil
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

type googleLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type googleRouteEndpoint struct {
	Location struct {
		LatLng googleLatLng `json:"latLng"`
	} `json:"location"`
}

type googleRoutesRequest struct {
	Origin                   googleRouteEndpoint `json:"origin"`
	Destination              googleRouteEndpoint `json:"destination"`
	TravelMode               string              `json:"travelMode"`
	RoutingPreference        string              `json:"routingPreference"`
	ComputeAlternativeRoutes bool                `json:"computeAlternativeRoutes"`
}

type googleRoutesResponse struct {
	Routes []struct {
		Duration       string  `json:"duration"`
		DistanceMeters float64 `json:"distanceMeters"`
		Legs           []struct {
			Steps []struct {
				StartLocation struct {
					LatLng googleLatLng `json:"latLng"`
				} `json:"startLocation"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route computes a traffic-aware driving route using the Google Routes API.
// Waypoints are sampled from step start locations, thinned to roughly a
// dozen, and pinned to the resolved origin and destination.
func (c *GoogleClient) Route(ctx context.Context, origin, destination types.Location) (types.RoutePlan, error) {
	var body googleRoutesRequest
	body.Origin.Location.LatLng = googleLatLng{Latitude: origin.Lat, Longitude: origin.Lon}
	body.Destination.Location.LatLng = googleLatLng{Latitude: destination.Lat, Longitude: destination.Lon}
	body.TravelMode = "DRIVE"
	body.RoutingPreference = "TRAFFIC_AWARE"
	body.ComputeAlternativeRoutes = false

	payload, err := json.Marshal(body)
	if err != nil {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal google routes payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.routesURL, bytes.NewReader(payload))
	if err != nil {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create google routes request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", googleRoutesFieldMask)

	resp, err := c.base.Do(req)
	if err != nil {
		return types.RoutePlan{}, c.wrapError("Route", types.ErrCodeUpstreamRouting, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.RoutePlan{}, c.handleErrorResponse(resp, "Route", types.ErrCodeUpstreamRouting)
	}

	var out googleRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			"failed to decode google routes response",
			err,
		)
	}
	if len(out.Routes) == 0 {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			"google routes returned no routes",
			nil,
		)
	}

	route := out.Routes[0]
	durationSec, err := parseGoogleDuration(route.Duration)
	if err != nil {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			fmt.Sprintf("google routes returned invalid duration %q", route.Duration),
			err,
		)
	}

	var waypoints []types.Coordinate
	for _, leg := range route.Legs {
		for _, step := range leg.Steps {
			waypoints = append(waypoints, types.Coordinate{
				Lat: step.StartLocation.LatLng.Latitude,
				Lon: step.StartLocation.LatLng.Longitude,
			})
		}
	}
	waypoints = downsampleWaypoints(waypoints, googleMaxRouteWaypoints, googleTargetRouteWaypoints)
	waypoints = pinEndpoints(waypoints, origin, destination)

	return types.RoutePlan{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		DistanceKm:  round2(route.DistanceMeters / 1000),
		DurationHrs: round2(durationSec / 3600),
		Provider:    types.ProviderGoogle,
	}, nil
}

// parseGoogleDuration parses the Routes API protobuf-style duration string
// (e.g. "8143s") into seconds.
func parseGoogleDuration(d string) (float64, error) {
	trimmed := strings.TrimSuffix(d, "s")
	if trimmed == "" || trimmed == d {
		return 0, fmt.Errorf("duration %q is not in seconds form", d)
	}
	return strconv.ParseFloat(trimmed, 64)
}

// ---------------------------------------------------------------------------
// Weather
// ---------------------------------------------------------------------------

type googleDegrees struct {
	Degrees float64 `json:"degrees"`
}

type googleWeatherResponse struct {
	Temperature          *googleDegrees `json:"temperature"`
	FeelsLikeTemperature *googleDegrees `json:"feelsLikeTemperature"`
	RelativeHumidity     float64        `json:"relativeHumidity"`
	WeatherCondition     struct {
		Description struct {
			Text string `json:"text"`
		} `json:"description"`
		Type string `json:"type"`
	} `json:"weatherCondition"`
	UVIndex float64 `json:"uvIndex"`
	Wind    struct {
		Speed struct {
			Value float64 `json:"value"`
		} `json:"speed"`
	} `json:"wind"`
	Precipitation struct {
		Probability struct {
			Percent float64 `json:"percent"`
		} `json:"probability"`
	} `json:"precipitation"`
	CloudCover float64 `json:"cloudCover"`
}

// CurrentWeather reads current conditions using the Google Weather API, the
// primary source for temperature and humidity.
func (c *GoogleClient) CurrentWeather(ctx context.Context, lat, lon float64) (WeatherReport, error) {
	reqURL := c.weatherURL + "?" + url.Values{
		"key":                {c.apiKey},
		"location.latitude":  {formatCoord(lat)},
		"location.longitude": {formatCoord(lon)},
		"unitsSystem":        {"METRIC"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return WeatherReport{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create google weather request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return WeatherReport{}, c.wrapError("CurrentWeather", types.ErrCodeUpstreamWeather, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WeatherReport{}, c.handleErrorResponse(resp, "CurrentWeather", types.ErrCodeUpstreamWeather)
	}

	var out googleWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return WeatherReport{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			"failed to decode google weather response",
			err,
		)
	}
	if out.Temperature == nil {
		return WeatherReport{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			"google weather response missing temperature",
			nil,
		)
	}

	feelsLike := out.Temperature.Degrees
	if out.FeelsLikeTemperature != nil {
		feelsLike = out.FeelsLikeTemperature.Degrees
	}

	return WeatherReport{
		TemperatureC:      out.Temperature.Degrees,
		FeelsLikeC:        feelsLike,
		Humidity:          out.RelativeHumidity,
		Condition:         out.WeatherCondition.Description.Text,
		ConditionType:     out.WeatherCondition.Type,
		UVIndex:           out.UVIndex,
		WindSpeedKmh:      out.Wind.Speed.Value,
		PrecipitationProb: out.Precipitation.Probability.Percent,
		CloudCover:        out.CloudCover,
		Source:            types.ProviderGoogle,
	}, nil
}

// ---------------------------------------------------------------------------
// Air Quality
// ---------------------------------------------------------------------------

type googleAirQualityRequest struct {
	Location          googleLatLng `json:"location"`
	ExtraComputations []string     `json:"extraComputations"`
}

type googleAirQualityResponse struct {
	Indexes []struct {
		AQI               float64 `json:"aqi"`
		Category          string  `json:"category"`
		DominantPollutant string  `json:"dominantPollutant"`
	} `json:"indexes"`
	Pollutants []struct {
		Code          string `json:"code"`
		Concentration struct {
			Value float64 `json:"value"`
		} `json:"concentration"`
	} `json:"pollutants"`
}

// AirQuality reads current air quality using the Google Air Quality API.
func (c *GoogleClient) AirQuality(ctx context.Context, lat, lon float64) (AirQualityReport, error) {
	payload, err := json.Marshal(googleAirQualityRequest{
		Location: googleLatLng{Latitude: lat, Longitude: lon},
		ExtraComputations: []string{
			"LOCAL_AQI",
			"DOMINANT_POLLUTANT_CONCENTRATION",
		},
	})
	if err != nil {
		return AirQualityReport{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal google air quality payload",
			err,
		)
	}

	reqURL := c.airQualityURL + "?" + url.Values{"key": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return AirQualityReport{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create google air quality request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return AirQualityReport{}, c.wrapError("AirQuality", types.ErrCodeUpstreamAirQuality, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AirQualityReport{}, c.handleErrorResponse(resp, "AirQuality", types.ErrCodeUpstreamAirQuality)
	}

	var out googleAirQualityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AirQualityReport{}, types.NewAppError(
			types.ErrCodeUpstreamAirQuality,
			"failed to decode google air quality response",
			err,
		)
	}
	if len(out.Indexes) == 0 {
		return AirQualityReport{}, types.NewAppError(
			types.ErrCodeUpstreamAirQuality,
			"google air quality response missing indexes",
			nil,
		)
	}

	report := AirQualityReport{
		AQI:               out.Indexes[0].AQI,
		Category:          out.Indexes[0].Category,
		DominantPollutant: out.Indexes[0].DominantPollutant,
		Source:            types.ProviderGoogle,
	}
	for _, p := range out.Pollutants {
		if p.Code == "pm25" {
			report.PM25 = p.Concentration.Value
			break
		}
	}
	return report, nil
}

// formatCoord renders a coordinate for query parameters without float noise.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// googleErrorResponse is the standard Google API JSON error envelope.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// handleErrorResponse reads a Google error response body and maps it to a
// types.AppError carrying the per-API upstream code.
func (c *GoogleClient) handleErrorResponse(resp *http.Response, operation string, code types.ErrorCode) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			code,
			fmt.Sprintf("%s: google API returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var gErr googleErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &gErr); jsonErr == nil && gErr.Error.Message != "" {
		errMsg = gErr.Error.Message
	}

	return types.NewAppError(
		code,
		fmt.Sprintf("%s: google API error (%d): %s", operation, resp.StatusCode, errMsg),
		nil,
	)
}

// wrapError wraps a BaseClient transport error with operation context.
func (c *GoogleClient) wrapError(operation string, code types.ErrorCode, err error) error {
	// Rate-limit and outage errors from the BaseClient already carry the
	// right code; keep them intact for Retryable() checks downstream.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		code,
		fmt.Sprintf("%s: google API request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var (
	_ Geocoder           = (*GoogleClient)(nil)
	_ Router             = (*GoogleClient)(nil)
	_ WeatherProvider    = (*GoogleClient)(nil)
	_ AirQualityProvider = (*GoogleClient)(nil)
)
