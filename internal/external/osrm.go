package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coldtrace/internal/types"
)

// osrmAPIBase is the default public OSRM demo server base URL.
// Overridable in tests via OSRMClientConfig.BaseURL.
const osrmAPIBase = "https://router.project-osrm.org"

// OSRM maneuver lists are thinned to roughly osrmTargetRouteWaypoints before
// environmental sampling.
const (
	osrmMaxRouteWaypoints    = 12
	osrmTargetRouteWaypoints = 10
)

// OSRMClientConfig holds the configuration for creating an OSRMClient.
type OSRMClientConfig struct {
	BaseURL   string // Override for testing; defaults to osrmAPIBase
	UserAgent string
	Logger    *slog.Logger
}

// OSRMClient implements Router against the OSRM HTTP API. It is keyless and
// serves as the fallback when the Google Routes API is unconfigured or
// failing. Routes are not traffic-aware.
type OSRMClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewOSRMClient creates a new OSRMClient with its own BaseClient.
func NewOSRMClient(httpClient *http.Client, cfg OSRMClientConfig) *OSRMClient {
	base := NewBaseClient(
		httpClient,
		"osrm",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    time.Second,
			MaxWait:    5 * time.Second,
		},
		cfg.UserAgent,
	)
	return NewOSRMClientWithBase(base, cfg)
}

// NewOSRMClientWithBase creates an OSRMClient with a pre-configured BaseClient.
func NewOSRMClientWithBase(base *BaseClient, cfg OSRMClientConfig) *OSRMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = osrmAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OSRMClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Name returns the provider identifier used in fallback-chain logs.
func (c *OSRMClient) Name() string { return "osrm" }

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Legs     []struct {
			Steps []struct {
				Maneuver struct {
					Location []float64 `json:"location"` // [lon, lat]
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route computes a driving route via the OSRM route service. Waypoints are
// sampled from maneuver locations, thinned, and pinned to the endpoints.
func (c *OSRMClient) Route(ctx context.Context, origin, destination types.Location) (types.RoutePlan, error) {
	reqURL := fmt.Sprintf("%s/route/v1/driving/%s,%s;%s,%s?overview=false&steps=true",
		c.baseURL,
		formatCoord(origin.Lon), formatCoord(origin.Lat),
		formatCoord(destination.Lon), formatCoord(destination.Lat),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create osrm request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return types.RoutePlan{}, err
		}
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			fmt.Sprintf("osrm request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			fmt.Sprintf("osrm returned status %d", resp.StatusCode),
			nil,
		)
	}

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			"failed to decode osrm response",
			err,
		)
	}
	if len(out.Routes) == 0 {
		return types.RoutePlan{}, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			fmt.Sprintf("osrm returned no routes (code %q)", out.Code),
			nil,
		)
	}

	route := out.Routes[0]
	var waypoints []types.Coordinate
	for _, leg := range route.Legs {
		for _, step := range leg.Steps {
			if loc := step.Maneuver.Location; len(loc) == 2 {
				waypoints = append(waypoints, types.Coordinate{Lat: loc[1], Lon: loc[0]})
			}
		}
	}
	waypoints = downsampleWaypoints(waypoints, osrmMaxRouteWaypoints, osrmTargetRouteWaypoints)
	waypoints = pinEndpoints(waypoints, origin, destination)

	return types.RoutePlan{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		DistanceKm:  round2(route.Distance / 1000),
		DurationHrs: round2(route.Duration / 3600),
		Provider:    types.ProviderOSRM,
	}, nil
}

// Compile-time assertion that OSRMClient satisfies Router.
var _ Router = (*OSRMClient)(nil)
