package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coldtrace/internal/types"
)

// nominatimAPIBase is the default OpenStreetMap Nominatim base URL.
// Overridable in tests via NominatimClientConfig.BaseURL.
const nominatimAPIBase = "https://nominatim.openstreetmap.org"

// NominatimClientConfig holds the configuration for creating a NominatimClient.
type NominatimClientConfig struct {
	BaseURL   string // Override for testing; defaults to nominatimAPIBase
	UserAgent string
	Logger    *slog.Logger
}

// NominatimClient implements Geocoder against the OpenStreetMap Nominatim
// search API. It is keyless and serves as the fallback when the Google
// Geocoding API is unconfigured or failing.
type NominatimClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewNominatimClient creates a new NominatimClient. Nominatim's usage policy
// caps clients at one request per second, so the retry policy stays modest.
func NewNominatimClient(httpClient *http.Client, cfg NominatimClientConfig) *NominatimClient {
	base := NewBaseClient(
		httpClient,
		"nominatim",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    time.Second,
			MaxWait:    5 * time.Second,
		},
		cfg.UserAgent,
	)
	return NewNominatimClientWithBase(base, cfg)
}

// NewNominatimClientWithBase creates a NominatimClient with a pre-configured
// BaseClient.
func NewNominatimClientWithBase(base *BaseClient, cfg NominatimClientConfig) *NominatimClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = nominatimAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &NominatimClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Name returns the provider identifier used in fallback-chain logs.
func (c *NominatimClient) Name() string { return "nominatim" }

// nominatimPlace is one search hit. Nominatim serializes coordinates as
// strings, not numbers.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves an address via the Nominatim search endpoint.
func (c *NominatimClient) Geocode(ctx context.Context, address string) (types.Location, error) {
	reqURL := c.baseURL + "/search?" + url.Values{
		"q":      {address},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.Location{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create nominatim request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return types.Location{}, err
		}
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			fmt.Sprintf("nominatim request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			fmt.Sprintf("nominatim returned status %d", resp.StatusCode),
			nil,
		)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			"failed to decode nominatim response",
			err,
		)
	}
	if len(places) == 0 {
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			fmt.Sprintf("nominatim returned no results for %q", address),
			nil,
		)
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return types.Location{}, types.NewAppError(
			types.ErrCodeUpstreamGeocoding,
			fmt.Sprintf("nominatim returned unparseable coordinates (%q, %q)", places[0].Lat, places[0].Lon),
			nil,
		)
	}

	displayName := places[0].DisplayName
	if displayName == "" {
		displayName = address
	}

	return types.Location{
		Lat:         lat,
		Lon:         lon,
		DisplayName: displayName,
	}, nil
}

// Compile-time assertion that NominatimClient satisfies Geocoder.
var _ Geocoder = (*NominatimClient)(nil)
