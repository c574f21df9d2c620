package external

import (
	"log/slog"
	"net/http"

	"coldtrace/internal/config"
)

// ---------------------------------------------------------------------------
// Provider Registry
//
// Central factory that instantiates the external data provider clients from
// configuration. With a Google API key the Google clients lead every chain;
// without one the keyless community providers (Nominatim, OSRM) carry
// geocoding and routing, and the environmental providers are absent so
// telemetry falls back to simulated readings.
// ---------------------------------------------------------------------------

// Registry holds the provider entry points the telemetry layer consumes.
// Geocoder and Router are always populated. Weather and Air are nil when no
// Google API key is configured; callers must treat nil as "simulate".
type Registry struct {
	Geocoder Geocoder
	Router   Router

	Weather WeatherProvider
	Air     AirQualityProvider
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*registryConfig)

// registryConfig holds optional dependencies used when building clients.
type registryConfig struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client shared by all provider clients.
// This is intended for tests that need custom transports.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(rc *registryConfig) {
		rc.httpClient = c
	}
}

// NewRegistry initializes the external provider clients.
func NewRegistry(cfg config.ProviderConfig, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	httpClient := rc.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	nominatim := NewNominatimClient(httpClient, NominatimClientConfig{
		BaseURL:   cfg.NominatimURL,
		UserAgent: cfg.UserAgent,
		Logger:    logger.With("client", "nominatim"),
	})
	osrm := NewOSRMClient(httpClient, OSRMClientConfig{
		BaseURL:   cfg.OSRMURL,
		UserAgent: cfg.UserAgent,
		Logger:    logger.With("client", "osrm"),
	})

	apiKey := cfg.GoogleAPIKey.Unmask()
	if apiKey == "" {
		logger.Info("initializing external providers without google api key",
			"geocoder", "nominatim",
			"router", "osrm",
			"environment_data", "simulated",
		)
		return &Registry{
			Geocoder: NewFallbackGeocoder(logger, nominatim),
			Router:   NewFallbackRouter(logger, osrm),
		}
	}

	google := NewGoogleClient(httpClient, GoogleClientConfig{
		APIKey:        apiKey,
		GeocodeURL:    cfg.GoogleGeocodeURL,
		RoutesURL:     cfg.GoogleRoutesURL,
		WeatherURL:    cfg.GoogleWeatherURL,
		AirQualityURL: cfg.GoogleAirQualityURL,
		UserAgent:     cfg.UserAgent,
		Logger:        logger.With("client", "google"),
	})

	logger.Info("initializing external providers with google primary",
		"geocoder_fallback", "nominatim",
		"router_fallback", "osrm",
	)
	return &Registry{
		Geocoder: NewFallbackGeocoder(logger, google, nominatim),
		Router:   NewFallbackRouter(logger, google, osrm),
		Weather:  google,
		Air:      google,
	}
}
