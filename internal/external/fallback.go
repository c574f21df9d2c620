package external

import (
	"context"
	"fmt"
	"log/slog"

	"coldtrace/internal/types"
)

// ---------------------------------------------------------------------------
// Provider Fallback Chains
//
// Trip generation must keep working when the primary provider is down or
// unconfigured, so geocoding and routing run through ordered chains: each
// provider is tried in turn, failures are logged at Warn, and an error is
// returned only when the whole chain is exhausted.
// ---------------------------------------------------------------------------

// FallbackGeocoder tries each Geocoder in order and returns the first result.
type FallbackGeocoder struct {
	providers []Geocoder
	logger    *slog.Logger
}

// NewFallbackGeocoder builds a chain over the given providers, primary first.
func NewFallbackGeocoder(logger *slog.Logger, providers ...Geocoder) *FallbackGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackGeocoder{providers: providers, logger: logger}
}

// Name identifies the chain in logs.
func (g *FallbackGeocoder) Name() string { return "geocoder-chain" }

// Geocode resolves the address via the first provider that succeeds.
func (g *FallbackGeocoder) Geocode(ctx context.Context, address string) (types.Location, error) {
	var lastErr error
	for _, p := range g.providers {
		loc, err := p.Geocode(ctx, address)
		if err == nil {
			return loc, nil
		}
		lastErr = err
		g.logger.Warn("geocoding provider failed, trying next",
			"provider", p.Name(),
			"address", address,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return types.Location{}, types.NewAppError(
		types.ErrCodeUpstreamGeocoding,
		fmt.Sprintf("all geocoding providers failed for %q", address),
		lastErr,
	)
}

// FallbackRouter tries each Router in order and returns the first result.
type FallbackRouter struct {
	providers []Router
	logger    *slog.Logger
}

// NewFallbackRouter builds a chain over the given providers, primary first.
func NewFallbackRouter(logger *slog.Logger, providers ...Router) *FallbackRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackRouter{providers: providers, logger: logger}
}

// Name identifies the chain in logs.
func (r *FallbackRouter) Name() string { return "router-chain" }

// Route computes the route via the first provider that succeeds.
func (r *FallbackRouter) Route(ctx context.Context, origin, destination types.Location) (types.RoutePlan, error) {
	var lastErr error
	for _, p := range r.providers {
		plan, err := p.Route(ctx, origin, destination)
		if err == nil {
			return plan, nil
		}
		lastErr = err
		r.logger.Warn("routing provider failed, trying next",
			"provider", p.Name(),
			"origin", origin.DisplayName,
			"destination", destination.DisplayName,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return types.RoutePlan{}, types.NewAppError(
		types.ErrCodeUpstreamRouting,
		"all routing providers failed",
		lastErr,
	)
}

// Compile-time assertions that the chains satisfy the provider interfaces.
var (
	_ Geocoder = (*FallbackGeocoder)(nil)
	_ Router   = (*FallbackRouter)(nil)
)
