// Package session caches completed trip analyses so follow-up queries can
// reuse them without re-running the pipeline. Sessions expire after a TTL
// that is extended on every read.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"coldtrace/internal/config"
	"coldtrace/internal/types"
)

// DefaultTTL is the session lifetime applied when the config leaves it unset.
const DefaultTTL = 30 * time.Minute

// Store is the session cache contract shared by the memory and redis
// backends.
type Store interface {
	// Create opens an empty session and returns its ID.
	Create(ctx context.Context) (string, error)

	// Put stores an analysis under sessionID and resets its TTL. An empty
	// or unknown sessionID gets a fresh ID rather than adopting the
	// caller's, so stale or guessed IDs never resurrect; the effective ID
	// is returned.
	Put(ctx context.Context, sessionID string, analysis *types.TripAnalysis) (string, error)

	// Get returns the cached analysis and extends the TTL. Missing or
	// expired sessions yield ErrCodeNotFoundSession. A session created but
	// not yet filled returns a nil analysis and no error.
	Get(ctx context.Context, sessionID string) (*types.TripAnalysis, error)

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Cleanup drops expired sessions and reports how many were removed.
	// Backends with server-side expiry treat this as a no-op.
	Cleanup(ctx context.Context) (int, error)
}

// NewStore builds the session store selected by cfg.Backend.
func NewStore(cfg config.SessionConfig, clock types.Clock, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, types.NewAppError(types.ErrCodeValidationMissingField,
				"SESSION_REDIS_ADDR is required for the redis session backend", nil)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword.Unmask(),
			DB:       cfg.RedisDB,
		})
		logger.Info("session store selected", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
		return NewRedisStore(client, cfg.TTL), nil
	default:
		logger.Info("session store selected", "backend", "memory", "ttl", cfg.TTL)
		return NewMemoryStore(cfg.TTL, clock), nil
	}
}
