package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"coldtrace/internal/config"
	"coldtrace/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewStore_DefaultsToMemory(t *testing.T) {
	store, err := NewStore(config.SessionConfig{Backend: "memory", TTL: 30 * time.Minute}, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("store = %T, want *MemoryStore", store)
	}
}

func TestNewStore_RedisRequiresAddr(t *testing.T) {
	_, err := NewStore(config.SessionConfig{Backend: "redis", TTL: 30 * time.Minute}, nil, discardLogger())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationMissingField {
		t.Fatalf("err = %v, want AppError %s", err, types.ErrCodeValidationMissingField)
	}
}

func TestNewStore_RedisClientOptions(t *testing.T) {
	cfg := config.SessionConfig{
		Backend:       "redis",
		RedisAddr:     "cache.internal:6379",
		RedisPassword: config.SecretString("hunter2"),
		RedisDB:       2,
		TTL:           time.Hour,
	}

	store, err := NewStore(cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	rs, ok := store.(*RedisStore)
	if !ok {
		t.Fatalf("store = %T, want *RedisStore", store)
	}

	opts := rs.client.Options()
	if opts.Addr != "cache.internal:6379" {
		t.Errorf("Addr = %q", opts.Addr)
	}
	if opts.Password != "hunter2" {
		t.Errorf("Password = %q, want the unmasked secret", opts.Password)
	}
	if opts.DB != 2 {
		t.Errorf("DB = %d, want 2", opts.DB)
	}
	if rs.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", rs.ttl)
	}
}

func TestNewRedisStore_DefaultTTL(t *testing.T) {
	rs := NewRedisStore(nil, 0)
	if rs.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", rs.ttl, DefaultTTL)
	}
}
