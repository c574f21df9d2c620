package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"coldtrace/internal/types"
)

// redisKeyPrefix namespaces session keys so the cache can share a redis
// instance with other data.
const redisKeyPrefix = "session:"

// RedisStore keeps sessions in redis with server-side expiry, for
// deployments where analyses must survive process restarts or be shared
// across workers.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.client.Set(ctx, redisKeyPrefix+id, "null", s.ttl).Err(); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return id, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, analysis *types.TripAnalysis) (string, error) {
	if sessionID != "" {
		exists, err := s.client.Exists(ctx, redisKeyPrefix+sessionID).Result()
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalDB, "failed to check session", err)
		}
		if exists == 0 {
			sessionID = ""
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode session payload", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sessionID, payload, s.ttl).Err(); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to store session", err)
	}
	return sessionID, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*types.TripAnalysis, error) {
	key := redisKeyPrefix + sessionID
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load session", err)
	}

	var analysis *types.TripAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode session payload", err)
	}

	// Extend on access, matching the memory backend. Best effort: a failed
	// EXPIRE still returns the analysis.
	s.client.Expire(ctx, key, s.ttl)
	return analysis, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// Cleanup is a no-op: redis expires session keys server-side.
func (s *RedisStore) Cleanup(_ context.Context) (int, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
