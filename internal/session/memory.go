package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"coldtrace/internal/types"
)

type memoryEntry struct {
	analysis  *types.TripAnalysis
	createdAt time.Time
	expiresAt time.Time
}

// MemoryStore keeps sessions in a mutex-guarded map. It is the default
// backend for single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   types.Clock
}

func NewMemoryStore(ttl time.Duration, clock types.Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (s *MemoryStore) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{createdAt: now, expiresAt: now.Add(s.ttl)}
	return id, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, analysis *types.TripAnalysis) (string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; !ok {
		sessionID = uuid.NewString()
	}
	s.entries[sessionID] = memoryEntry{analysis: analysis, createdAt: now, expiresAt: now.Add(s.ttl)}
	return sessionID, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*types.TripAnalysis, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
	}
	if !now.Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session has expired", nil)
	}
	entry.expiresAt = now.Add(s.ttl)
	s.entries[sessionID] = entry
	return entry.analysis, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

func (s *MemoryStore) Cleanup(_ context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live entries, expired or not. Used by the
// cleanup job to log cache pressure.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
