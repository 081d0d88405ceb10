// Package holds stores the expiring reservations behind held sessions.
package holds

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

// MemoryStore keeps holds in process. Used when no Redis is configured.
type MemoryStore struct {
	mu    sync.Mutex
	clock sharedDomain.Clock
	holds map[uuid.UUID]domain.Hold
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(clock sharedDomain.Clock) *MemoryStore {
	return &MemoryStore{clock: clock, holds: make(map[uuid.UUID]domain.Hold)}
}

func (s *MemoryStore) Put(_ context.Context, h domain.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.ExpiresAt.After(s.clock.Now()) {
		delete(s.holds, h.SessionID)
		return nil
	}
	s.holds[h.SessionID] = h
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID uuid.UUID) (domain.Hold, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.live(sessionID)
	return h, ok, nil
}

func (s *MemoryStore) Extend(_ context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.live(sessionID)
	if !ok {
		return domain.ErrHoldExpired
	}
	h.ExpiresAt = expiresAt
	s.holds[sessionID] = h
	return nil
}

func (s *MemoryStore) Release(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holds, sessionID)
	return nil
}

// live must be called with s.mu held.
func (s *MemoryStore) live(sessionID uuid.UUID) (domain.Hold, bool) {
	h, ok := s.holds[sessionID]
	if !ok {
		return domain.Hold{}, false
	}
	if !h.ExpiresAt.After(s.clock.Now()) {
		delete(s.holds, sessionID)
		return domain.Hold{}, false
	}
	return h, true
}
