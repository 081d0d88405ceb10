package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
)

// Repository persists sessions.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, userID string, id uuid.UUID) (*Session, error)
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
	// ExpiredHolds lists held sessions whose hold lapsed before now.
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]SessionRef, error)
}

// SessionRef locates a session across users.
type SessionRef struct {
	UserID    string
	SessionID uuid.UUID
}

// Hold is the expiring reservation backing a held session.
type Hold struct {
	SessionID   uuid.UUID `json:"session_id"`
	CandidateID uuid.UUID `json:"candidate_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HoldStore keeps soft holds with a TTL. Get reports false once the hold
// expired or was released.
type HoldStore interface {
	Put(ctx context.Context, h Hold) error
	Get(ctx context.Context, sessionID uuid.UUID) (Hold, bool, error)
	Extend(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error
	Release(ctx context.Context, sessionID uuid.UUID) error
}

// Reservation is one participant's booked slot.
type Reservation struct {
	SessionID uuid.UUID
	AccountID string
	Slot      availability.Interval
	EventID   string
}

// BookingLedger records committed slots per account. Reserve fails with
// ErrSlotTaken when any account already has an overlapping reservation
// from another session, and is idempotent for the same session.
type BookingLedger interface {
	Reserve(ctx context.Context, sessionID uuid.UUID, accountIDs []string, slot availability.Interval) error
	SetEventID(ctx context.Context, sessionID uuid.UUID, eventID string) error
	Release(ctx context.Context, sessionID uuid.UUID) error
	Between(ctx context.Context, accountID string, start, end time.Time) ([]Reservation, error)
}
