package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

// Routing keys.
const (
	RoutingKeyProposed        = "scheduling.session.proposed"
	RoutingKeyCandidatesReady = "scheduling.session.candidates_ready"
	RoutingKeyHeld            = "scheduling.session.held"
	RoutingKeyCommitted       = "scheduling.session.committed"
	RoutingKeyCancelled       = "scheduling.session.cancelled"
	RoutingKeyHoldExpired     = "scheduling.session.hold_expired"
	RoutingKeyHoldReleased    = "scheduling.session.hold_released"
)

var (
	_ sharedDomain.DomainEvent = (*Proposed)(nil)
	_ sharedDomain.DomainEvent = (*CandidatesReady)(nil)
	_ sharedDomain.DomainEvent = (*Held)(nil)
	_ sharedDomain.DomainEvent = (*HoldEnded)(nil)
	_ sharedDomain.DomainEvent = (*Committed)(nil)
	_ sharedDomain.DomainEvent = (*Cancelled)(nil)
)

// Proposed is emitted when a session is created.
type Proposed struct {
	sharedDomain.BaseEvent
	UserID          string    `json:"user_id"`
	DurationMinutes int       `json:"duration_minutes"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	ParticipantIDs  []string  `json:"participant_account_ids"`
}

func newProposed(s *Session, now time.Time) *Proposed {
	return &Proposed{
		BaseEvent:       sharedDomain.NewBaseEvent(s.ID(), AggregateType, RoutingKeyProposed, now),
		UserID:          s.userID,
		DurationMinutes: int(s.duration / time.Minute),
		WindowStart:     s.window.Start,
		WindowEnd:       s.window.End,
		ParticipantIDs:  s.ParticipantIDs(),
	}
}

// CandidatesReady is emitted once generation completes.
type CandidatesReady struct {
	sharedDomain.BaseEvent
	CandidateCount int `json:"candidate_count"`
}

func newCandidatesReady(s *Session, now time.Time) *CandidatesReady {
	return &CandidatesReady{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), AggregateType, RoutingKeyCandidatesReady, now),
		CandidateCount: len(s.candidates),
	}
}

// Held is emitted when a hold begins or is extended.
type Held struct {
	sharedDomain.BaseEvent
	CandidateID uuid.UUID `json:"candidate_id"`
	ExpiresAt   time.Time `json:"hold_expires_at"`
}

func newHeld(s *Session, now time.Time) *Held {
	return &Held{
		BaseEvent:   sharedDomain.NewBaseEvent(s.ID(), AggregateType, RoutingKeyHeld, now),
		CandidateID: *s.heldCandidateID,
		ExpiresAt:   *s.holdExpiresAt,
	}
}

// HoldEnded is emitted when a hold lapses or is released after a failed
// commit. The routing key tells which.
type HoldEnded struct {
	sharedDomain.BaseEvent
	CandidateID uuid.UUID `json:"candidate_id"`
	Reason      string    `json:"reason"`
}

func newHoldEnded(s *Session, routingKey string, candidateID uuid.UUID, reason string, now time.Time) *HoldEnded {
	return &HoldEnded{
		BaseEvent:   sharedDomain.NewBaseEvent(s.ID(), AggregateType, routingKey, now),
		CandidateID: candidateID,
		Reason:      reason,
	}
}

// Committed is emitted when the booking is finalized.
type Committed struct {
	sharedDomain.BaseEvent
	CandidateID   uuid.UUID `json:"candidate_id"`
	BookedEventID string    `json:"event_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

func newCommitted(s *Session, now time.Time) *Committed {
	c, _ := s.Candidate(*s.committedCandidateID)
	return &Committed{
		BaseEvent:     sharedDomain.NewBaseEvent(s.ID(), AggregateType, RoutingKeyCommitted, now),
		CandidateID:   c.ID,
		BookedEventID: s.committedEventID,
		Start:         c.Start,
		End:           c.End,
	}
}

// Cancelled is emitted when a session is cancelled.
type Cancelled struct {
	sharedDomain.BaseEvent
}

func newCancelled(s *Session, now time.Time) *Cancelled {
	return &Cancelled{BaseEvent: sharedDomain.NewBaseEvent(s.ID(), AggregateType, RoutingKeyCancelled, now)}
}
