// Package domain holds the scheduling session state machine and candidate
// scoring.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusCandidatesReady Status = "candidates_ready"
	StatusHeld            Status = "held"
	StatusCommitted       Status = "committed"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCommitted || s == StatusCancelled }

// Proposal limits.
const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
	MaxWindow          = 14 * 24 * time.Hour
	MaxParticipants    = 20
)

var (
	ErrSessionNotFound   = apperr.NotFound("session not found")
	ErrCandidateNotFound = apperr.NotFound("candidate not found in session")
	ErrNotReady          = apperr.Conflict("session has no candidates to hold")
	ErrAlreadyHeld       = apperr.Conflict("session is held for another candidate")
	ErrNotHeld           = apperr.Conflict("session is not held")
	ErrHoldExpired       = apperr.Conflict("hold has expired")
	ErrAlreadyCommitted  = apperr.Conflict("session is already committed")
	ErrCancelled         = apperr.Conflict("session is cancelled")
	ErrCannotCancel      = apperr.Conflict("session can only be cancelled while pending or candidates_ready")
	ErrSlotTaken         = apperr.Conflict("slot is no longer free")
	ErrCommitInFlight    = apperr.Conflict("a commit is already in progress")
)

// AggregateType names sessions in events.
const AggregateType = "SchedulingSession"

// Proposal is the validated input of a new session.
type Proposal struct {
	UserID             string
	OrganizerAccountID string
	Title              string
	DurationMinutes    int
	WindowStart        time.Time
	WindowEnd          time.Time
	ParticipantIDs     []string
	Soft               SoftConstraints
}

// Validate checks a proposal against the session limits.
func (p Proposal) Validate(now time.Time) error {
	if p.DurationMinutes <= 0 {
		return apperr.Validation("duration_minutes", "must be greater than 0")
	}
	if p.DurationMinutes < MinDurationMinutes || p.DurationMinutes > MaxDurationMinutes {
		return apperr.Validation("duration_minutes", "must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)
	}
	if p.WindowStart.IsZero() {
		return apperr.Validation("window_start", "is required")
	}
	if p.WindowEnd.IsZero() {
		return apperr.Validation("window_end", "is required")
	}
	if !p.WindowStart.Before(p.WindowEnd) {
		return apperr.Validation("window_end", "must be after window_start")
	}
	if p.WindowEnd.Sub(p.WindowStart) > MaxWindow {
		return apperr.Validation("window_end", "window must not exceed 14 days")
	}
	if !p.WindowEnd.After(now) {
		return apperr.Validation("window_end", "must be in the future")
	}
	if time.Duration(p.DurationMinutes)*time.Minute > p.WindowEnd.Sub(p.WindowStart) {
		return apperr.Validation("duration_minutes", "must fit inside the window")
	}
	if len(p.ParticipantIDs) == 0 {
		return apperr.Validation("participant_account_ids", "must contain at least one account")
	}
	if len(p.ParticipantIDs) > MaxParticipants {
		return apperr.Validation("participant_account_ids", "must contain at most %d accounts", MaxParticipants)
	}
	seen := make(map[string]bool, len(p.ParticipantIDs))
	for _, id := range p.ParticipantIDs {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("participant_account_ids", "must not contain empty ids")
		}
		if seen[id] {
			return apperr.Validation("participant_account_ids", "duplicate account %q", id)
		}
		seen[id] = true
	}
	if p.OrganizerAccountID == "" {
		return apperr.Validation("organizer_account_id", "is required")
	}
	return p.Soft.Validate()
}

// Session is the scheduling aggregate.
type Session struct {
	sharedDomain.BaseAggregateRoot
	userID         string
	organizerID    string
	title          string
	duration       time.Duration
	window         availability.Interval
	participantIDs []string
	soft           SoftConstraints
	status         Status
	candidates     []Candidate

	heldCandidateID      *uuid.UUID
	holdExpiresAt        *time.Time
	committedCandidateID *uuid.UUID
	committedEventID     string
	committedAt          *time.Time

	// commitInFlight is in-memory only; it makes a concurrent commit on
	// the same session fail fast instead of racing the first one.
	commitInFlight bool
}

// NewSession validates a proposal and creates a pending session.
func NewSession(p Proposal, now time.Time) (*Session, error) {
	if err := p.Validate(now); err != nil {
		return nil, err
	}
	s := &Session{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(uuid.New(), now),
		userID:            p.UserID,
		organizerID:       p.OrganizerAccountID,
		title:             strings.TrimSpace(p.Title),
		duration:          time.Duration(p.DurationMinutes) * time.Minute,
		window:            availability.NewInterval(p.WindowStart, p.WindowEnd),
		participantIDs:    append([]string(nil), p.ParticipantIDs...),
		soft:              p.Soft,
		status:            StatusPending,
	}
	s.AddDomainEvent(newProposed(s, now))
	return s, nil
}

// SessionState is the persisted form of a session.
type SessionState struct {
	Entity               sharedDomain.BaseEntity
	Version              int
	UserID               string
	OrganizerAccountID   string
	Title                string
	DurationMinutes      int
	Window               availability.Interval
	ParticipantIDs       []string
	Soft                 SoftConstraints
	Status               Status
	Candidates           []Candidate
	HeldCandidateID      *uuid.UUID
	HoldExpiresAt        *time.Time
	CommittedCandidateID *uuid.UUID
	CommittedEventID     string
	CommittedAt          *time.Time
}

// RehydrateSession rebuilds a stored session.
func RehydrateSession(st SessionState) *Session {
	return &Session{
		BaseAggregateRoot:    sharedDomain.RehydrateBaseAggregateRoot(st.Entity, st.Version),
		userID:               st.UserID,
		organizerID:          st.OrganizerAccountID,
		title:                st.Title,
		duration:             time.Duration(st.DurationMinutes) * time.Minute,
		window:               st.Window,
		participantIDs:       st.ParticipantIDs,
		soft:                 st.Soft,
		status:               st.Status,
		candidates:           st.Candidates,
		heldCandidateID:      st.HeldCandidateID,
		holdExpiresAt:        st.HoldExpiresAt,
		committedCandidateID: st.CommittedCandidateID,
		committedEventID:     st.CommittedEventID,
		committedAt:          st.CommittedAt,
	}
}

// State exports the persisted form.
func (s *Session) State() SessionState {
	return SessionState{
		Entity:               s.BaseEntity,
		Version:              s.Version(),
		UserID:               s.userID,
		OrganizerAccountID:   s.organizerID,
		Title:                s.title,
		DurationMinutes:      int(s.duration / time.Minute),
		Window:               s.window,
		ParticipantIDs:       s.participantIDs,
		Soft:                 s.soft,
		Status:               s.status,
		Candidates:           s.candidates,
		HeldCandidateID:      s.heldCandidateID,
		HoldExpiresAt:        s.holdExpiresAt,
		CommittedCandidateID: s.committedCandidateID,
		CommittedEventID:     s.committedEventID,
		CommittedAt:          s.committedAt,
	}
}

func (s *Session) UserID() string                   { return s.userID }
func (s *Session) OrganizerAccountID() string       { return s.organizerID }
func (s *Session) Title() string                    { return s.title }
func (s *Session) Duration() time.Duration          { return s.duration }
func (s *Session) Window() availability.Interval    { return s.window }
func (s *Session) ParticipantIDs() []string         { return append([]string(nil), s.participantIDs...) }
func (s *Session) Soft() SoftConstraints            { return s.soft }
func (s *Session) Status() Status                   { return s.status }
func (s *Session) HeldCandidateID() *uuid.UUID      { return s.heldCandidateID }
func (s *Session) HoldExpiresAt() *time.Time        { return s.holdExpiresAt }
func (s *Session) CommittedCandidateID() *uuid.UUID { return s.committedCandidateID }
func (s *Session) CommittedEventID() string         { return s.committedEventID }
func (s *Session) CommittedAt() *time.Time          { return s.committedAt }
func (s *Session) CommitInFlight() bool             { return s.commitInFlight }

// Candidates returns candidates in generation order.
func (s *Session) Candidates() []Candidate { return append([]Candidate(nil), s.candidates...) }

// RankedCandidates returns candidates best first, recomputed per call.
func (s *Session) RankedCandidates() []Candidate { return Rank(s.candidates) }

// Best returns the top-ranked candidate, if any.
func (s *Session) Best() (Candidate, bool) {
	ranked := s.RankedCandidates()
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

// Candidate finds a candidate by ID.
func (s *Session) Candidate(id uuid.UUID) (Candidate, bool) {
	for _, c := range s.candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// AttachCandidates completes generation.
func (s *Session) AttachCandidates(cands []Candidate, now time.Time) error {
	switch s.status {
	case StatusPending:
	case StatusCancelled:
		return ErrCancelled
	default:
		return apperr.Conflict("candidates already generated")
	}
	s.candidates = append([]Candidate(nil), cands...)
	s.status = StatusCandidatesReady
	s.Touch(now)
	s.AddDomainEvent(newCandidatesReady(s, now))
	return nil
}

// ExpireHold reverts an elapsed hold. It reports whether it did.
func (s *Session) ExpireHold(now time.Time) bool {
	if s.status != StatusHeld || s.holdExpiresAt == nil || now.Before(*s.holdExpiresAt) {
		return false
	}
	if s.commitInFlight {
		// Expiry is cooperative; the in-flight commit observes it at finalize.
		return false
	}
	held := *s.heldCandidateID
	s.clearHold(now)
	s.AddDomainEvent(newHoldEnded(s, RoutingKeyHoldExpired, held, "expired", now))
	return true
}

// HoldExpired reports whether the current hold has elapsed.
func (s *Session) HoldExpired(now time.Time) bool {
	return s.status == StatusHeld && s.holdExpiresAt != nil && !now.Before(*s.holdExpiresAt)
}

// BeginHold reserves candidateID until now+ttl.
func (s *Session) BeginHold(candidateID uuid.UUID, ttl time.Duration, now time.Time) error {
	s.ExpireHold(now)
	switch s.status {
	case StatusCandidatesReady:
	case StatusHeld:
		if *s.heldCandidateID == candidateID {
			return nil
		}
		return ErrAlreadyHeld
	case StatusCommitted:
		return ErrAlreadyCommitted
	case StatusCancelled:
		return ErrCancelled
	default:
		return ErrNotReady
	}
	if _, ok := s.Candidate(candidateID); !ok {
		return ErrCandidateNotFound
	}
	expires := now.Add(ttl)
	id := candidateID
	s.status = StatusHeld
	s.heldCandidateID = &id
	s.holdExpiresAt = &expires
	s.Touch(now)
	s.AddDomainEvent(newHeld(s, now))
	return nil
}

// ExtendHold pushes the hold expiry to now+ttl. An elapsed hold is
// expired instead and the call fails.
func (s *Session) ExtendHold(ttl time.Duration, now time.Time) error {
	if s.ExpireHold(now) || s.HoldExpired(now) {
		return ErrHoldExpired
	}
	if s.status != StatusHeld {
		return ErrNotHeld
	}
	expires := now.Add(ttl)
	s.holdExpiresAt = &expires
	s.Touch(now)
	s.AddDomainEvent(newHeld(s, now))
	return nil
}

// ReleaseHold reverts a hold after a failed commit.
func (s *Session) ReleaseHold(reason string, now time.Time) {
	s.commitInFlight = false
	if s.status != StatusHeld {
		return
	}
	held := *s.heldCandidateID
	s.clearHold(now)
	s.AddDomainEvent(newHoldEnded(s, RoutingKeyHoldReleased, held, reason, now))
}

func (s *Session) clearHold(now time.Time) {
	s.status = StatusCandidatesReady
	s.heldCandidateID = nil
	s.holdExpiresAt = nil
	s.Touch(now)
}

// StartCommit marks a commit as in flight for the held candidate.
func (s *Session) StartCommit(candidateID uuid.UUID, now time.Time) error {
	if s.commitInFlight {
		return ErrCommitInFlight
	}
	if s.HoldExpired(now) {
		s.ExpireHold(now)
		return ErrHoldExpired
	}
	if s.status != StatusHeld {
		return ErrNotHeld
	}
	if *s.heldCandidateID != candidateID {
		return ErrAlreadyHeld
	}
	s.commitInFlight = true
	return nil
}

// AbortCommit clears the in-flight marker without changing state.
func (s *Session) AbortCommit() { s.commitInFlight = false }

// FinalizeCommit moves a held session to committed. The hold must still be
// live.
func (s *Session) FinalizeCommit(candidateID uuid.UUID, eventID string, now time.Time) error {
	s.commitInFlight = false
	if s.status == StatusCommitted {
		if s.committedCandidateID != nil && *s.committedCandidateID == candidateID {
			return nil
		}
		return ErrAlreadyCommitted
	}
	if s.HoldExpired(now) {
		s.ExpireHold(now)
		return ErrHoldExpired
	}
	if s.status != StatusHeld {
		return ErrNotHeld
	}
	if *s.heldCandidateID != candidateID {
		return ErrAlreadyHeld
	}
	id := candidateID
	s.status = StatusCommitted
	s.committedCandidateID = &id
	s.committedEventID = eventID
	s.committedAt = &now
	s.heldCandidateID = nil
	s.holdExpiresAt = nil
	s.Touch(now)
	s.AddDomainEvent(newCommitted(s, now))
	return nil
}

// Cancel ends a session that has not been held or committed.
func (s *Session) Cancel(now time.Time) error {
	s.ExpireHold(now)
	switch s.status {
	case StatusPending, StatusCandidatesReady:
	case StatusCancelled:
		return ErrCancelled
	default:
		return ErrCannotCancel
	}
	s.status = StatusCancelled
	s.Touch(now)
	s.AddDomainEvent(newCancelled(s, now))
	return nil
}

// Clone returns a deep copy for staging transitions before they are
// stored.
func (s *Session) Clone() *Session {
	cp := RehydrateSession(s.State())
	cp.participantIDs = append([]string(nil), s.participantIDs...)
	cp.candidates = append([]Candidate(nil), s.candidates...)
	cp.heldCandidateID = copyUUID(s.heldCandidateID)
	cp.committedCandidateID = copyUUID(s.committedCandidateID)
	cp.holdExpiresAt = copyTime(s.holdExpiresAt)
	cp.committedAt = copyTime(s.committedAt)
	cp.commitInFlight = s.commitInFlight
	return cp
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
