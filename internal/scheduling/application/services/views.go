package services

import (
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
)

// SessionView is the read model of a session.
type SessionView struct {
	SessionID             uuid.UUID              `json:"session_id"`
	Status                domain.Status          `json:"status"`
	Title                 string                 `json:"title,omitempty"`
	OrganizerAccountID    string                 `json:"organizer_account_id"`
	DurationMinutes       int                    `json:"duration_minutes"`
	WindowStart           time.Time              `json:"window_start"`
	WindowEnd             time.Time              `json:"window_end"`
	ParticipantAccountIDs []string               `json:"participant_account_ids"`
	Constraints           domain.SoftConstraints `json:"constraints"`
	Candidates            []domain.Candidate     `json:"candidates"`
	BestCandidateID       *uuid.UUID             `json:"best_candidate_id"`
	HeldCandidateID       *uuid.UUID             `json:"held_candidate_id,omitempty"`
	HoldExpiresAt         *time.Time             `json:"hold_expires_at,omitempty"`
	CommittedCandidateID  *uuid.UUID             `json:"committed_candidate_id,omitempty"`
	CommittedEventID      string                 `json:"committed_event_id,omitempty"`
	CommittedAt           *time.Time             `json:"committed_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	Participants          []ParticipantView      `json:"participants,omitempty"`
}

// ParticipantView is a participant's busy time filtered for the organizer.
type ParticipantView struct {
	AccountID string                      `json:"account_id"`
	Level     policy.DetailLevel          `json:"detail_level"`
	IsDefault bool                        `json:"is_default"`
	Busy      []availability.BusyInterval `json:"busy"`
	Blocks    []availability.VisibleBlock `json:"blocks"`
}

// ViewOf builds the read model with candidates ranked best first.
func ViewOf(s *domain.Session) SessionView {
	v := SessionView{
		SessionID:             s.ID(),
		Status:                s.Status(),
		Title:                 s.Title(),
		OrganizerAccountID:    s.OrganizerAccountID(),
		DurationMinutes:       int(s.Duration() / time.Minute),
		WindowStart:           s.Window().Start,
		WindowEnd:             s.Window().End,
		ParticipantAccountIDs: s.ParticipantIDs(),
		Constraints:           s.Soft(),
		Candidates:            s.RankedCandidates(),
		HeldCandidateID:       s.HeldCandidateID(),
		HoldExpiresAt:         s.HoldExpiresAt(),
		CommittedCandidateID:  s.CommittedCandidateID(),
		CommittedEventID:      s.CommittedEventID(),
		CommittedAt:           s.CommittedAt(),
		CreatedAt:             s.CreatedAt(),
		UpdatedAt:             s.UpdatedAt(),
	}
	if v.Candidates == nil {
		v.Candidates = []domain.Candidate{}
	}
	if best, ok := s.Best(); ok {
		id := best.ID
		v.BestCandidateID = &id
	}
	return v
}

// WithParticipants attaches the filtered participant views.
func (v SessionView) WithParticipants(ps []Participant) SessionView {
	v.Participants = make([]ParticipantView, len(ps))
	for i, p := range ps {
		v.Participants[i] = ParticipantView{
			AccountID: p.AccountID,
			Level:     p.View.Level,
			IsDefault: p.Resolution.IsDefault,
			Busy:      p.View.Busy,
			Blocks:    p.View.Blocks,
		}
	}
	return v
}
