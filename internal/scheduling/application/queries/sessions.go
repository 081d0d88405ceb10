// Package queries answers read-only questions about scheduling sessions.
package queries

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// GetSessionQuery asks for one session with its participant views.
type GetSessionQuery struct {
	UserID    string
	SessionID uuid.UUID
}

// CandidatesQuery asks for a session's ranked candidates.
type CandidatesQuery struct {
	UserID    string
	SessionID uuid.UUID
}

// CandidatesResult lists candidates best first.
type CandidatesResult struct {
	SessionID       uuid.UUID          `json:"session_id"`
	Status          domain.Status      `json:"status"`
	BestCandidateID *uuid.UUID         `json:"best_candidate_id"`
	Candidates      []domain.Candidate `json:"candidates"`
}

// ListSessionsQuery asks for the caller's sessions.
type ListSessionsQuery struct {
	UserID string
}

// Handler answers session queries.
type Handler struct {
	actors       *userstate.Store
	sessions     *services.Sessions
	participants *services.Participants
}

// NewHandler creates a Handler.
func NewHandler(actors *userstate.Store, sessions *services.Sessions, participants *services.Participants) *Handler {
	return &Handler{actors: actors, sessions: sessions, participants: participants}
}

// Get returns the session. Participant calendars are compiled after the
// actor call returns, since they may belong to other users.
func (h *Handler) Get(ctx context.Context, q GetSessionQuery) (*services.SessionView, error) {
	sess, err := h.load(ctx, q.UserID, q.SessionID)
	if err != nil {
		return nil, err
	}
	participants, err := h.participants.Gather(ctx, sess.OrganizerAccountID(), sess.ParticipantIDs(), sess.Window())
	if err != nil {
		return nil, err
	}
	view := services.ViewOf(sess).WithParticipants(participants)
	return &view, nil
}

// Candidates returns the ranked candidates of a session.
func (h *Handler) Candidates(ctx context.Context, q CandidatesQuery) (*CandidatesResult, error) {
	sess, err := h.load(ctx, q.UserID, q.SessionID)
	if err != nil {
		return nil, err
	}
	view := services.ViewOf(sess)
	return &CandidatesResult{
		SessionID:       view.SessionID,
		Status:          view.Status,
		BestCandidateID: view.BestCandidateID,
		Candidates:      view.Candidates,
	}, nil
}

// List returns the caller's sessions newest first.
func (h *Handler) List(ctx context.Context, q ListSessionsQuery) ([]services.SessionView, error) {
	var out []services.SessionView
	err := h.actors.Do(ctx, q.UserID, func(ctx context.Context, st *userstate.State) error {
		all, err := st.Sessions(ctx)
		if err != nil {
			return err
		}
		now := h.sessions.Clock().Now()
		out = make([]services.SessionView, 0, len(all))
		for _, sess := range all {
			if sess.HoldExpired(now) {
				if sess, err = h.sessions.Live(ctx, st, sess.ID()); err != nil {
					return err
				}
			}
			out = append(out, services.ViewOf(sess))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Handler) load(ctx context.Context, userID string, id uuid.UUID) (*domain.Session, error) {
	var sess *domain.Session
	err := h.actors.Do(ctx, userID, func(ctx context.Context, st *userstate.State) error {
		live, err := h.sessions.Live(ctx, st, id)
		if err != nil {
			return err
		}
		sess = live.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
