package commands

import (
	"context"
	"time"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// ProposeCommand opens a scheduling session.
type ProposeCommand struct {
	UserID                string
	OrganizerAccountID    string
	Title                 string
	DurationMinutes       int
	WindowStart           time.Time
	WindowEnd             time.Time
	ParticipantAccountIDs []string
	Constraints           domain.SoftConstraints
}

// ProposeHandler handles ProposeCommand.
type ProposeHandler struct {
	deps Deps
}

// NewProposeHandler creates a ProposeHandler.
func NewProposeHandler(deps Deps) *ProposeHandler {
	return &ProposeHandler{deps: deps}
}

// Handle validates the proposal, generates candidates from the
// participants' calendars as the organizer sees them and stores the
// session in candidates_ready.
func (h *ProposeHandler) Handle(ctx context.Context, cmd ProposeCommand) (*services.SessionView, error) {
	if err := calendar.RequireFeature(ctx, h.deps.Gate, cmd.UserID, calendar.FeatureScheduling); err != nil {
		return nil, err
	}
	owned, err := calendar.LoadAccountSet(ctx, h.deps.Accounts, cmd.UserID)
	if err != nil {
		return nil, err
	}

	now := h.deps.now()
	sess, err := domain.NewSession(domain.Proposal{
		UserID:             cmd.UserID,
		OrganizerAccountID: organizerFor(owned, cmd),
		Title:              cmd.Title,
		DurationMinutes:    cmd.DurationMinutes,
		WindowStart:        cmd.WindowStart,
		WindowEnd:          cmd.WindowEnd,
		ParticipantIDs:     cmd.ParticipantAccountIDs,
		Soft:               cmd.Constraints,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := owned.Require(sess.OrganizerAccountID()); err != nil {
		return nil, err
	}

	participants, err := h.deps.Participants.Gather(ctx, sess.OrganizerAccountID(), sess.ParticipantIDs(), sess.Window())
	if err != nil {
		return nil, err
	}
	candidates := domain.Generate(domain.GenerateInput{
		Duration:  sess.Duration(),
		Window:    sess.Window(),
		Busy:      services.BusySets(participants),
		Soft:      sess.Soft(),
		NotBefore: now,
	})
	if err := sess.AttachCandidates(candidates, now); err != nil {
		return nil, err
	}

	err = h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		return h.deps.Sessions.Save(ctx, st, sess)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Sessions.Metrics().Counter(observability.MetricSessionsProposed, 1)
	h.deps.Sessions.Logger().Info("scheduling session proposed",
		"session_id", sess.ID(),
		"user_id", cmd.UserID,
		"participants", len(sess.ParticipantIDs()),
		"candidates", len(candidates),
	)
	view := services.ViewOf(sess).WithParticipants(participants)
	return &view, nil
}

// organizerFor picks the explicit organizer, else the first participant
// the caller owns, else the caller's first account.
func organizerFor(owned calendar.AccountSet, cmd ProposeCommand) string {
	if cmd.OrganizerAccountID != "" {
		return cmd.OrganizerAccountID
	}
	for _, id := range cmd.ParticipantAccountIDs {
		if owned.Has(id) {
			return id
		}
	}
	if ids := owned.IDs(); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
