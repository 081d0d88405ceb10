package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/internal/userstate"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// CommitCommand books a candidate.
type CommitCommand struct {
	UserID      string
	SessionID   uuid.UUID
	CandidateID uuid.UUID
}

// CommitHandler handles CommitCommand.
type CommitHandler struct {
	deps Deps
}

// NewCommitHandler creates a CommitHandler.
func NewCommitHandler(deps Deps) *CommitHandler {
	return &CommitHandler{deps: deps}
}

// booking is what the commit captured from the session before leaving the
// actor.
type booking struct {
	userID       string
	sessionID    uuid.UUID
	candidateID  uuid.UUID
	title        string
	organizer    string
	participants []string
	slot         availability.Interval
}

// Handle commits in three steps. Inside the actor the session is held
// (implicitly when candidates_ready) and marked in flight. Outside it the
// slot is re-checked against fresh calendars, reserved in the ledger and
// booked. Back inside, the hold is finalized; if it lapsed meanwhile the
// booking is retracted and the commit fails with a conflict.
func (h *CommitHandler) Handle(ctx context.Context, cmd CommitCommand) (*services.SessionView, error) {
	b, done, err := h.begin(ctx, cmd)
	if err != nil {
		h.countConflict(err)
		return nil, err
	}
	if done != nil {
		return done, nil
	}

	eventID, err := h.book(ctx, b)
	if err != nil {
		h.countConflict(err)
		return nil, err
	}

	view, err := h.finalize(ctx, b, eventID)
	if err != nil {
		h.retract(ctx, b.sessionID, eventID)
		h.countConflict(err)
		return nil, err
	}

	h.deps.Sessions.Metrics().Counter(observability.MetricSessionsCommitted, 1)
	h.deps.Sessions.Logger().Info("scheduling session committed",
		"session_id", b.sessionID,
		"candidate_id", b.candidateID,
		"event_id", eventID,
		"user_id", cmd.UserID,
	)
	return view, nil
}

// begin returns the finished view when the same candidate was already
// committed.
func (h *CommitHandler) begin(ctx context.Context, cmd CommitCommand) (booking, *services.SessionView, error) {
	var (
		b    booking
		done *services.SessionView
	)
	err := h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		expired, err := h.deps.Sessions.Expire(ctx, st, cmd.SessionID)
		if err != nil {
			return err
		}
		if expired {
			return domain.ErrHoldExpired
		}
		sess, err := st.Session(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		if sess.Status() == domain.StatusCommitted {
			if id := sess.CommittedCandidateID(); id != nil && *id == cmd.CandidateID {
				v := services.ViewOf(sess)
				done = &v
				return nil
			}
			return domain.ErrAlreadyCommitted
		}

		now := h.deps.now()
		if sess.Status() == domain.StatusCandidatesReady {
			staged := sess.Clone()
			if err := staged.BeginHold(cmd.CandidateID, h.deps.holdTTL(), now); err != nil {
				return err
			}
			if err := h.deps.storeHold(ctx, st, staged); err != nil {
				return err
			}
			sess = staged
		} else if !sess.CommitInFlight() && h.deps.Sessions.HoldLost(ctx, sess) {
			staged := sess.Clone()
			staged.ReleaseHold("lapsed", now)
			if err := h.deps.Sessions.Save(ctx, st, staged); err != nil {
				return err
			}
			h.deps.Sessions.ReleaseHold(ctx, staged.ID())
			h.deps.Sessions.Metrics().Counter(observability.MetricHoldsExpired, 1)
			return domain.ErrHoldExpired
		}

		if err := sess.StartCommit(cmd.CandidateID, now); err != nil {
			if errors.Is(err, domain.ErrHoldExpired) && len(sess.DomainEvents()) > 0 {
				if serr := h.deps.Sessions.Save(ctx, st, sess); serr != nil {
					return serr
				}
				h.deps.Sessions.ReleaseHold(ctx, sess.ID())
			}
			return err
		}

		cand, _ := sess.Candidate(cmd.CandidateID)
		b = booking{
			userID:       cmd.UserID,
			sessionID:    sess.ID(),
			candidateID:  cand.ID,
			title:        sess.Title(),
			organizer:    sess.OrganizerAccountID(),
			participants: sess.ParticipantIDs(),
			slot:         cand.Interval(),
		}
		return nil
	})
	return b, done, err
}

// book re-validates freshness, reserves the slot and creates the event.
// On failure the session is returned to a consistent state: conflicts
// release the hold, other errors keep it so the caller can retry.
func (h *CommitHandler) book(ctx context.Context, b booking) (string, error) {
	// A non-committed session owns no reservation; drop leftovers from an
	// interrupted attempt so they don't count against the re-check.
	if err := h.deps.Ledger.Release(ctx, b.sessionID); err != nil {
		return "", h.abort(ctx, b, err)
	}

	participants, err := h.deps.Participants.Gather(ctx, b.organizer, b.participants, b.slot)
	if err != nil {
		return "", h.abort(ctx, b, err)
	}
	if !services.SlotFree(participants, b.slot) {
		return "", h.conflict(ctx, b, "calendars changed", domain.ErrSlotTaken)
	}

	if err := h.deps.Ledger.Reserve(ctx, b.sessionID, b.participants, b.slot); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			return "", h.conflict(ctx, b, "slot reserved by another session", err)
		}
		return "", h.abort(ctx, b, err)
	}

	eventID, err := h.deps.Creator.CreateEvent(ctx, calendar.Booking{
		SessionID:          b.sessionID.String(),
		CandidateID:        b.candidateID.String(),
		Title:              b.title,
		Start:              b.slot.Start,
		End:                b.slot.End,
		OrganizerAccountID: b.organizer,
		AccountIDs:         b.participants,
		Attendees:          services.Emails(participants),
	})
	if err != nil {
		h.releaseLedger(ctx, b.sessionID)
		return "", h.abort(ctx, b, err)
	}
	if err := h.deps.Ledger.SetEventID(ctx, b.sessionID, eventID); err != nil {
		h.retract(ctx, b.sessionID, eventID)
		return "", h.abort(ctx, b, err)
	}
	return eventID, nil
}

func (h *CommitHandler) finalize(ctx context.Context, b booking, eventID string) (*services.SessionView, error) {
	var view services.SessionView
	err := h.deps.Actors.Do(context.WithoutCancel(ctx), b.userID, func(ctx context.Context, st *userstate.State) error {
		sess, err := st.Session(ctx, b.sessionID)
		if err != nil {
			return err
		}
		staged := sess.Clone()
		if err := staged.FinalizeCommit(b.candidateID, eventID, h.deps.now()); err != nil {
			sess.AbortCommit()
			if len(staged.DomainEvents()) > 0 {
				if serr := h.deps.Sessions.Save(ctx, st, staged); serr != nil {
					return serr
				}
				h.deps.Sessions.ReleaseHold(ctx, staged.ID())
			}
			return err
		}
		if err := h.deps.Sessions.Save(ctx, st, staged); err != nil {
			sess.AbortCommit()
			return err
		}
		h.deps.Sessions.ReleaseHold(ctx, staged.ID())
		view = services.ViewOf(staged)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// conflict releases the hold and returns err.
func (h *CommitHandler) conflict(ctx context.Context, b booking, reason string, err error) error {
	rerr := h.deps.Actors.Do(context.WithoutCancel(ctx), b.userID, func(ctx context.Context, st *userstate.State) error {
		sess, err := st.Session(ctx, b.sessionID)
		if err != nil {
			return err
		}
		staged := sess.Clone()
		staged.ReleaseHold(reason, h.deps.now())
		if err := h.deps.Sessions.Save(ctx, st, staged); err != nil {
			sess.AbortCommit()
			return err
		}
		h.deps.Sessions.ReleaseHold(ctx, staged.ID())
		return nil
	})
	if rerr != nil {
		h.deps.Sessions.Logger().Warn("failed to release hold after conflict", "session_id", b.sessionID, "error", rerr)
	}
	return err
}

// abort clears the in-flight marker and keeps the hold.
func (h *CommitHandler) abort(ctx context.Context, b booking, err error) error {
	rerr := h.deps.Actors.Do(context.WithoutCancel(ctx), b.userID, func(ctx context.Context, st *userstate.State) error {
		sess, err := st.Session(ctx, b.sessionID)
		if err != nil {
			return err
		}
		sess.AbortCommit()
		return nil
	})
	if rerr != nil {
		h.deps.Sessions.Logger().Warn("failed to abort commit", "session_id", b.sessionID, "error", rerr)
	}
	return err
}

func (h *CommitHandler) releaseLedger(ctx context.Context, sessionID uuid.UUID) {
	if err := h.deps.Ledger.Release(context.WithoutCancel(ctx), sessionID); err != nil {
		h.deps.Sessions.Logger().Warn("failed to release reservation", "session_id", sessionID, "error", err)
	}
}

// retract undoes a booking whose session could not be finalized.
func (h *CommitHandler) retract(ctx context.Context, sessionID uuid.UUID, eventID string) {
	ctx = context.WithoutCancel(ctx)
	if err := h.deps.Creator.DeleteEvent(ctx, eventID); err != nil {
		h.deps.Sessions.Logger().Error("failed to retract booked event",
			"session_id", sessionID, "event_id", eventID, "error", err)
	}
	h.releaseLedger(ctx, sessionID)
}

func (h *CommitHandler) countConflict(err error) {
	if apperr.KindOf(err) == apperr.KindConflict {
		h.deps.Sessions.Metrics().Counter(observability.MetricCommitConflicts, 1)
	}
}
