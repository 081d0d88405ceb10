package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// ExtendHoldCommand refreshes a session's hold.
type ExtendHoldCommand struct {
	UserID    string
	SessionID uuid.UUID
}

// ExtendHoldHandler handles ExtendHoldCommand.
type ExtendHoldHandler struct {
	deps Deps
}

// NewExtendHoldHandler creates an ExtendHoldHandler.
func NewExtendHoldHandler(deps Deps) *ExtendHoldHandler {
	return &ExtendHoldHandler{deps: deps}
}

// Handle pushes the hold expiry out by the hold TTL. A hold that already
// lapsed is expired and the call fails with a conflict.
func (h *ExtendHoldHandler) Handle(ctx context.Context, cmd ExtendHoldCommand) (*services.SessionView, error) {
	var view services.SessionView
	err := h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		sess, err := st.Session(ctx, cmd.SessionID)
		if err != nil {
			return err
		}
		staged := sess.Clone()
		if err := staged.ExtendHold(h.deps.holdTTL(), h.deps.now()); err != nil {
			if errors.Is(err, domain.ErrHoldExpired) && len(staged.DomainEvents()) > 0 {
				if serr := h.deps.Sessions.Save(ctx, st, staged); serr != nil {
					return serr
				}
				h.deps.Sessions.ReleaseHold(ctx, staged.ID())
				h.deps.Sessions.Metrics().Counter(observability.MetricHoldsExpired, 1)
			}
			return err
		}

		holds := h.deps.Sessions.Holds()
		err = holds.Extend(ctx, staged.ID(), *staged.HoldExpiresAt())
		if errors.Is(err, domain.ErrHoldExpired) {
			// The session row is authoritative; restore a lost mirror.
			err = holds.Put(ctx, domain.Hold{
				SessionID:   staged.ID(),
				CandidateID: *staged.HeldCandidateID(),
				ExpiresAt:   *staged.HoldExpiresAt(),
			})
		}
		if err != nil {
			return err
		}
		if err := h.deps.Sessions.Save(ctx, st, staged); err != nil {
			return err
		}
		view = services.ViewOf(staged)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}
