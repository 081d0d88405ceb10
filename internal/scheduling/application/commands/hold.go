package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// HoldCommand reserves a candidate without booking it.
type HoldCommand struct {
	UserID      string
	SessionID   uuid.UUID
	CandidateID uuid.UUID
}

// HoldHandler handles HoldCommand.
type HoldHandler struct {
	deps Deps
}

// NewHoldHandler creates a HoldHandler.
func NewHoldHandler(deps Deps) *HoldHandler {
	return &HoldHandler{deps: deps}
}

// Handle moves a candidates_ready session to held. Holding the already
// held candidate again is a no-op.
func (h *HoldHandler) Handle(ctx context.Context, cmd HoldCommand) (*services.SessionView, error) {
	var view services.SessionView
	err := h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		sess, err := h.deps.Sessions.Live(ctx, st, cmd.SessionID)
		if err != nil {
			return err
		}
		staged := sess.Clone()
		if err := staged.BeginHold(cmd.CandidateID, h.deps.holdTTL(), h.deps.now()); err != nil {
			return err
		}
		if err := h.deps.storeHold(ctx, st, staged); err != nil {
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
