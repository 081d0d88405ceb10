package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/userstate"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// CancelCommand ends a session before anything was held.
type CancelCommand struct {
	UserID    string
	SessionID uuid.UUID
}

// CancelHandler handles CancelCommand.
type CancelHandler struct {
	deps Deps
}

// NewCancelHandler creates a CancelHandler.
func NewCancelHandler(deps Deps) *CancelHandler {
	return &CancelHandler{deps: deps}
}

// Handle cancels a pending or candidates_ready session.
func (h *CancelHandler) Handle(ctx context.Context, cmd CancelCommand) (*services.SessionView, error) {
	var view services.SessionView
	err := h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		sess, err := h.deps.Sessions.Live(ctx, st, cmd.SessionID)
		if err != nil {
			return err
		}
		staged := sess.Clone()
		if err := staged.Cancel(h.deps.now()); err != nil {
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
	h.deps.Sessions.Metrics().Counter(observability.MetricSessionsCancelled, 1)
	return &view, nil
}
