package commands

import (
	"context"

	"github.com/google/uuid"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// DeleteConstraintCommand removes a constraint.
type DeleteConstraintCommand struct {
	UserID       string
	ConstraintID uuid.UUID
}

// DeleteConstraintHandler handles DeleteConstraintCommand.
type DeleteConstraintHandler struct {
	deps Deps
}

// NewDeleteConstraintHandler creates a DeleteConstraintHandler.
func NewDeleteConstraintHandler(deps Deps) *DeleteConstraintHandler {
	return &DeleteConstraintHandler{deps: deps}
}

// Handle deletes the constraint.
func (h *DeleteConstraintHandler) Handle(ctx context.Context, cmd DeleteConstraintCommand) error {
	if err := calendar.RequireFeature(ctx, h.deps.Gate, cmd.UserID, calendar.FeatureConstraints); err != nil {
		return err
	}

	return h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		existing, err := st.Constraint(cmd.ConstraintID)
		if err != nil {
			return err
		}
		staged := existing.Snapshot()
		staged.MarkDeleted(h.deps.Clock.Now())
		del := func(txCtx context.Context) error { return h.deps.Repo.Delete(txCtx, cmd.UserID, cmd.ConstraintID) }
		if err := h.deps.persist(ctx, cmd.UserID, del, staged); err != nil {
			return err
		}
		st.RemoveConstraint(cmd.ConstraintID)
		return nil
	})
}
