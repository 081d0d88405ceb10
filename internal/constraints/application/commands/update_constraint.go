package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/constraints/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// UpdateConstraintCommand replaces a constraint's kind, configuration and
// activity bounds.
type UpdateConstraintCommand struct {
	UserID       string
	ConstraintID uuid.UUID
	Kind         string
	ConfigJSON   json.RawMessage
	ActiveFrom   *time.Time
	ActiveTo     *time.Time
}

// UpdateConstraintHandler handles UpdateConstraintCommand.
type UpdateConstraintHandler struct {
	deps Deps
}

// NewUpdateConstraintHandler creates an UpdateConstraintHandler.
func NewUpdateConstraintHandler(deps Deps) *UpdateConstraintHandler {
	return &UpdateConstraintHandler{deps: deps}
}

// Handle updates the constraint in place; ID and created_at are kept.
func (h *UpdateConstraintHandler) Handle(ctx context.Context, cmd UpdateConstraintCommand) (*domain.View, error) {
	if err := calendar.RequireFeature(ctx, h.deps.Gate, cmd.UserID, calendar.FeatureConstraints); err != nil {
		return nil, err
	}

	var view domain.View
	err := h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		existing, err := st.Constraint(cmd.ConstraintID)
		if err != nil {
			return err
		}
		staged := existing.Snapshot()
		if err := staged.Update(cmd.Kind, cmd.ConfigJSON, cmd.ActiveFrom, cmd.ActiveTo, h.deps.Clock.Now()); err != nil {
			return err
		}
		save := func(txCtx context.Context) error { return h.deps.Repo.Save(txCtx, staged) }
		if err := h.deps.persist(ctx, cmd.UserID, save, staged); err != nil {
			return err
		}
		staged.ClearDomainEvents()
		st.PutConstraint(staged)
		view = staged.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}
