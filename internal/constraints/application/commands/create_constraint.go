package commands

import (
	"context"
	"encoding/json"
	"time"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/constraints/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// CreateConstraintCommand contains the data needed to create a constraint.
type CreateConstraintCommand struct {
	UserID     string
	Kind       string
	ConfigJSON json.RawMessage
	ActiveFrom *time.Time
	ActiveTo   *time.Time
}

// CreateConstraintHandler handles CreateConstraintCommand.
type CreateConstraintHandler struct {
	deps Deps
}

// NewCreateConstraintHandler creates a CreateConstraintHandler.
func NewCreateConstraintHandler(deps Deps) *CreateConstraintHandler {
	return &CreateConstraintHandler{deps: deps}
}

// Handle validates and stores a new constraint.
func (h *CreateConstraintHandler) Handle(ctx context.Context, cmd CreateConstraintCommand) (*domain.View, error) {
	if err := calendar.RequireFeature(ctx, h.deps.Gate, cmd.UserID, calendar.FeatureConstraints); err != nil {
		return nil, err
	}

	var view domain.View
	err := h.deps.Actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		c, err := domain.NewConstraint(cmd.UserID, cmd.Kind, cmd.ConfigJSON, cmd.ActiveFrom, cmd.ActiveTo, h.deps.Clock.Now())
		if err != nil {
			return err
		}
		save := func(txCtx context.Context) error { return h.deps.Repo.Save(txCtx, c) }
		if err := h.deps.persist(ctx, cmd.UserID, save, c); err != nil {
			return err
		}
		c.ClearDomainEvents()
		st.PutConstraint(c)
		view = c.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}
