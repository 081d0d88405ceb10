// Package queries answers constraint reads from the owning actor's cache.
package queries

import (
	"context"

	"github.com/google/uuid"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/constraints/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// ListConstraintsQuery lists the caller's constraints.
type ListConstraintsQuery struct {
	UserID string
}

// GetConstraintQuery fetches one constraint.
type GetConstraintQuery struct {
	UserID       string
	ConstraintID uuid.UUID
}

// Handler serves both constraint queries.
type Handler struct {
	reader userstate.Reader
	gate   calendar.TierGate
}

// NewHandler creates a Handler.
func NewHandler(reader userstate.Reader, gate calendar.TierGate) *Handler {
	return &Handler{reader: reader, gate: gate}
}

// List returns views in creation order.
func (h *Handler) List(ctx context.Context, q ListConstraintsQuery) ([]domain.View, error) {
	if err := calendar.RequireFeature(ctx, h.gate, q.UserID, calendar.FeatureConstraints); err != nil {
		return nil, err
	}
	cs, err := h.reader.ConstraintsFor(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.View, len(cs))
	for i, c := range cs {
		out[i] = c.View()
	}
	return out, nil
}

// Get returns one constraint or ErrConstraintNotFound.
func (h *Handler) Get(ctx context.Context, q GetConstraintQuery) (*domain.View, error) {
	views, err := h.List(ctx, ListConstraintsQuery{UserID: q.UserID})
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.ID == q.ConstraintID {
			return &v, nil
		}
	}
	return nil, domain.ErrConstraintNotFound
}
