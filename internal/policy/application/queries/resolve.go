package queries

import (
	"context"

	"github.com/google/uuid"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// ResolveQuery resolves one directed pair.
type ResolveQuery struct {
	UserID   string
	MatrixID uuid.UUID
	From     string
	To       string
}

// ResolveResult mirrors domain.Resolution for transport.
type ResolveResult struct {
	From          string             `json:"from_account_id"`
	To            string             `json:"to_account_id"`
	Level         domain.DetailLevel `json:"detail_level,omitempty"`
	IsDefault     bool               `json:"is_default"`
	NotApplicable bool               `json:"not_applicable,omitempty"`
}

// ResolveHandler handles ResolveQuery.
type ResolveHandler struct {
	reader   userstate.Reader
	accounts calendar.AccountDirectory
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(reader userstate.Reader, accounts calendar.AccountDirectory) *ResolveHandler {
	return &ResolveHandler{reader: reader, accounts: accounts}
}

// Handle resolves q.From→q.To in the caller's matrix.
func (h *ResolveHandler) Handle(ctx context.Context, q ResolveQuery) (*ResolveResult, error) {
	if q.MatrixID != domain.MatrixIDFor(q.UserID) {
		return nil, domain.ErrMatrixNotFound
	}
	if q.From == "" {
		return nil, apperr.Validation("from", "is required")
	}
	if q.To == "" {
		return nil, apperr.Validation("to", "is required")
	}
	owned, err := calendar.LoadAccountSet(ctx, h.accounts, q.UserID)
	if err != nil {
		return nil, err
	}
	if err := owned.Require(q.From, q.To); err != nil {
		return nil, err
	}
	r, err := h.reader.Resolve(ctx, q.UserID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	return &ResolveResult{
		From:          q.From,
		To:            q.To,
		Level:         r.Level,
		IsDefault:     r.IsDefault,
		NotApplicable: r.NotApplicable,
	}, nil
}
