package queries

import (
	"context"

	"github.com/google/uuid"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// GetMatrixQuery asks for the caller's full matrix.
type GetMatrixQuery struct {
	UserID string
}

// MatrixView is the grid read model. Self-pairs are present but marked
// not applicable and carry no level.
type MatrixView struct {
	PolicyID   uuid.UUID     `json:"policy_id"`
	AccountIDs []string      `json:"account_ids"`
	Cells      []domain.Cell `json:"cells"`
	Edges      []domain.Edge `json:"edges"`
}

// GetMatrixHandler handles GetMatrixQuery.
type GetMatrixHandler struct {
	reader   userstate.Reader
	accounts calendar.AccountDirectory
}

// NewGetMatrixHandler creates a GetMatrixHandler.
func NewGetMatrixHandler(reader userstate.Reader, accounts calendar.AccountDirectory) *GetMatrixHandler {
	return &GetMatrixHandler{reader: reader, accounts: accounts}
}

// Handle returns the grid over the caller's accounts.
func (h *GetMatrixHandler) Handle(ctx context.Context, q GetMatrixQuery) (*MatrixView, error) {
	owned, err := calendar.LoadAccountSet(ctx, h.accounts, q.UserID)
	if err != nil {
		return nil, err
	}
	m, err := h.reader.Matrix(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	ids := owned.IDs()
	edges := m.Edges()
	if edges == nil {
		edges = []domain.Edge{}
	}
	if ids == nil {
		ids = []string{}
	}
	return &MatrixView{
		PolicyID:   m.ID(),
		AccountIDs: ids,
		Cells:      m.Grid(ids),
		Edges:      edges,
	}, nil
}
