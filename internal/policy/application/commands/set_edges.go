package commands

import (
	"context"

	"github.com/google/uuid"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	sharedApplication "github.com/felixgeelhaar/meridian/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// SetEdgesCommand replaces the level of a batch of edges.
type SetEdgesCommand struct {
	UserID   string
	MatrixID uuid.UUID
	Edges    []domain.EdgeInput
}

// SetEdgesResult holds the stored edges in request order.
type SetEdgesResult struct {
	PolicyID uuid.UUID     `json:"policy_id"`
	Edges    []domain.Edge `json:"edges"`
}

// SetEdgesHandler handles SetEdgesCommand.
type SetEdgesHandler struct {
	actors     *userstate.Store
	accounts   calendar.AccountDirectory
	repo       domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      sharedDomain.Clock
}

// NewSetEdgesHandler creates a SetEdgesHandler.
func NewSetEdgesHandler(actors *userstate.Store, accounts calendar.AccountDirectory, repo domain.Repository,
	outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clock sharedDomain.Clock) *SetEdgesHandler {
	return &SetEdgesHandler{
		actors:     actors,
		accounts:   accounts,
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clock,
	}
}

// Handle applies the batch atomically: any invalid edge rejects all of
// them and leaves the stored matrix untouched.
func (h *SetEdgesHandler) Handle(ctx context.Context, cmd SetEdgesCommand) (*SetEdgesResult, error) {
	if cmd.MatrixID != domain.MatrixIDFor(cmd.UserID) {
		return nil, domain.ErrMatrixNotFound
	}
	owned, err := calendar.LoadAccountSet(ctx, h.accounts, cmd.UserID)
	if err != nil {
		return nil, err
	}

	var result *SetEdgesResult
	err = h.actors.Do(ctx, cmd.UserID, func(ctx context.Context, st *userstate.State) error {
		staged := st.Matrix.Clone()
		edges, err := staged.SetEdges(cmd.Edges, h.clock.Now())
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := owned.Require(e.From, e.To); err != nil {
				return err
			}
		}

		err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
			if err := h.repo.Save(txCtx, staged); err != nil {
				return err
			}
			events := staged.DomainEvents()
			sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, cmd.UserID))
			return outbox.SaveEvents(txCtx, h.outboxRepo, events)
		})
		if err != nil {
			return err
		}

		staged.MarkClean()
		st.Matrix = staged
		result = &SetEdgesResult{PolicyID: staged.ID(), Edges: edges}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
