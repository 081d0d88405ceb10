// Package commands holds the constraint write operations. Each one runs
// inside the owning user's actor and persists through a unit of work
// before the cached state is replaced.
package commands

import (
	"context"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/constraints/domain"
	sharedApplication "github.com/felixgeelhaar/meridian/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// Deps are shared by every constraint command handler.
type Deps struct {
	Actors     *userstate.Store
	Repo       domain.Repository
	OutboxRepo outbox.Repository
	UOW        sharedApplication.UnitOfWork
	Gate       calendar.TierGate
	Clock      sharedDomain.Clock
}

// persist stores c and its events in one transaction.
func (d Deps) persist(ctx context.Context, userID string, store func(ctx context.Context) error, c *domain.Constraint) error {
	return sharedApplication.WithUnitOfWork(ctx, d.UOW, func(txCtx context.Context) error {
		if err := store(txCtx); err != nil {
			return err
		}
		events := c.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, userID))
		return outbox.SaveEvents(txCtx, d.OutboxRepo, events)
	})
}
