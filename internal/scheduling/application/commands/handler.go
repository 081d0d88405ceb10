// Package commands holds the scheduling session write operations. State
// transitions run inside the owning user's actor; compiling participant
// calendars and booking the event run outside it so the actor's queue
// only waits for compute and local persistence.
package commands

import (
	"context"
	"time"

	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/application/services"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// DefaultHoldTTL applies when Deps.HoldTTL is zero.
const DefaultHoldTTL = 5 * time.Minute

// Deps are shared by every scheduling command handler.
type Deps struct {
	Actors       *userstate.Store
	Sessions     *services.Sessions
	Participants *services.Participants
	Accounts     calendar.AccountDirectory
	Ledger       domain.BookingLedger
	Creator      calendar.EventCreator
	Gate         calendar.TierGate
	HoldTTL      time.Duration
}

func (d Deps) holdTTL() time.Duration {
	if d.HoldTTL <= 0 {
		return DefaultHoldTTL
	}
	return d.HoldTTL
}

func (d Deps) now() time.Time { return d.Sessions.Clock().Now() }

// storeHold mirrors the staged hold into the hold store and saves the
// session. A staged session without new events is already stored.
func (d Deps) storeHold(ctx context.Context, st *userstate.State, staged *domain.Session) error {
	if len(staged.DomainEvents()) == 0 {
		return nil
	}
	hold := domain.Hold{
		SessionID:   staged.ID(),
		CandidateID: *staged.HeldCandidateID(),
		ExpiresAt:   *staged.HoldExpiresAt(),
	}
	if err := d.Sessions.Holds().Put(ctx, hold); err != nil {
		return err
	}
	if err := d.Sessions.Save(ctx, st, staged); err != nil {
		d.Sessions.ReleaseHold(ctx, staged.ID())
		return err
	}
	return nil
}
