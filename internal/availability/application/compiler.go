// Package application gathers the inputs of the availability compiler and
// answers availability queries.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/meridian/internal/availability/domain"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// ConstraintReader returns a detached snapshot of a user's constraints.
// Implementations route through the user's actor.
type ConstraintReader interface {
	ConstraintsFor(ctx context.Context, userID string) ([]*constraints.Constraint, error)
}

// ReservationSource returns committed bookings not yet ingested back from
// the calendar provider, shaped as events.
type ReservationSource interface {
	ReservationsBetween(ctx context.Context, accountID string, start, end time.Time) ([]calendar.Event, error)
}

// maxParallelFetches bounds the participant fan-out.
const maxParallelFetches = 8

// Compiler assembles compiler inputs for accounts.
type Compiler struct {
	accounts     calendar.AccountDirectory
	events       calendar.EventSource
	reservations ReservationSource
	constraints  ConstraintReader
	logger       *slog.Logger
	metrics      observability.Metrics
}

// NewCompiler creates a Compiler. reservations may be nil.
func NewCompiler(accounts calendar.AccountDirectory, events calendar.EventSource, reservations ReservationSource,
	constraints ConstraintReader, logger *slog.Logger, metrics observability.Metrics) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Compiler{
		accounts:     accounts,
		events:       events,
		reservations: reservations,
		constraints:  constraints,
		logger:       logger,
		metrics:      metrics,
	}
}

// Compiled is one account's availability with its account record.
type Compiled struct {
	Account      calendar.Account
	Availability *domain.EffectiveAvailability
}

// CompileAccount compiles a single account.
func (c *Compiler) CompileAccount(ctx context.Context, accountID string, window domain.Interval) (*Compiled, error) {
	acc, err := c.accounts.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return c.compile(ctx, acc, window)
}

// CompileAccounts compiles several accounts concurrently. The result is
// keyed by account ID.
func (c *Compiler) CompileAccounts(ctx context.Context, accountIDs []string, window domain.Interval) (map[string]*Compiled, error) {
	results := make([]*Compiled, len(accountIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, id := range accountIDs {
		g.Go(func() error {
			compiled, err := c.CompileAccount(gctx, id, window)
			if err != nil {
				return err
			}
			results[i] = compiled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Compiled, len(results))
	for _, r := range results {
		out[r.Account.ID] = r
	}
	return out, nil
}

func (c *Compiler) compile(ctx context.Context, acc calendar.Account, window domain.Interval) (*Compiled, error) {
	return observability.TimeOperation(ctx, c.logger, c.metrics, "availability.compile", func() (*Compiled, error) {
		fetchStart := window.Start.Add(-domain.LookAround)
		fetchEnd := window.End.Add(domain.LookAround)

		events, err := c.events.EventsBetween(ctx, acc.ID, fetchStart, fetchEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events of %s: %w", acc.ID, err)
		}
		if c.reservations != nil {
			reserved, err := c.reservations.ReservationsBetween(ctx, acc.ID, fetchStart, fetchEnd)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch reservations of %s: %w", acc.ID, err)
			}
			events = mergeEvents(events, reserved)
		}

		owned, err := calendar.LoadAccountSet(ctx, c.accounts, acc.UserID)
		if err != nil {
			return nil, err
		}

		cs, err := c.constraints.ConstraintsFor(ctx, acc.UserID)
		if err != nil {
			return nil, err
		}

		ea := domain.Compile(domain.Input{
			AccountID:   acc.ID,
			Window:      window,
			Events:      events,
			Constraints: cs,
			OwnEmails:   owned.Emails(),
		})
		return &Compiled{Account: acc, Availability: ea}, nil
	})
}

// mergeEvents appends reservations whose event has not been ingested yet.
func mergeEvents(events, reserved []calendar.Event) []calendar.Event {
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		seen[e.ID] = struct{}{}
	}
	for _, r := range reserved {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		events = append(events, r)
	}
	return events
}
