// Package services holds the scheduling collaborators shared by commands
// and queries: participant gathering, session persistence and the hold
// sweeper.
package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	availabilityApp "github.com/felixgeelhaar/meridian/internal/availability/application"
	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
)

// PolicyResolver resolves an edge in the matrix of ownerID.
type PolicyResolver interface {
	Resolve(ctx context.Context, ownerID, from, to string) (policy.Resolution, error)
}

// Participant is one participant's availability as the organizer sees it.
type Participant struct {
	AccountID  string
	Account    calendar.Account
	Resolution policy.Resolution
	View       *availability.View
}

// BusyIntervals returns the participant's visible busy time.
func (p Participant) BusyIntervals() []availability.Interval {
	out := make([]availability.Interval, len(p.View.Busy))
	for i, b := range p.View.Busy {
		out[i] = b.Interval
	}
	return out
}

// Participants compiles participant calendars and filters them through
// each owner's policy matrix. It talks to other users' actors, so it must
// never run inside one.
type Participants struct {
	compiler *availabilityApp.Compiler
	policies PolicyResolver
}

// NewParticipants creates a Participants.
func NewParticipants(compiler *availabilityApp.Compiler, policies PolicyResolver) *Participants {
	return &Participants{compiler: compiler, policies: policies}
}

// Gather returns the participants in input order.
func (p *Participants) Gather(ctx context.Context, organizerID string, participantIDs []string, window availability.Interval) ([]Participant, error) {
	compiled, err := p.compiler.CompileAccounts(ctx, participantIDs, window)
	if err != nil {
		return nil, err
	}

	out := make([]Participant, len(participantIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range participantIDs {
		c := compiled[id]
		g.Go(func() error {
			res := policy.Resolution{NotApplicable: true}
			level := policy.LevelFull
			if id != organizerID {
				r, err := p.policies.Resolve(gctx, c.Account.UserID, id, organizerID)
				if err != nil {
					return err
				}
				res, level = r, r.Level
			}
			out[i] = Participant{
				AccountID:  id,
				Account:    c.Account,
				Resolution: res,
				View:       c.Availability.AsSeenBy(organizerID, level),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BusySets returns the busy intervals of every participant.
func BusySets(ps []Participant) [][]availability.Interval {
	out := make([][]availability.Interval, len(ps))
	for i, p := range ps {
		out[i] = p.BusyIntervals()
	}
	return out
}

// Emails returns the participants' calendar addresses.
func Emails(ps []Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Account.Email != "" {
			out = append(out, p.Account.Email)
		}
	}
	return out
}

// SlotFree reports whether slot is clear for every participant.
func SlotFree(ps []Participant, slot availability.Interval) bool {
	for _, p := range ps {
		for _, b := range p.View.Busy {
			if b.Overlaps(slot) {
				return false
			}
		}
	}
	return true
}
