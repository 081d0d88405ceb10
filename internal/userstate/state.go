// Package userstate is the state each user's actor owns: the policy
// matrix, constraints and the sessions touched so far. It is only ever
// accessed from inside that actor; other goroutines get snapshots through
// Reader.
package userstate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/actor"
	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
	scheduling "github.com/felixgeelhaar/meridian/internal/scheduling/domain"
)

// Repositories back the loader.
type Repositories struct {
	Policy      policy.Repository
	Constraints constraints.Repository
	Sessions    scheduling.Repository
}

// State is one user's cached aggregates.
type State struct {
	UserID string
	Matrix *policy.Matrix

	constraints []*constraints.Constraint
	sessions    map[uuid.UUID]*scheduling.Session
	sessionRepo scheduling.Repository
}

// Store is the per-user actor store.
type Store = actor.Store[State]

// NewStore creates the actor store whose actors load state from repos.
func NewStore(repos Repositories, cfg actor.Config, logger *slog.Logger) *Store {
	return actor.NewStore(Loader(repos), cfg, logger)
}

// Loader reads a user's matrix and constraints. Sessions load lazily.
func Loader(repos Repositories) actor.Loader[State] {
	return func(ctx context.Context, userID string) (*State, error) {
		m, err := repos.Policy.FindByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load policy matrix: %w", err)
		}
		cs, err := repos.Constraints.ListForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load constraints: %w", err)
		}
		return &State{
			UserID:      userID,
			Matrix:      m,
			constraints: cs,
			sessions:    make(map[uuid.UUID]*scheduling.Session),
			sessionRepo: repos.Sessions,
		}, nil
	}
}

// Constraints returns detached copies in creation order.
func (s *State) Constraints() []*constraints.Constraint {
	out := make([]*constraints.Constraint, len(s.constraints))
	for i, c := range s.constraints {
		out[i] = c.Snapshot()
	}
	return out
}

// Constraint returns the cached constraint with id.
func (s *State) Constraint(id uuid.UUID) (*constraints.Constraint, error) {
	for _, c := range s.constraints {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, constraints.ErrConstraintNotFound
}

// PutConstraint inserts or replaces a stored constraint.
func (s *State) PutConstraint(c *constraints.Constraint) {
	for i, existing := range s.constraints {
		if existing.ID() == c.ID() {
			s.constraints[i] = c
			return
		}
	}
	s.constraints = append(s.constraints, c)
	sort.SliceStable(s.constraints, func(i, j int) bool {
		return s.constraints[i].CreatedAt().Before(s.constraints[j].CreatedAt())
	})
}

// RemoveConstraint drops a deleted constraint.
func (s *State) RemoveConstraint(id uuid.UUID) {
	for i, c := range s.constraints {
		if c.ID() == id {
			s.constraints = append(s.constraints[:i], s.constraints[i+1:]...)
			return
		}
	}
}

// Session returns the user's session, loading it on first access.
func (s *State) Session(ctx context.Context, id uuid.UUID) (*scheduling.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess, err := s.sessionRepo.FindByID(ctx, s.UserID, id)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = sess
	return sess, nil
}

// PutSession caches a stored session.
func (s *State) PutSession(sess *scheduling.Session) {
	s.sessions[sess.ID()] = sess
}

// Sessions lists the user's sessions newest first, preferring cached
// copies over stored rows.
func (s *State) Sessions(ctx context.Context) ([]*scheduling.Session, error) {
	stored, err := s.sessionRepo.ListForUser(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	for i, sess := range stored {
		if cached, ok := s.sessions[sess.ID()]; ok {
			stored[i] = cached
		}
	}
	return stored, nil
}
