package userstate

import (
	"context"

	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
)

// Reader answers read-only questions about any user's state by sending a
// request to that user's actor. It must not be used from inside an actor.
type Reader struct {
	store *Store
}

// NewReader creates a Reader.
func NewReader(store *Store) Reader {
	return Reader{store: store}
}

// ConstraintsFor returns snapshots of userID's constraints.
func (r Reader) ConstraintsFor(ctx context.Context, userID string) ([]*constraints.Constraint, error) {
	var out []*constraints.Constraint
	err := r.store.Do(ctx, userID, func(_ context.Context, st *State) error {
		out = st.Constraints()
		return nil
	})
	return out, err
}

// Resolve resolves from→to in ownerID's matrix. The owner of the source
// account decides what the target may see.
func (r Reader) Resolve(ctx context.Context, ownerID, from, to string) (policy.Resolution, error) {
	var out policy.Resolution
	err := r.store.Do(ctx, ownerID, func(_ context.Context, st *State) error {
		out = st.Matrix.Resolve(from, to)
		return nil
	})
	return out, err
}

// Matrix returns a detached copy of userID's matrix.
func (r Reader) Matrix(ctx context.Context, userID string) (*policy.Matrix, error) {
	var out *policy.Matrix
	err := r.store.Do(ctx, userID, func(_ context.Context, st *State) error {
		out = st.Matrix.Clone()
		return nil
	})
	return out, err
}
