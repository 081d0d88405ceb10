package domain

import "context"

// Repository persists matrices.
type Repository interface {
	// FindByUser returns the user's matrix, or a fresh empty one.
	FindByUser(ctx context.Context, userID string) (*Matrix, error)
	// Save stores the matrix row and its dirty edges.
	Save(ctx context.Context, m *Matrix) error
}
