// Package persistence stores policy matrices in the shared database.
package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

// SQLRepository implements domain.Repository.
type SQLRepository struct {
	db    database.Runner
	clock sharedDomain.Clock
}

// NewSQLRepository creates a repository.
func NewSQLRepository(conn database.Connection, clock sharedDomain.Clock) *SQLRepository {
	if clock == nil {
		clock = sharedDomain.SystemClock{}
	}
	return &SQLRepository{db: database.NewRunner(conn), clock: clock}
}

// FindByUser loads the user's matrix, or returns a new empty one.
func (r *SQLRepository) FindByUser(ctx context.Context, userID string) (*domain.Matrix, error) {
	var (
		id                   string
		version              int
		createdAt, updatedAt string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, version, created_at, updated_at FROM policy_matrices WHERE user_id = ?`, userID,
	).Scan(&id, &version, &createdAt, &updatedAt)
	if database.IsNoRows(err) {
		return domain.NewMatrix(userID, r.clock.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy matrix: %w", err)
	}

	matrixID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	created, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := database.ParseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	edges, err := r.edges(ctx, id)
	if err != nil {
		return nil, err
	}
	entity := sharedDomain.RehydrateBaseEntity(matrixID, created, updated)
	return domain.RehydrateMatrix(userID, entity, version, edges), nil
}

func (r *SQLRepository) edges(ctx context.Context, matrixID string) ([]domain.Edge, error) {
	rows, err := r.db.Query(ctx, `
		SELECT policy_id, from_account_id, to_account_id, detail_level, created_at, updated_at
		FROM policy_edges WHERE matrix_id = ?`, matrixID)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		var (
			e                    domain.Edge
			policyID, level      string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&policyID, &e.From, &e.To, &level, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if e.PolicyID, err = uuid.Parse(policyID); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
			return nil, err
		}
		e.Level = domain.DetailLevel(level)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Save upserts the matrix row and every dirty edge. Call it inside a unit
// of work so a batch lands atomically.
func (r *SQLRepository) Save(ctx context.Context, m *domain.Matrix) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO policy_matrices (id, user_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at`,
		m.ID().String(), m.UserID(), m.Version(), database.FormatTime(m.CreatedAt()), database.FormatTime(m.UpdatedAt()))
	if err != nil {
		return fmt.Errorf("failed to save policy matrix: %w", err)
	}

	for _, e := range m.DirtyEdges() {
		_, err := r.db.Exec(ctx, `
			INSERT INTO policy_edges (policy_id, matrix_id, from_account_id, to_account_id, detail_level, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (policy_id) DO UPDATE SET
				detail_level = excluded.detail_level,
				updated_at = excluded.updated_at`,
			e.PolicyID.String(), m.ID().String(), e.From, e.To, string(e.Level),
			database.FormatTime(e.CreatedAt), database.FormatTime(e.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to save policy edge: %w", err)
		}
	}
	return nil
}
