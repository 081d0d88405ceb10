// Package persistence stores constraints in the shared database.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/constraints/domain"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

// SQLRepository implements domain.Repository.
type SQLRepository struct {
	db database.Runner
}

// NewSQLRepository creates a repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{db: database.NewRunner(conn)}
}

// Save inserts or replaces a constraint. created_at is never overwritten.
func (r *SQLRepository) Save(ctx context.Context, c *domain.Constraint) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO availability_constraints (id, user_id, kind, config_json, active_from, active_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			config_json = excluded.config_json,
			active_from = excluded.active_from,
			active_to = excluded.active_to,
			updated_at = excluded.updated_at`,
		c.ID().String(), c.UserID(), string(c.Kind()), string(c.ConfigJSON()),
		database.NullTime(c.ActiveFrom()), database.NullTime(c.ActiveTo()),
		database.FormatTime(c.CreatedAt()), database.FormatTime(c.UpdatedAt()))
	if err != nil {
		return fmt.Errorf("failed to save constraint: %w", err)
	}
	return nil
}

// Delete removes a constraint owned by userID.
func (r *SQLRepository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	res, err := r.db.Exec(ctx, `DELETE FROM availability_constraints WHERE id = ? AND user_id = ?`, id.String(), userID)
	if err != nil {
		return fmt.Errorf("failed to delete constraint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConstraintNotFound
	}
	return nil
}

// ListForUser returns the user's constraints, oldest first.
func (r *SQLRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Constraint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, kind, config_json, active_from, active_to, created_at, updated_at
		FROM availability_constraints WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list constraints: %w", err)
	}
	defer rows.Close()

	var out []*domain.Constraint
	for rows.Next() {
		var (
			id, kind, config     string
			activeFrom, activeTo sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&id, &kind, &config, &activeFrom, &activeTo, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c, err := rehydrate(userID, id, kind, config, activeFrom, activeTo, createdAt, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", id, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func rehydrate(userID, id, kind, config string, activeFrom, activeTo sql.NullString, createdAt, updatedAt string) (*domain.Constraint, error) {
	cid, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	from, err := database.ParseNullTime(activeFrom)
	if err != nil {
		return nil, err
	}
	to, err := database.ParseNullTime(activeTo)
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
	entity := sharedDomain.RehydrateBaseEntity(cid, created, updated)
	return domain.RehydrateConstraint(userID, entity, kind, []byte(config), from, to)
}
