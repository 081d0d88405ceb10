package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

// Repository persists outbox messages.
type Repository interface {
	Save(ctx context.Context, msgs ...*Message) error
	Pending(ctx context.Context, now time.Time, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error
	DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error)
}

// SaveEvents stores events through repo. Called inside the unit of work
// that persists the aggregate.
func SaveEvents(ctx context.Context, repo Repository, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := NewMessages(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return repo.Save(ctx, msgs...)
}

// SQLRepository implements Repository on either supported backend.
type SQLRepository struct {
	db database.Runner
}

// NewSQLRepository creates a SQLRepository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{db: database.NewRunner(conn)}
}

const insertMessage = `
INSERT INTO outbox (event_id, aggregate_type, aggregate_id, routing_key, payload, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id`

// Save inserts msgs and assigns their IDs.
func (r *SQLRepository) Save(ctx context.Context, msgs ...*Message) error {
	for _, m := range msgs {
		err := r.db.QueryRow(ctx, insertMessage,
			m.EventID, m.AggregateType, m.AggregateID, m.RoutingKey,
			string(m.Body), string(m.Metadata), database.FormatTime(m.CreatedAt),
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert outbox message %s: %w", m.EventID, err)
		}
	}
	return nil
}

const selectPending = `
SELECT id, event_id, aggregate_type, aggregate_id, routing_key, payload, metadata,
       created_at, retry_count, last_error, next_retry_at
FROM outbox
WHERE published_at IS NULL AND dead_lettered_at IS NULL
  AND (next_retry_at IS NULL OR next_retry_at <= ?)
ORDER BY id
LIMIT ?`

// Pending returns unpublished, non-dead messages due at now, oldest first.
func (r *SQLRepository) Pending(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := r.db.Query(ctx, selectPending, database.FormatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var (
			m             Message
			body          string
			meta, lastErr sql.NullString
			created       string
			nextRetry     sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.EventID, &m.AggregateType, &m.AggregateID, &m.RoutingKey,
			&body, &meta, &created, &m.RetryCount, &lastErr, &nextRetry); err != nil {
			return nil, err
		}
		m.Body = []byte(body)
		m.Metadata = []byte(meta.String)
		m.LastError = lastErr.String
		if m.CreatedAt, err = database.ParseTime(created); err != nil {
			return nil, err
		}
		if m.NextRetryAt, err = database.ParseNullTime(nextRetry); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkPublished stamps a message as delivered.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`, database.FormatTime(at), id)
	return err
}

// MarkFailed records a failed attempt and schedules the next one.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`,
		reason, database.FormatTime(nextRetryAt), id)
	return err
}

// MarkDead parks a message that exhausted its retries.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`,
		database.FormatTime(at), reason, id)
	return err
}

// DeleteOld removes messages published before the cutoff.
func (r *SQLRepository) DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error) {
	res, err := r.db.Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`,
		database.FormatTime(publishedBefore))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
