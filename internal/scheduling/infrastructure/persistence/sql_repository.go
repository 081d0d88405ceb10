// Package persistence stores scheduling sessions and the booking ledger.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

const sessionColumns = `id, user_id, organizer_account_id, title, duration_minutes, window_start, window_end,
	participant_account_ids, soft_constraints, status, candidates, held_candidate_id, hold_expires_at,
	committed_candidate_id, committed_event_id, committed_at, version, created_at, updated_at`

// SQLRepository implements domain.Repository.
type SQLRepository struct {
	db database.Runner
}

// NewSQLRepository creates a repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{db: database.NewRunner(conn)}
}

// Save upserts the full session row.
func (r *SQLRepository) Save(ctx context.Context, s *domain.Session) error {
	st := s.State()
	participants, err := json.Marshal(st.ParticipantIDs)
	if err != nil {
		return err
	}
	soft, err := json.Marshal(st.Soft)
	if err != nil {
		return err
	}
	candidates, err := json.Marshal(nonNil(st.Candidates))
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO scheduling_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			candidates = excluded.candidates,
			held_candidate_id = excluded.held_candidate_id,
			hold_expires_at = excluded.hold_expires_at,
			committed_candidate_id = excluded.committed_candidate_id,
			committed_event_id = excluded.committed_event_id,
			committed_at = excluded.committed_at,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		s.ID().String(), st.UserID, st.OrganizerAccountID, st.Title, st.DurationMinutes,
		database.FormatTime(st.Window.Start), database.FormatTime(st.Window.End),
		string(participants), string(soft), string(st.Status), string(candidates),
		nullUUID(st.HeldCandidateID), database.NullTime(st.HoldExpiresAt),
		nullUUID(st.CommittedCandidateID), nullString(st.CommittedEventID), database.NullTime(st.CommittedAt),
		st.Version, database.FormatTime(s.CreatedAt()), database.FormatTime(s.UpdatedAt()))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID loads a session owned by userID.
func (r *SQLRepository) FindByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM scheduling_sessions WHERE id = ? AND user_id = ?`,
		id.String(), userID)
	s, err := scanSession(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// ListForUser returns the user's sessions, newest first.
func (r *SQLRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+` FROM scheduling_sessions WHERE user_id = ?
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExpiredHolds lists held sessions across all users whose hold lapsed.
func (r *SQLRepository) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.SessionRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, id FROM scheduling_sessions
		WHERE status = ? AND hold_expires_at <= ?
		ORDER BY hold_expires_at, id
		LIMIT ?`, string(domain.StatusHeld), database.FormatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRef
	for rows.Next() {
		var userID, id string
		if err := rows.Scan(&userID, &id); err != nil {
			return nil, err
		}
		sid, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SessionRef{UserID: userID, SessionID: sid})
	}
	return out, rows.Err()
}

func scanSession(row database.Row) (*domain.Session, error) {
	var (
		id, userID, organizer, title           string
		duration, version                      int
		windowStart, windowEnd                 string
		participants, soft, status, candidates string
		heldID, holdExpires, committedID       sql.NullString
		committedEvent, committedAt            sql.NullString
		createdAt, updatedAt                   string
	)
	if err := row.Scan(&id, &userID, &organizer, &title, &duration, &windowStart, &windowEnd,
		&participants, &soft, &status, &candidates, &heldID, &holdExpires,
		&committedID, &committedEvent, &committedAt, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	st := domain.SessionState{
		Version:            version,
		UserID:             userID,
		OrganizerAccountID: organizer,
		Title:              title,
		DurationMinutes:    duration,
		Status:             domain.Status(status),
		CommittedEventID:   committedEvent.String,
	}
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 4)
	for i, s := range []string{windowStart, windowEnd, createdAt, updatedAt} {
		if times[i], err = database.ParseTime(s); err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
	}
	st.Window = availability.Interval{Start: times[0], End: times[1]}
	st.Entity = sharedDomain.RehydrateBaseEntity(sid, times[2], times[3])

	if err := json.Unmarshal([]byte(participants), &st.ParticipantIDs); err != nil {
		return nil, fmt.Errorf("session %s participants: %w", id, err)
	}
	if err := json.Unmarshal([]byte(soft), &st.Soft); err != nil {
		return nil, fmt.Errorf("session %s soft constraints: %w", id, err)
	}
	if err := json.Unmarshal([]byte(candidates), &st.Candidates); err != nil {
		return nil, fmt.Errorf("session %s candidates: %w", id, err)
	}
	if st.HeldCandidateID, err = parseNullUUID(heldID); err != nil {
		return nil, err
	}
	if st.CommittedCandidateID, err = parseNullUUID(committedID); err != nil {
		return nil, err
	}
	if st.HoldExpiresAt, err = database.ParseNullTime(holdExpires); err != nil {
		return nil, err
	}
	if st.CommittedAt, err = database.ParseNullTime(committedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateSession(st), nil
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
