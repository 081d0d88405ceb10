// Package persistence stores the engine's read copy of linked accounts and
// canonical events, as fed by the calendar sync subsystem.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

// SQLStore implements AccountDirectory and EventSource over the shared
// database.
type SQLStore struct {
	db database.Runner
}

// NewSQLStore creates a store over conn.
func NewSQLStore(conn database.Connection) *SQLStore {
	return &SQLStore{db: database.NewRunner(conn)}
}

const accountColumns = `id, user_id, provider, email, display_name, created_at`

// Account returns the account with the given ID.
func (s *SQLStore) Account(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM calendar_accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if database.IsNoRows(err) {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return acc, err
}

// AccountsForUser lists the accounts owned by userID.
func (s *SQLStore) AccountsForUser(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM calendar_accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// UpsertAccount inserts or replaces an account.
func (s *SQLStore) UpsertAccount(ctx context.Context, acc domain.Account) error {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO calendar_accounts (id, user_id, provider, email, display_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			provider = excluded.provider,
			email = excluded.email,
			display_name = excluded.display_name`,
		acc.ID, acc.UserID, acc.Provider, acc.Email, acc.DisplayName, database.FormatTime(acc.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// EventsBetween returns non-cancelled events of accountID overlapping
// [start, end), ordered by start.
func (s *SQLStore) EventsBetween(ctx context.Context, accountID string, start, end time.Time) ([]domain.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, start_at, end_at, title, description, location, attendees, status, updated_at
		FROM calendar_events
		WHERE account_id = ? AND start_at < ? AND end_at > ? AND status <> ?
		ORDER BY start_at, id`,
		accountID, database.FormatTime(end), database.FormatTime(start), string(domain.StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e                         domain.Event
			startAt, endAt, updatedAt string
			attendees, status         string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &startAt, &endAt, &e.Title, &e.Description,
			&e.Location, &attendees, &status, &updatedAt); err != nil {
			return nil, err
		}
		if e.Start, err = database.ParseTime(startAt); err != nil {
			return nil, err
		}
		if e.End, err = database.ParseTime(endAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attendees), &e.Attendees); err != nil {
			return nil, fmt.Errorf("failed to decode attendees of %s: %w", e.ID, err)
		}
		e.Status = domain.EventStatus(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertEvent inserts or replaces an event. Older updates than the stored
// copy are ignored so replayed sync messages cannot roll an event back.
func (s *SQLStore) UpsertEvent(ctx context.Context, e domain.Event) error {
	e = e.Normalize()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	attendees, err := json.Marshal(e.Attendees)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO calendar_events (id, account_id, start_at, end_at, title, description, location, attendees, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, id) DO UPDATE SET
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			title = excluded.title,
			description = excluded.description,
			location = excluded.location,
			attendees = excluded.attendees,
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE calendar_events.updated_at <= excluded.updated_at`,
		e.ID, e.AccountID, database.FormatTime(e.Start), database.FormatTime(e.End), e.Title,
		e.Description, e.Location, string(attendees), string(e.Status), database.FormatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event from one account.
func (s *SQLStore) DeleteEvent(ctx context.Context, accountID, eventID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM calendar_events WHERE account_id = ? AND id = ?`, accountID, eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// DeleteEventEverywhere removes an event ID from every account.
func (s *SQLStore) DeleteEventEverywhere(ctx context.Context, eventID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM calendar_events WHERE id = ?`, eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func scanAccount(row database.Row) (domain.Account, error) {
	var (
		acc       domain.Account
		createdAt string
	)
	if err := row.Scan(&acc.ID, &acc.UserID, &acc.Provider, &acc.Email, &acc.DisplayName, &createdAt); err != nil {
		return domain.Account{}, err
	}
	t, err := database.ParseTime(createdAt)
	if err != nil {
		return domain.Account{}, err
	}
	acc.CreatedAt = t
	return acc, nil
}
