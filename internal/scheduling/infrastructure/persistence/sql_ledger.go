package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/meridian/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

// SQLLedger implements domain.BookingLedger. Reserve runs in its own
// transaction; on PostgreSQL each participant account is advisory-locked
// so concurrent reservations for the same account serialise, while SQLite
// gets the same effect from its single writer connection.
type SQLLedger struct {
	db    database.Runner
	uow   sharedApplication.UnitOfWork
	clock sharedDomain.Clock
}

// NewSQLLedger creates a ledger.
func NewSQLLedger(conn database.Connection, clock sharedDomain.Clock) *SQLLedger {
	return &SQLLedger{db: database.NewRunner(conn), uow: database.NewUnitOfWork(conn), clock: clock}
}

func (l *SQLLedger) Reserve(ctx context.Context, sessionID uuid.UUID, accountIDs []string, slot availability.Interval) error {
	accounts := append([]string(nil), accountIDs...)
	sort.Strings(accounts)

	return sharedApplication.WithUnitOfWork(ctx, l.uow, func(ctx context.Context) error {
		if l.db.Driver() == database.DriverPostgres {
			for _, a := range accounts {
				if _, err := l.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, "meridian:booking:"+a); err != nil {
					return fmt.Errorf("failed to lock account %s: %w", a, err)
				}
			}
		}

		args := []any{sessionID.String(), database.FormatTime(slot.End), database.FormatTime(slot.Start)}
		for _, a := range accounts {
			args = append(args, a)
		}
		var taken string
		err := l.db.QueryRow(ctx, `
			SELECT account_id FROM bookings
			WHERE session_id <> ? AND start_at < ? AND end_at > ?
			AND account_id IN (`+placeholders(len(accounts))+`)
			LIMIT 1`, args...).Scan(&taken)
		switch {
		case err == nil:
			return fmt.Errorf("account %s: %w", taken, domain.ErrSlotTaken)
		case !database.IsNoRows(err):
			return fmt.Errorf("failed to check bookings: %w", err)
		}

		now := database.FormatTime(l.clock.Now())
		for _, a := range accounts {
			if _, err := l.db.Exec(ctx, `
				INSERT INTO bookings (session_id, account_id, start_at, end_at, event_id, created_at)
				VALUES (?, ?, ?, ?, '', ?)
				ON CONFLICT (session_id, account_id) DO NOTHING`,
				sessionID.String(), a, database.FormatTime(slot.Start), database.FormatTime(slot.End), now); err != nil {
				return fmt.Errorf("failed to reserve booking: %w", err)
			}
		}
		return nil
	})
}

func (l *SQLLedger) SetEventID(ctx context.Context, sessionID uuid.UUID, eventID string) error {
	if _, err := l.db.Exec(ctx, `UPDATE bookings SET event_id = ? WHERE session_id = ?`, eventID, sessionID.String()); err != nil {
		return fmt.Errorf("failed to record booked event: %w", err)
	}
	return nil
}

func (l *SQLLedger) Release(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := l.db.Exec(ctx, `DELETE FROM bookings WHERE session_id = ?`, sessionID.String()); err != nil {
		return fmt.Errorf("failed to release booking: %w", err)
	}
	return nil
}

func (l *SQLLedger) Between(ctx context.Context, accountID string, start, end time.Time) ([]domain.Reservation, error) {
	rows, err := l.db.Query(ctx, `
		SELECT session_id, start_at, end_at, event_id FROM bookings
		WHERE account_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, session_id`, accountID, database.FormatTime(end), database.FormatTime(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var sid, startAt, endAt, eventID string
		if err := rows.Scan(&sid, &startAt, &endAt, &eventID); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(sid)
		if err != nil {
			return nil, err
		}
		s, err := database.ParseTime(startAt)
		if err != nil {
			return nil, err
		}
		e, err := database.ParseTime(endAt)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Reservation{
			SessionID: id,
			AccountID: accountID,
			Slot:      availability.Interval{Start: s, End: e},
			EventID:   eventID,
		})
	}
	return out, rows.Err()
}

// ReservationsBetween exposes ledger entries as booking events so the
// availability compiler treats them as busy before the calendar sync has
// seen the real event.
func (l *SQLLedger) ReservationsBetween(ctx context.Context, accountID string, start, end time.Time) ([]calendar.Event, error) {
	res, err := l.Between(ctx, accountID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]calendar.Event, 0, len(res))
	for _, r := range res {
		id := r.EventID
		if id == "" {
			id = calendar.BookingEventID(r.SessionID.String())
		}
		out = append(out, calendar.Event{
			ID:        id,
			AccountID: accountID,
			Start:     r.Slot.Start,
			End:       r.Slot.End,
			Status:    calendar.StatusConfirmed,
		})
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
