package persistence

import (
	"context"
	"time"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
)

// LocalCreator books meetings straight into the local event copy of every
// participating account. It is used when no external calendar is wired,
// and makes a committed meeting visible to later availability queries.
type LocalCreator struct {
	store *SQLStore
	now   func() time.Time
}

// NewLocalCreator creates a LocalCreator.
func NewLocalCreator(store *SQLStore) *LocalCreator {
	return &LocalCreator{store: store, now: time.Now}
}

// CreateEvent writes one event per participant account under a shared ID.
func (c *LocalCreator) CreateEvent(ctx context.Context, b domain.Booking) (string, error) {
	id := domain.BookingEventID(b.SessionID)
	for _, accountID := range b.AccountIDs {
		err := c.store.UpsertEvent(ctx, domain.Event{
			ID:        id,
			AccountID: accountID,
			Start:     b.Start,
			End:       b.End,
			Title:     b.Title,
			Attendees: b.Attendees,
			Status:    domain.StatusConfirmed,
			UpdatedAt: c.now(),
		})
		if err != nil {
			_ = c.store.DeleteEventEverywhere(ctx, id)
			return "", err
		}
	}
	return id, nil
}

// DeleteEvent removes the event from all accounts.
func (c *LocalCreator) DeleteEvent(ctx context.Context, eventID string) error {
	return c.store.DeleteEventEverywhere(ctx, eventID)
}
