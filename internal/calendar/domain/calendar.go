// Package domain models what the engine consumes from the calendar sync
// subsystem (linked accounts and their canonical events) and the
// collaborator ports around it.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// ErrAccountNotFound is returned for unknown account IDs.
var ErrAccountNotFound = apperr.NotFound("account not found")

// Account is a linked calendar account. The engine never mutates it.
type Account struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider,omitempty"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventStatus is the provider-reported state of an event.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// Event is a canonical calendar event as delivered by the sync subsystem.
type Event struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"account_id"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	Attendees   []string    `json:"attendees,omitempty"`
	Status      EventStatus `json:"status,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Tentative reports whether the event is only provisionally accepted.
func (e Event) Tentative() bool { return e.Status == StatusTentative }

// Blocks reports whether the event occupies time at all.
func (e Event) Blocks() bool { return e.Status != StatusCancelled && e.End.After(e.Start) }

// Normalize fills defaults and lower-cases attendee addresses.
func (e Event) Normalize() Event {
	if e.Status == "" {
		e.Status = StatusConfirmed
	}
	e.Start, e.End = e.Start.UTC(), e.End.UTC()
	attendees := make([]string, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			attendees = append(attendees, a)
		}
	}
	e.Attendees = attendees
	return e
}

// BookingIDPrefix starts the ID of every event materialized by a commit.
const BookingIDPrefix = "meridian-"

// BookingEventID derives the event ID of a session's booking, so re-booking
// the same session addresses the same event.
func BookingEventID(sessionID string) string { return BookingIDPrefix + sessionID }

// IsBooking reports whether the event was booked by this service.
func (e Event) IsBooking() bool { return strings.HasPrefix(e.ID, BookingIDPrefix) }

// AccountDirectory answers existence and ownership questions.
type AccountDirectory interface {
	Account(ctx context.Context, id string) (Account, error)
	AccountsForUser(ctx context.Context, userID string) ([]Account, error)
}

// EventSource returns canonical events overlapping [start, end).
type EventSource interface {
	EventsBetween(ctx context.Context, accountID string, start, end time.Time) ([]Event, error)
}

// Booking is the meeting materialized when a session commits.
type Booking struct {
	SessionID          string    `json:"session_id"`
	CandidateID        string    `json:"candidate_id"`
	Title              string    `json:"title"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	OrganizerAccountID string    `json:"organizer_account_id"`
	AccountIDs         []string  `json:"account_ids"`
	Attendees          []string  `json:"attendees,omitempty"`
}

// EventCreator materializes and retracts booked events.
type EventCreator interface {
	CreateEvent(ctx context.Context, booking Booking) (eventID string, err error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Gated features.
const (
	FeatureConstraints = "constraints"
	FeatureScheduling  = "scheduling"
)

// TierGate decides whether a user may enter a gated feature.
type TierGate interface {
	Allowed(ctx context.Context, userID, feature string) (bool, error)
}

// ErrFeatureNotAllowed is returned when the tier gate refuses a user.
var ErrFeatureNotAllowed = apperr.Forbidden("feature not available on the current plan")

// RequireFeature consults gate and fails with ErrFeatureNotAllowed on
// refusal. A nil gate lets everything through.
func RequireFeature(ctx context.Context, gate TierGate, userID, feature string) error {
	if gate == nil {
		return nil
	}
	ok, err := gate.Allowed(ctx, userID, feature)
	if err != nil {
		return apperr.Internal(err, "tier gate unavailable")
	}
	if !ok {
		return fmt.Errorf("%s: %w", feature, ErrFeatureNotAllowed)
	}
	return nil
}

// AccountSet is the set of accounts one user owns.
type AccountSet struct {
	byID map[string]Account
	ids  []string
}

// LoadAccountSet reads userID's accounts from dir.
func LoadAccountSet(ctx context.Context, dir AccountDirectory, userID string) (AccountSet, error) {
	accounts, err := dir.AccountsForUser(ctx, userID)
	if err != nil {
		return AccountSet{}, err
	}
	return NewAccountSet(accounts), nil
}

// NewAccountSet indexes accounts, keeping their order.
func NewAccountSet(accounts []Account) AccountSet {
	s := AccountSet{byID: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		if _, dup := s.byID[a.ID]; dup {
			continue
		}
		s.byID[a.ID] = a
		s.ids = append(s.ids, a.ID)
	}
	return s
}

// Has reports whether id is owned.
func (s AccountSet) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Get returns an owned account.
func (s AccountSet) Get(id string) (Account, bool) {
	a, ok := s.byID[id]
	return a, ok
}

// IDs returns the owned account IDs.
func (s AccountSet) IDs() []string { return append([]string(nil), s.ids...) }

// Emails returns the non-empty account addresses.
func (s AccountSet) Emails() []string {
	var out []string
	for _, id := range s.ids {
		if e := s.byID[id].Email; e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Require fails with ErrAccountNotFound for the first id not owned.
func (s AccountSet) Require(ids ...string) error {
	for _, id := range ids {
		if !s.Has(id) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
	}
	return nil
}
