package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

// ErrConstraintNotFound is returned for missing or foreign constraints.
var ErrConstraintNotFound = apperr.NotFound("constraint not found")

// AggregateType names constraints in events.
const AggregateType = "Constraint"

// Routing keys.
const (
	RoutingKeySaved   = "constraint.saved"
	RoutingKeyDeleted = "constraint.deleted"
)

// Constraint is a user-scoped availability rule.
type Constraint struct {
	sharedDomain.BaseAggregateRoot
	userID     string
	config     Config
	raw        json.RawMessage
	activeFrom *time.Time
	activeTo   *time.Time
}

// NewConstraint validates and creates a constraint.
func NewConstraint(userID, kind string, raw json.RawMessage, activeFrom, activeTo *time.Time, now time.Time) (*Constraint, error) {
	cfg, err := Parse(kind, raw, activeFrom, activeTo)
	if err != nil {
		return nil, err
	}
	c := &Constraint{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(uuid.New(), now),
		userID:            userID,
	}
	c.apply(cfg, activeFrom, activeTo)
	c.AddDomainEvent(newSaved(c, true, now))
	return c, nil
}

// RehydrateConstraint rebuilds a stored constraint. The stored payload is
// re-parsed so a schema change surfaces at load time.
func RehydrateConstraint(userID string, entity sharedDomain.BaseEntity, kind string, raw json.RawMessage, activeFrom, activeTo *time.Time) (*Constraint, error) {
	cfg, err := Parse(kind, raw, activeFrom, activeTo)
	if err != nil {
		return nil, err
	}
	c := &Constraint{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, 0),
		userID:            userID,
	}
	c.apply(cfg, activeFrom, activeTo)
	return c, nil
}

// Update replaces kind, configuration and activity bounds. The ID and
// creation time are preserved.
func (c *Constraint) Update(kind string, raw json.RawMessage, activeFrom, activeTo *time.Time, now time.Time) error {
	cfg, err := Parse(kind, raw, activeFrom, activeTo)
	if err != nil {
		return err
	}
	c.apply(cfg, activeFrom, activeTo)
	c.Touch(now)
	c.AddDomainEvent(newSaved(c, false, now))
	return nil
}

// MarkDeleted records the deletion event.
func (c *Constraint) MarkDeleted(now time.Time) {
	c.AddDomainEvent(&Deleted{
		BaseEvent:    sharedDomain.NewBaseEvent(c.ID(), AggregateType, RoutingKeyDeleted, now),
		ConstraintID: c.ID(),
		Kind:         c.config.Kind(),
	})
}

func (c *Constraint) apply(cfg Config, activeFrom, activeTo *time.Time) {
	raw, _ := json.Marshal(cfg)
	c.config = cfg
	c.raw = raw
	c.activeFrom = utcPtr(activeFrom)
	c.activeTo = utcPtr(activeTo)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (c *Constraint) UserID() string              { return c.userID }
func (c *Constraint) Kind() Kind                  { return c.config.Kind() }
func (c *Constraint) Config() Config              { return c.config }
func (c *Constraint) ConfigJSON() json.RawMessage { return c.raw }
func (c *Constraint) ActiveFrom() *time.Time      { return c.activeFrom }
func (c *Constraint) ActiveTo() *time.Time        { return c.activeTo }

// ActiveRange intersects the constraint's activity bounds with
// [start, end). ok is false when they do not overlap.
func (c *Constraint) ActiveRange(start, end time.Time) (from, to time.Time, ok bool) {
	from, to = start, end
	if c.activeFrom != nil && c.activeFrom.After(from) {
		from = *c.activeFrom
	}
	if c.activeTo != nil && c.activeTo.Before(to) {
		to = *c.activeTo
	}
	return from, to, from.Before(to)
}

// View is the transport shape of a constraint.
type View struct {
	ID         uuid.UUID       `json:"constraint_id"`
	Kind       Kind            `json:"kind"`
	ConfigJSON json.RawMessage `json:"config_json"`
	ActiveFrom *time.Time      `json:"active_from,omitempty"`
	ActiveTo   *time.Time      `json:"active_to,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// View renders c for callers.
func (c *Constraint) View() View {
	return View{
		ID:         c.ID(),
		Kind:       c.Kind(),
		ConfigJSON: c.raw,
		ActiveFrom: c.activeFrom,
		ActiveTo:   c.activeTo,
		CreatedAt:  c.CreatedAt(),
		UpdatedAt:  c.UpdatedAt(),
	}
}

// Saved records a created or updated constraint.
type Saved struct {
	sharedDomain.BaseEvent
	ConstraintID uuid.UUID       `json:"constraint_id"`
	UserID       string          `json:"user_id"`
	Kind         Kind            `json:"kind"`
	ConfigJSON   json.RawMessage `json:"config_json"`
	ActiveFrom   *time.Time      `json:"active_from,omitempty"`
	ActiveTo     *time.Time      `json:"active_to,omitempty"`
	Created      bool            `json:"created"`
}

func newSaved(c *Constraint, created bool, now time.Time) *Saved {
	return &Saved{
		BaseEvent:    sharedDomain.NewBaseEvent(c.ID(), AggregateType, RoutingKeySaved, now),
		ConstraintID: c.ID(),
		UserID:       c.userID,
		Kind:         c.Kind(),
		ConfigJSON:   c.raw,
		ActiveFrom:   c.activeFrom,
		ActiveTo:     c.activeTo,
		Created:      created,
	}
}

// Deleted records a removed constraint.
type Deleted struct {
	sharedDomain.BaseEvent
	ConstraintID uuid.UUID `json:"constraint_id"`
	Kind         Kind      `json:"kind"`
}

// Repository persists constraints.
type Repository interface {
	Save(ctx context.Context, c *Constraint) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	ListForUser(ctx context.Context, userID string) ([]*Constraint, error)
}

// Snapshot returns a detached copy safe to read outside the owning actor.
func (c *Constraint) Snapshot() *Constraint {
	cp := *c
	cp.ClearDomainEvents()
	return &cp
}
