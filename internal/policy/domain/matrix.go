// Package domain holds the privacy policy matrix: directed edges that say
// how much of one account's calendar another account may see.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

var (
	ErrSelfEdge        = apperr.Conflict("an account cannot have a policy towards itself")
	ErrMatrixNotFound  = apperr.NotFound("policy matrix not found")
	ErrAccountRequired = apperr.Validation("account_id", "from_account_id and to_account_id are required")
)

// AggregateType names the matrix in events.
const AggregateType = "PolicyMatrix"

var matrixNamespace = uuid.MustParse("6f1c2a8e-3b0d-4e57-9a44-8d1f0c6b2e91")

// MatrixIDFor derives the stable matrix ID of a user.
func MatrixIDFor(userID string) uuid.UUID {
	return uuid.NewSHA1(matrixNamespace, []byte(userID))
}

// Edge is a stored directed visibility rule: To may see From at Level.
type Edge struct {
	PolicyID  uuid.UUID   `json:"policy_id"`
	From      string      `json:"from_account_id"`
	To        string      `json:"to_account_id"`
	Level     DetailLevel `json:"detail_level"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Resolution is the effective rule for a pair. Self-pairs are not
// applicable and carry no level.
type Resolution struct {
	Level         DetailLevel `json:"detail_level,omitempty"`
	IsDefault     bool        `json:"is_default"`
	NotApplicable bool        `json:"not_applicable,omitempty"`
}

// EdgeInput is one requested change in a batch.
type EdgeInput struct {
	From  string
	To    string
	Level string
}

type pair struct{ from, to string }

// Matrix is the aggregate of one user's edges.
type Matrix struct {
	sharedDomain.BaseAggregateRoot
	userID string
	edges  map[pair]*Edge
	dirty  map[pair]struct{}
}

// NewMatrix creates an empty matrix for userID.
func NewMatrix(userID string, now time.Time) *Matrix {
	return &Matrix{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(MatrixIDFor(userID), now),
		userID:            userID,
		edges:             make(map[pair]*Edge),
		dirty:             make(map[pair]struct{}),
	}
}

// RehydrateMatrix rebuilds a matrix from storage.
func RehydrateMatrix(userID string, entity sharedDomain.BaseEntity, version int, edges []Edge) *Matrix {
	m := &Matrix{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, version),
		userID:            userID,
		edges:             make(map[pair]*Edge, len(edges)),
		dirty:             make(map[pair]struct{}),
	}
	for i := range edges {
		e := edges[i]
		m.edges[pair{e.From, e.To}] = &e
	}
	return m
}

// UserID returns the owner.
func (m *Matrix) UserID() string { return m.userID }

// Resolve returns the effective level of from→to.
func (m *Matrix) Resolve(from, to string) Resolution {
	if from == to {
		return Resolution{NotApplicable: true}
	}
	if e, ok := m.edges[pair{from, to}]; ok {
		return Resolution{Level: e.Level}
	}
	return Resolution{Level: DefaultLevel, IsDefault: true}
}

// Edge returns the stored edge for a pair, if any.
func (m *Matrix) Edge(from, to string) (Edge, bool) {
	e, ok := m.edges[pair{from, to}]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Edges returns stored edges ordered by pair.
func (m *Matrix) Edges() []Edge {
	out := make([]Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// SetEdge creates or updates a single edge. An existing edge keeps its
// policy ID.
func (m *Matrix) SetEdge(from, to, level string, now time.Time) (Edge, error) {
	edges, err := m.SetEdges([]EdgeInput{{From: from, To: to, Level: level}}, now)
	if err != nil {
		return Edge{}, err
	}
	return edges[0], nil
}

// SetEdges validates the whole batch before applying any of it.
func (m *Matrix) SetEdges(inputs []EdgeInput, now time.Time) ([]Edge, error) {
	levels := make([]DetailLevel, len(inputs))
	for i, in := range inputs {
		if in.From == "" || in.To == "" {
			return nil, ErrAccountRequired
		}
		if in.From == in.To {
			return nil, ErrSelfEdge
		}
		l, err := ParseDetailLevel(in.Level)
		if err != nil {
			return nil, err
		}
		levels[i] = l
	}

	out := make([]Edge, 0, len(inputs))
	for i, in := range inputs {
		key := pair{in.From, in.To}
		e, exists := m.edges[key]
		if !exists {
			e = &Edge{PolicyID: uuid.New(), From: in.From, To: in.To, CreatedAt: now}
			m.edges[key] = e
		}
		e.Level = levels[i]
		e.UpdatedAt = now
		m.dirty[key] = struct{}{}
		m.AddDomainEvent(newEdgeSet(m.ID(), *e, !exists, now))
		out = append(out, *e)
	}
	m.Touch(now)
	return out, nil
}

// DirtyEdges returns edges changed since the last MarkClean.
func (m *Matrix) DirtyEdges() []Edge {
	out := make([]Edge, 0, len(m.dirty))
	for key := range m.dirty {
		out = append(out, *m.edges[key])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID.String() < out[j].PolicyID.String() })
	return out
}

// MarkClean forgets pending changes once persisted.
func (m *Matrix) MarkClean() {
	m.dirty = make(map[pair]struct{})
	m.ClearDomainEvents()
}

// Clone returns a deep copy, used to stage a batch without touching the
// cached aggregate until it has been stored.
func (m *Matrix) Clone() *Matrix {
	c := RehydrateMatrix(m.userID, m.BaseEntity, m.Version(), m.Edges())
	for key := range m.dirty {
		c.dirty[key] = struct{}{}
	}
	return c
}

// Cell is one grid entry of the matrix read model.
type Cell struct {
	From       string      `json:"from_account_id"`
	To         string      `json:"to_account_id"`
	PolicyID   *uuid.UUID  `json:"policy_id,omitempty"`
	Level      DetailLevel `json:"detail_level,omitempty"`
	IsDefault  bool        `json:"is_default"`
	Applicable bool        `json:"applicable"`
}

// Grid resolves every ordered pair of accountIDs.
func (m *Matrix) Grid(accountIDs []string) []Cell {
	cells := make([]Cell, 0, len(accountIDs)*len(accountIDs))
	for _, from := range accountIDs {
		for _, to := range accountIDs {
			r := m.Resolve(from, to)
			cell := Cell{From: from, To: to, Level: r.Level, IsDefault: r.IsDefault, Applicable: !r.NotApplicable}
			if e, ok := m.edges[pair{from, to}]; ok {
				id := e.PolicyID
				cell.PolicyID = &id
			}
			cells = append(cells, cell)
		}
	}
	return cells
}
