package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
)

// RoutingKeyEdgeSet is published whenever an edge is created or changed.
const RoutingKeyEdgeSet = "policy.edge.set"

// EdgeSet records a created or updated edge.
type EdgeSet struct {
	sharedDomain.BaseEvent
	PolicyID uuid.UUID   `json:"policy_id"`
	From     string      `json:"from_account_id"`
	To       string      `json:"to_account_id"`
	Level    DetailLevel `json:"detail_level"`
	Created  bool        `json:"created"`
}

func newEdgeSet(matrixID uuid.UUID, e Edge, created bool, now time.Time) *EdgeSet {
	return &EdgeSet{
		BaseEvent: sharedDomain.NewBaseEvent(matrixID, AggregateType, RoutingKeyEdgeSet, now),
		PolicyID:  e.PolicyID,
		From:      e.From,
		To:        e.To,
		Level:     e.Level,
		Created:   created,
	}
}
