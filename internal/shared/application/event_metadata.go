package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata builds event metadata for a command issued by userID,
// reusing the request correlation ID when one is in ctx.
func NewEventMetadata(ctx context.Context, userID string) domain.EventMetadata {
	correlationID := observability.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.NewString(),
		UserID:        userID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
