package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/meridian/internal/availability/domain"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
)

// GetAvailabilityQuery asks for the caller's effective availability.
type GetAvailabilityQuery struct {
	UserID string
	// AccountID restricts the answer to one owned account. Empty means
	// all of the user's accounts.
	AccountID          string
	Start              time.Time
	End                time.Time
	GranularityMinutes int
	Mode               string
}

// AvailabilityResult is the answer to GetAvailabilityQuery.
type AvailabilityResult struct {
	Mode               domain.Mode           `json:"mode"`
	Start              time.Time             `json:"start"`
	End                time.Time             `json:"end"`
	GranularityMinutes int                   `json:"granularity"`
	AccountIDs         []string              `json:"account_ids"`
	Busy               []domain.BusyInterval `json:"busy"`
	Free               []domain.Interval     `json:"free"`
	Buckets            []domain.Bucket       `json:"buckets"`
}

// GetAvailabilityHandler answers availability queries.
type GetAvailabilityHandler struct {
	compiler *Compiler
	accounts calendar.AccountDirectory
}

// NewGetAvailabilityHandler creates the handler.
func NewGetAvailabilityHandler(compiler *Compiler, accounts calendar.AccountDirectory) *GetAvailabilityHandler {
	return &GetAvailabilityHandler{compiler: compiler, accounts: accounts}
}

// Handle validates the query and compiles the requested accounts.
func (h *GetAvailabilityHandler) Handle(ctx context.Context, q GetAvailabilityQuery) (*AvailabilityResult, error) {
	mode, err := domain.ParseMode(q.Mode)
	if err != nil {
		return nil, err
	}
	window := domain.NewInterval(q.Start, q.End)
	if err := domain.ValidateQuery(window, q.GranularityMinutes); err != nil {
		return nil, err
	}

	owned, err := h.accounts.AccountsForUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owned))
	for _, acc := range owned {
		if q.AccountID == "" || acc.ID == q.AccountID {
			ids = append(ids, acc.ID)
		}
	}
	if q.AccountID != "" && len(ids) == 0 {
		return nil, calendar.ErrAccountNotFound
	}

	compiled, err := h.compiler.CompileAccounts(ctx, ids, window)
	if err != nil {
		return nil, err
	}
	parts := make([]*domain.EffectiveAvailability, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, compiled[id].Availability)
	}
	all := domain.Combine(window, parts...)

	return &AvailabilityResult{
		Mode:               mode,
		Start:              window.Start,
		End:                window.End,
		GranularityMinutes: q.GranularityMinutes,
		AccountIDs:         ids,
		Busy:               nonNil(all.Busy()),
		Free:               nonNil(all.Free()),
		Buckets:            all.Buckets(time.Duration(q.GranularityMinutes)*time.Minute, mode),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
