package api

import (
	"log/slog"
	"net/http"
	"time"

	availabilityApp "github.com/felixgeelhaar/meridian/internal/availability/application"
)

// DefaultGranularityMinutes applies when the query omits granularity.
const DefaultGranularityMinutes = 30

// AvailabilityHandler serves the caller's effective availability.
type AvailabilityHandler struct {
	get    *availabilityApp.GetAvailabilityHandler
	logger *slog.Logger
}

// NewAvailabilityHandler creates an AvailabilityHandler.
func NewAvailabilityHandler(get *availabilityApp.GetAvailabilityHandler, logger *slog.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityHandler{get: get, logger: logger}
}

// Get handles GET /availability?mode=&start=&end=&granularity=&account_id=
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime("start", q.Get("start"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := parseTime("end", q.Get("end"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	granularity, err := parseIntParam(r, "granularity", DefaultGranularityMinutes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	query := availabilityApp.GetAvailabilityQuery{
		UserID:             userID(r),
		AccountID:          q.Get("account_id"),
		Start:              deref(start),
		End:                deref(end),
		GranularityMinutes: granularity,
		Mode:               q.Get("mode"),
	}

	result, err := h.get.Handle(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, result)
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
