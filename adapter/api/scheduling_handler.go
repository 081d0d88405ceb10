package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	schedulingCommands "github.com/felixgeelhaar/meridian/internal/scheduling/application/commands"
	schedulingQueries "github.com/felixgeelhaar/meridian/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
)

// SchedulingHandler serves scheduling sessions.
type SchedulingHandler struct {
	propose    *schedulingCommands.ProposeHandler
	hold       *schedulingCommands.HoldHandler
	extendHold *schedulingCommands.ExtendHoldHandler
	commit     *schedulingCommands.CommitHandler
	cancel     *schedulingCommands.CancelHandler
	queries    *schedulingQueries.Handler
	logger     *slog.Logger
}

// SchedulingHandlerConfig holds dependencies for the scheduling handler.
type SchedulingHandlerConfig struct {
	Propose    *schedulingCommands.ProposeHandler
	Hold       *schedulingCommands.HoldHandler
	ExtendHold *schedulingCommands.ExtendHoldHandler
	Commit     *schedulingCommands.CommitHandler
	Cancel     *schedulingCommands.CancelHandler
	Queries    *schedulingQueries.Handler
	Logger     *slog.Logger
}

// NewSchedulingHandler creates a SchedulingHandler.
func NewSchedulingHandler(cfg SchedulingHandlerConfig) *SchedulingHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SchedulingHandler{
		propose:    cfg.Propose,
		hold:       cfg.Hold,
		extendHold: cfg.ExtendHold,
		commit:     cfg.Commit,
		cancel:     cfg.Cancel,
		queries:    cfg.Queries,
		logger:     cfg.Logger,
	}
}

type proposeRequest struct {
	Title                 string                 `json:"title"`
	OrganizerAccountID    string                 `json:"organizer_account_id"`
	DurationMinutes       int                    `json:"duration_minutes"`
	WindowStart           string                 `json:"window_start"`
	WindowEnd             string                 `json:"window_end"`
	ParticipantAccountIDs []string               `json:"participant_account_ids"`
	Constraints           domain.SoftConstraints `json:"constraints"`
}

type candidateRequest struct {
	CandidateID string `json:"candidate_id"`
}

// Propose handles POST /scheduling/sessions
func (h *SchedulingHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := requiredTime("window_start", req.WindowStart)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := requiredTime("window_end", req.WindowEnd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.propose.Handle(r.Context(), schedulingCommands.ProposeCommand{
		UserID:                userID(r),
		OrganizerAccountID:    req.OrganizerAccountID,
		Title:                 req.Title,
		DurationMinutes:       req.DurationMinutes,
		WindowStart:           start,
		WindowEnd:             end,
		ParticipantAccountIDs: req.ParticipantAccountIDs,
		Constraints:           req.Constraints,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusCreated, view)
}

// List handles GET /scheduling/sessions
func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.queries.List(r.Context(), schedulingQueries.ListSessionsQuery{UserID: userID(r)})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, views)
}

// Get handles GET /scheduling/sessions/{id}
func (h *SchedulingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.queries.Get(r.Context(), schedulingQueries.GetSessionQuery{UserID: userID(r), SessionID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// Candidates handles GET /scheduling/sessions/{id}/candidates
func (h *SchedulingHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.queries.Candidates(r.Context(), schedulingQueries.CandidatesQuery{UserID: userID(r), SessionID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, result)
}

// Hold handles POST /scheduling/sessions/{id}/hold
func (h *SchedulingHandler) Hold(w http.ResponseWriter, r *http.Request) {
	sessionID, candidateID, ok := h.candidateTarget(w, r)
	if !ok {
		return
	}
	view, err := h.hold.Handle(r.Context(), schedulingCommands.HoldCommand{
		UserID:      userID(r),
		SessionID:   sessionID,
		CandidateID: candidateID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// Commit handles POST /scheduling/sessions/{id}/commit
func (h *SchedulingHandler) Commit(w http.ResponseWriter, r *http.Request) {
	sessionID, candidateID, ok := h.candidateTarget(w, r)
	if !ok {
		return
	}
	view, err := h.commit.Handle(r.Context(), schedulingCommands.CommitCommand{
		UserID:      userID(r),
		SessionID:   sessionID,
		CandidateID: candidateID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// ExtendHold handles POST /scheduling/sessions/{id}/extend-hold
func (h *SchedulingHandler) ExtendHold(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.extendHold.Handle(r.Context(), schedulingCommands.ExtendHoldCommand{UserID: userID(r), SessionID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// Cancel handles DELETE /scheduling/sessions/{id}
func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.cancel.Handle(r.Context(), schedulingCommands.CancelCommand{UserID: userID(r), SessionID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

func (h *SchedulingHandler) candidateTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	sessionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return uuid.Nil, uuid.Nil, false
	}
	var req candidateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return uuid.Nil, uuid.Nil, false
	}
	candidateID, err := bodyUUID("candidate_id", req.CandidateID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, candidateID, true
}
