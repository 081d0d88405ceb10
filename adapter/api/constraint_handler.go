package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	constraintCommands "github.com/felixgeelhaar/meridian/internal/constraints/application/commands"
	constraintQueries "github.com/felixgeelhaar/meridian/internal/constraints/application/queries"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// ConstraintHandler serves constraint CRUD.
type ConstraintHandler struct {
	create  *constraintCommands.CreateConstraintHandler
	update  *constraintCommands.UpdateConstraintHandler
	delete  *constraintCommands.DeleteConstraintHandler
	queries *constraintQueries.Handler
	logger  *slog.Logger
}

// ConstraintHandlerConfig holds dependencies for the constraint handler.
type ConstraintHandlerConfig struct {
	Create  *constraintCommands.CreateConstraintHandler
	Update  *constraintCommands.UpdateConstraintHandler
	Delete  *constraintCommands.DeleteConstraintHandler
	Queries *constraintQueries.Handler
	Logger  *slog.Logger
}

// NewConstraintHandler creates a ConstraintHandler.
func NewConstraintHandler(cfg ConstraintHandlerConfig) *ConstraintHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ConstraintHandler{
		create:  cfg.Create,
		update:  cfg.Update,
		delete:  cfg.Delete,
		queries: cfg.Queries,
		logger:  cfg.Logger,
	}
}

type constraintRequest struct {
	Kind       string          `json:"kind"`
	ConfigJSON json.RawMessage `json:"config_json"`
	ActiveFrom string          `json:"active_from"`
	ActiveTo   string          `json:"active_to"`
}

type parsedConstraint struct {
	kind       string
	config     json.RawMessage
	activeFrom *time.Time
	activeTo   *time.Time
}

// parse accepts config_json either as an object or as a JSON-encoded
// string.
func (req constraintRequest) parse() (parsedConstraint, error) {
	p := parsedConstraint{kind: req.Kind, config: bytes.TrimSpace(req.ConfigJSON)}
	if len(p.config) > 0 && p.config[0] == '"' {
		var s string
		if err := json.Unmarshal(p.config, &s); err != nil {
			return p, apperr.Validation("config_json", "must be a JSON object")
		}
		p.config = json.RawMessage(s)
	}
	var err error
	if p.activeFrom, err = parseTime("active_from", req.ActiveFrom); err != nil {
		return p, err
	}
	if p.activeTo, err = parseTime("active_to", req.ActiveTo); err != nil {
		return p, err
	}
	return p, nil
}

// List handles GET /constraints
func (h *ConstraintHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.queries.List(r.Context(), constraintQueries.ListConstraintsQuery{UserID: userID(r)})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, views)
}

// Get handles GET /constraints/{id}
func (h *ConstraintHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.queries.Get(r.Context(), constraintQueries.GetConstraintQuery{UserID: userID(r), ConstraintID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// Create handles POST /constraints
func (h *ConstraintHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req constraintRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := req.parse()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.create.Handle(r.Context(), constraintCommands.CreateConstraintCommand{
		UserID:     userID(r),
		Kind:       p.kind,
		ConfigJSON: p.config,
		ActiveFrom: p.activeFrom,
		ActiveTo:   p.activeTo,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusCreated, view)
}

// Update handles PUT /constraints/{id}
func (h *ConstraintHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req constraintRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := req.parse()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.update.Handle(r.Context(), constraintCommands.UpdateConstraintCommand{
		UserID:       userID(r),
		ConstraintID: id,
		Kind:         p.kind,
		ConfigJSON:   p.config,
		ActiveFrom:   p.activeFrom,
		ActiveTo:     p.activeTo,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// Delete handles DELETE /constraints/{id}
func (h *ConstraintHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	err = h.delete.Handle(r.Context(), constraintCommands.DeleteConstraintCommand{UserID: userID(r), ConstraintID: id})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, map[string]any{"constraint_id": id, "deleted": true})
}
