package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	policyCommands "github.com/felixgeelhaar/meridian/internal/policy/application/commands"
	policyQueries "github.com/felixgeelhaar/meridian/internal/policy/application/queries"
	policy "github.com/felixgeelhaar/meridian/internal/policy/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

// PolicyHandler serves the caller's detail-level matrix.
type PolicyHandler struct {
	matrix   *policyQueries.GetMatrixHandler
	resolve  *policyQueries.ResolveHandler
	setEdges *policyCommands.SetEdgesHandler
	logger   *slog.Logger
}

// PolicyHandlerConfig holds dependencies for the policy handler.
type PolicyHandlerConfig struct {
	GetMatrix *policyQueries.GetMatrixHandler
	Resolve   *policyQueries.ResolveHandler
	SetEdges  *policyCommands.SetEdgesHandler
	Logger    *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler.
func NewPolicyHandler(cfg PolicyHandlerConfig) *PolicyHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PolicyHandler{
		matrix:   cfg.GetMatrix,
		resolve:  cfg.Resolve,
		setEdges: cfg.SetEdges,
		logger:   cfg.Logger,
	}
}

type edgeRequest struct {
	From  string `json:"from_account_id"`
	To    string `json:"to_account_id"`
	Level string `json:"detail_level"`
}

// GetMatrix handles GET /policies
func (h *PolicyHandler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	view, err := h.matrix.Handle(r.Context(), policyQueries.GetMatrixQuery{UserID: userID(r)})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, view)
}

// SetEdges handles PUT /policies/{id}/edges
func (h *PolicyHandler) SetEdges(w http.ResponseWriter, r *http.Request) {
	matrixID, ok := h.matrixID(w, r)
	if !ok {
		return
	}

	var body struct {
		Edges json.RawMessage `json:"edges"`
	}
	if err := decodeBody(r, &body, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	raw := bytes.TrimSpace(body.Edges)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		writeError(w, r, h.logger, apperr.Validation("edges", "is required"))
		return
	}
	if raw[0] != '[' {
		writeError(w, r, h.logger, apperr.Validation("edges", "must be an array"))
		return
	}
	var edges []edgeRequest
	if err := json.Unmarshal(raw, &edges); err != nil {
		writeError(w, r, h.logger, apperr.Validation("edges", "must be an array of edges"))
		return
	}

	inputs := make([]policy.EdgeInput, len(edges))
	for i, e := range edges {
		inputs[i] = policy.EdgeInput{From: e.From, To: e.To, Level: e.Level}
	}
	result, err := h.setEdges.Handle(r.Context(), policyCommands.SetEdgesCommand{
		UserID:   userID(r),
		MatrixID: matrixID,
		Edges:    inputs,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, result)
}

// Resolve handles GET /policies/{id}/resolve?from=&to=
func (h *PolicyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	matrixID, ok := h.matrixID(w, r)
	if !ok {
		return
	}
	result, err := h.resolve.Handle(r.Context(), policyQueries.ResolveQuery{
		UserID:   userID(r),
		MatrixID: matrixID,
		From:     r.URL.Query().Get("from"),
		To:       r.URL.Query().Get("to"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, r, http.StatusOK, result)
}

// matrixID treats a malformed id like an unknown one.
func (h *PolicyHandler) matrixID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, policy.ErrMatrixNotFound)
		return uuid.Nil, false
	}
	return id, true
}
