package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Envelope wraps every response.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
	Meta  Meta       `json:"meta"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Meta carries request tracing ids.
type Meta struct {
	RequestID     string `json:"request_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func metaOf(r *http.Request) Meta {
	return Meta{
		RequestID:     observability.RequestIDFromContext(r.Context()),
		CorrelationID: observability.CorrelationIDFromContext(r.Context()),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Envelope{OK: true, Data: data, Meta: metaOf(r)})
}

// writeError maps err to its status. Internal errors are logged with the
// cause and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if kind == apperr.KindInternal {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, Envelope{
		Error: &ErrorBody{
			Code:    string(kind),
			Message: apperr.Message(err),
			Field:   apperr.FieldOf(err),
		},
		Meta: metaOf(r),
	})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON object into dst. An empty body is allowed only
// when optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if optional {
			return nil
		}
		return apperr.Validation("body", "is required")
	default:
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.Validation(typeErr.Field, "must be %s", typeErr.Type.String())
		}
		return apperr.Validation("body", "is not valid JSON")
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(name, "must be a UUID")
	}
	return id, nil
}

func bodyUUID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperr.Validation(field, "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation(field, "must be a UUID")
	}
	return id, nil
}

// parseTime parses an RFC 3339 timestamp. Empty input yields nil.
func parseTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation(field, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func requiredTime(field, raw string) (time.Time, error) {
	t, err := parseTime(field, raw)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, apperr.Validation(field, "is required")
	}
	return *t, nil
}

func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name, "must be an integer")
	}
	return v, nil
}
