package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// Headers understood by the API.
const (
	HeaderUserID        = "X-User-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// withRequestContext tags the request with request and correlation ids and
// logs its outcome.
func withRequestContext(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get(HeaderCorrelationID))
		w.Header().Set(HeaderRequestID, observability.RequestIDFromContext(ctx))
		w.Header().Set(HeaderCorrelationID, observability.CorrelationIDFromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.InfoContext(ctx, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// withRecover turns a panic into a 500 envelope.
func withRecover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				writeError(w, r, logger, apperr.Internal(fmt.Errorf("panic: %v", v), "request panicked"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects requests without a caller identity. Authentication
// happens upstream; the gateway forwards the verified user id.
func requireUser(logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			writeError(w, r, logger, apperr.Unauthorized("missing %s header", HeaderUserID))
			return
		}
		next(w, r.WithContext(observability.WithUserID(r.Context(), userID)))
	}
}

func userID(r *http.Request) string {
	return observability.UserIDFromContext(r.Context())
}
