package helpers

import (
	"errors"
	"log/slog"
	"net/http"

	"eventregistration/internal/domain"
)

// RetryAfterSeconds is sent with 503 responses for transient conflicts.
const RetryAfterSeconds = "1"

// WriteDomainError maps err onto a status code and error code and writes the
// JSON error envelope. Server-side failures are logged with the request path
// and method; client errors are not.
func WriteDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteJSONError(w, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		WriteJSONError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, domain.ErrTransientConflict):
		logger.WarnContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		w.Header().Set("Retry-After", RetryAfterSeconds)
		WriteJSONError(w, http.StatusServiceUnavailable, ErrCodeTransientConflict, "event was modified concurrently, retry the request")
	case errors.Is(err, domain.ErrStoreUnavailable):
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		WriteJSONError(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "storage is temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
