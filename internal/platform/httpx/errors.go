// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/choreboard/choreboard/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Raw underlying errors (store drivers, token libraries) never reach the
// client: anything outside the known taxonomy collapses to a bare 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		// One generic message for every credential failure path.
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", "invalid credentials")
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", "")
	case errors.Is(err, shared.ErrSessionEstablish):
		Problem(w, http.StatusInternalServerError, "Session Establishment Failed", "could not establish session, retry with the same credentials")
	case errors.Is(err, shared.ErrUnavailable):
		Problem(w, http.StatusInternalServerError, "Service Unavailable", "temporary failure, try again")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
