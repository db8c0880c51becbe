// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807. Store
// and directory timeouts are matched before the broader unavailability case.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrStoreTimeout):
		Problem(w, http.StatusGatewayTimeout, "Store Timeout", err.Error())
	case errors.Is(err, authz.ErrDirectoryTimeout):
		Problem(w, http.StatusGatewayTimeout, "Directory Timeout", err.Error())
	case errors.Is(err, authz.ErrStoreUnavailable), errors.Is(err, authz.ErrDirectoryUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", err.Error())
	case errors.Is(err, authz.ErrInvalidGrantTuple), errors.Is(err, authz.ErrUnknownModuleAction):
		Problem(w, http.StatusBadRequest, "Invalid Grant", err.Error())
	case errors.Is(err, authz.ErrActorNotFound), errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
