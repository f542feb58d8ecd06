package httpx

import (
	"errors"
	"net/http"

	"github.com/proteamcare/access-engine/internal/shared"
)

// RespondError maps engine errors to RFC7807 responses. Access-denial
// responses stay generic: they never reveal whether the target user exists
// or which permission was missing, and isolation violations surface as a
// plain server error.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, shared.ErrUserNotFound), errors.Is(err, shared.ErrUserInactive):
		Problem(w, http.StatusForbidden, "Access Denied", "")
	case errors.Is(err, shared.ErrInvalidContext):
		Problem(w, http.StatusBadRequest, "Invalid Context", "context must be system, company or establishment with a matching id")
	case errors.Is(err, shared.ErrUnknownResource):
		Problem(w, http.StatusBadRequest, "Unknown Resource", "unrecognized resource kind")
	case errors.Is(err, shared.ErrStoreUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "permission store did not respond")
	default:
		// shared.ErrIsolationViolation lands here: no detail may leak.
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
