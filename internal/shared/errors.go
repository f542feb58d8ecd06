package shared

import "errors"

var (
	// ErrUserNotFound indicates the target user does not exist in the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive indicates the target user exists but is deactivated.
	ErrUserInactive = errors.New("user inactive")
	// ErrInvalidContext indicates a malformed context tuple in the request.
	ErrInvalidContext = errors.New("invalid context")
	// ErrStoreUnavailable indicates the permission store could not be reached in time.
	ErrStoreUnavailable = errors.New("permission store unavailable")
	// ErrUnknownResource indicates an unrecognized resource kind for isolation.
	ErrUnknownResource = errors.New("unknown resource kind")
	// ErrIsolationViolation indicates a non-admin predicate computed as unrestricted.
	// Never surfaced to callers as anything more specific than a generic server error.
	ErrIsolationViolation = errors.New("isolation violation")
	// ErrUnauthorized indicates a missing or invalid service token or actor identity.
	ErrUnauthorized = errors.New("unauthorized")
)
