package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict such as an email already registered.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates malformed input rejected before any store access.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure. All credential failure
	// paths (unknown identity, wrong password, wrong PIN, wrong role for the
	// PIN path) collapse into this error so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionEstablish indicates the credential verified but the session
	// could not be issued. Distinct from ErrInvalidCredentials so clients know
	// to retry with the same credential.
	ErrSessionEstablish = errors.New("session establishment failed")
	// ErrForbidden indicates an authenticated principal is not permitted.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a request without a resolvable principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable indicates an infrastructure failure the caller may retry.
	ErrUnavailable = errors.New("service unavailable")
)
