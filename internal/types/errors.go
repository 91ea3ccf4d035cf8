package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid client config")

	ErrInvalidBackend = errors.New("invalid backend")
	ErrStoreAccess    = errors.New("kv store read/write error")

	// ErrAuth marks a 401 response. The gateway attempts a silent
	// refresh-and-replay before surfacing it.
	ErrAuth = errors.New("authentication failed")
	// ErrPermission marks a 403 whose message names a missing permission.
	// Surfaced to the caller, never retried, never signalled.
	ErrPermission = errors.New("permission denied")
	// ErrForbidden marks any other 403.
	ErrForbidden = errors.New("forbidden")
	// ErrNetwork marks a transport-level failure (no HTTP response).
	ErrNetwork = errors.New("network error")
	// ErrSync marks a failed preference sync. Pending changes are kept
	// for retry; the local cache is not rolled back.
	ErrSync = errors.New("preference sync failed")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}

// ErrorKind classifies an API failure for callers that switch on it.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindPermission ErrorKind = "permission"
	KindForbidden  ErrorKind = "forbidden"
	KindOther      ErrorKind = "other"
)

// APIError is the structured failure returned by the request gateway
// for any non-2xx response. Message is the best human-readable text
// extracted from the response body; Silent means the failure came from
// a known flaky endpoint and should be skipped from default error
// logging.
type APIError struct {
	Status     int
	StatusText string
	Message    string
	Kind       ErrorKind
	Silent     bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.StatusText)
}

// Unwrap maps the kind onto the matching sentinel so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch e.Kind {
	case KindAuth:
		return ErrAuth
	case KindPermission:
		return ErrPermission
	case KindForbidden:
		return ErrForbidden
	default:
		return nil
	}
}
