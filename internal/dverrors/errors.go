package dverrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between re-driving
// authentication, fixing the connection record, or surfacing the message.
type Kind int

const (
	KindUnknown Kind = iota

	// KindConfiguration covers missing or invalid connection fields,
	// including connection-string records that were never resolved into
	// concrete credentials.
	KindConfiguration

	// KindReauthRequired means silent acquisition is impossible and the
	// user has to run an authentication flow again.
	KindReauthRequired

	// KindAuthFailed is an authentication flow that ran and was rejected.
	KindAuthFailed

	// KindPermissionDenied means the environment rejected the signed-in
	// user (WhoAmI returned 401/403).
	KindPermissionDenied

	// KindEnvironmentValidation means the environment probe failed for a
	// reason other than authorization, or returned no user identity.
	KindEnvironmentValidation

	// KindTimeout is an interactive flow that did not complete in time.
	KindTimeout

	// KindHeaderValidation is a custom header rejected by the allow-list.
	KindHeaderValidation

	// KindValidation is a failed precondition on operation inputs.
	KindValidation

	// KindService is a non-2xx Dataverse response; see ServiceError.
	KindService

	// KindNetwork is a transport failure below the HTTP status line.
	KindNetwork
)

// String makes Kind satisfy the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindReauthRequired:
		return "reauth-required"
	case KindAuthFailed:
		return "auth-failed"
	case KindPermissionDenied:
		return "permission-denied"
	case KindEnvironmentValidation:
		return "environment-validation"
	case KindTimeout:
		return "timeout"
	case KindHeaderValidation:
		return "header-validation"
	case KindValidation:
		return "validation"
	case KindService:
		return "service"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is a classified dvbox error. Message is a short, actionable
// sentence safe to show to the user; Err preserves the underlying cause
// for logs and errors.Is/As chains.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a fixed message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ServiceError is a non-2xx response from the Dataverse Web API with the
// OData error envelope parsed out. Code is the service's error code
// (e.g. "0x80040217") when the envelope carried one.
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("Dataverse API Error (%d): %s", e.Status, e.Message)
}

// KindOf walks the error chain and reports the classification of the
// first classified error found. Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return KindService
	}
	return KindUnknown
}

// IsKind reports whether the error chain contains an error of the given
// kind. ServiceError values match KindService.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ServiceStatus extracts the HTTP status from a ServiceError anywhere in
// the chain. The second return is false when the chain has none.
func ServiceStatus(err error) (int, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
