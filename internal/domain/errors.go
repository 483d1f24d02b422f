package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Resource errors
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	// Session lifecycle errors
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrNotVerified     = errors.New("session has not been verified")
	ErrNoCodeSent      = errors.New("no verification code has been sent")

	// Validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidPhoneNumber = errors.New("invalid phone number format")
	ErrInvalidCode        = errors.New("invalid verification code format")

	// Directory errors
	ErrUserNotFound       = errors.New("directory user not found")
	ErrBadCredentials     = errors.New("directory credentials rejected")
	ErrNoPhoneAttribute   = errors.New("directory entry has no phone number attribute")
	ErrDirectoryRateLimit = errors.New("directory rate limit exceeded")

	// Transport errors
	ErrTransportNotAllowed = errors.New("verification transport not allowed")
	ErrTransportRejected   = errors.New("transport rejected phone number")

	// Operational errors
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrDirectoryRateLimit)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrInvalidInput,
	ErrInvalidPhoneNumber,
	ErrInvalidCode,
	ErrEmptyID,
	ErrInvalidID,
	ErrNotFound,
	ErrSessionNotFound,
	ErrNotVerified,
	ErrNoCodeSent,
	ErrUserNotFound,
	ErrBadCredentials,
	ErrNoPhoneAttribute,
	ErrTransportNotAllowed,
	ErrTransportRejected,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthFailure returns true for directory authentication failures.
// The primary registration surface must not distinguish these from each
// other (user-enumeration hardening); only the credential validation
// surface may.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrBadCredentials) ||
		errors.Is(err, ErrNoPhoneAttribute)
}

// IsNotFound returns true if the error represents a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrSessionNotFound)
}
