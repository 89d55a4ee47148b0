// Package apperrors defines the error taxonomy shared by the core services.
// Handlers translate these into HTTP status codes; the core only ever
// returns wrapped sentinels.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced entity id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a state precondition was violated (wrong ride or
	// trip status, driver no longer available, accepting driver mismatch).
	ErrConflict = errors.New("conflict")
	// ErrValidation means the input itself is out of range or disallowed.
	ErrValidation = errors.New("validation failed")
	// ErrUnavailable means no driver could be found within the radius ceiling.
	ErrUnavailable = errors.New("temporarily unavailable")
	// ErrSettlementFailed is the terminal failure of a payment settlement.
	ErrSettlementFailed = errors.New("settlement failed")
)

// ErrDriverUnavailable is the conflict raised when a driver reserved by
// the matcher is no longer available at assignment time. Dispatch treats
// it as a retry signal.
var ErrDriverUnavailable = fmt.Errorf("%w: driver no longer available", ErrConflict)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with a formatted message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps ErrUnavailable with a formatted message.
func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// HTTPStatus maps a core error to the status code the API layer should return.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrUnavailable):
		return 503
	default:
		return 500
	}
}
