package types

import (
	"errors"
	"fmt"
)

// Failure kinds shared by every layer. Package-level errors wrap one of these
// so callers can classify with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrValidation     = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence failed")
)

// Validation errors for inbound payloads
var (
	ErrInvalidID        = fmt.Errorf("%w: id must be 1-64 characters, alphanumeric + underscore/hyphen only", ErrValidation)
	ErrEmptyMessage     = fmt.Errorf("%w: message body is required", ErrValidation)
	ErrMessageTooLong   = fmt.Errorf("%w: message body exceeds %d characters", ErrValidation, MaxMessageLength)
	ErrMalformedEvent   = fmt.Errorf("%w: malformed event", ErrValidation)
	ErrUnknownEventType = fmt.Errorf("%w: unknown event type", ErrValidation)
)
