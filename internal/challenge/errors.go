package challenge

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a challenge does not exist.
	ErrNotFound = errors.New("challenge not found")
	// ErrChallengeInactive is returned when a write targets a passed or failed challenge.
	ErrChallengeInactive = errors.New("challenge is not active")
	// ErrConflict is returned when the challenge row changed between read and write.
	ErrConflict = errors.New("challenge was modified concurrently")
	// ErrUnknownPlan is returned when a plan name is not configured.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrActiveChallengeExists is returned when a user starts a challenge while one is still active.
	ErrActiveChallengeExists = errors.New("user already has an active challenge")
)

// Validation error codes.
const (
	CodeInvalidAction   = "invalid_action"
	CodeInvalidQuantity = "invalid_quantity"
	CodeInvalidPrice    = "invalid_price"
	CodeInvalidSymbol   = "invalid_symbol"
)

// ValidationError reports bad trade input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
