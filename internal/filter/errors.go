package filter

import (
	"errors"
	"fmt"
)

// Common filter errors.
var (
	// ErrConflictingDisposition indicates an attempt to register an
	// allow-list on a pattern that already carries a deny-list, or the
	// other way around. The failed registration leaves the rule table
	// unchanged.
	ErrConflictingDisposition = errors.New("conflicting rule disposition for pattern")

	// ErrSetupIncomplete indicates that Evaluate was called without a
	// role or before a general default route was configured. This is a
	// configuration defect, not a runtime condition.
	ErrSetupIncomplete = errors.New("filter setup incomplete")

	// ErrNoRoles indicates that a rule registration carried no roles.
	ErrNoRoles = errors.New("rule requires at least one role")

	// ErrEmptyPattern indicates that a rule registration carried an
	// empty pattern.
	ErrEmptyPattern = errors.New("rule requires a non-empty pattern")
)

// PatternError reports a pattern that failed to compile as a regular
// expression. Patterns are compiled lazily, so this surfaces at
// evaluation time rather than at registration.
type PatternError struct {
	// Pattern is the offending pattern string.
	Pattern string

	// Err is the underlying compile error.
	Err error
}

// Error returns the error message.
func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap returns the underlying error.
func (e *PatternError) Unwrap() error {
	return e.Err
}

// IsConflictingDisposition checks if an error is a conflicting disposition error.
func IsConflictingDisposition(err error) bool {
	return errors.Is(err, ErrConflictingDisposition)
}

// IsSetupIncomplete checks if an error is a setup incomplete error.
func IsSetupIncomplete(err error) bool {
	return errors.Is(err, ErrSetupIncomplete)
}

// IsPatternError checks if an error is a pattern compile error.
func IsPatternError(err error) bool {
	var pe *PatternError
	return errors.As(err, &pe)
}
