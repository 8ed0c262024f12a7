package engine

import "fmt"

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

// ForbiddenError reports an authenticated caller lacking permission for the
// operation.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string { return e.Reason }

// ConflictError reports a state-machine precondition violation: deadline
// passed, already allocated, duplicate bid, backwards progress, duplicate
// milestone or payment.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string { return e.Reason }

func validationf(format string, args ...any) error {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func forbidden(reason string) error { return ForbiddenError{Reason: reason} }
func conflict(reason string) error  { return ConflictError{Reason: reason} }
