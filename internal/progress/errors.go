package progress

import (
	"errors"
	"fmt"
)

var (
	// ErrUnitCompleted is returned for mutations after the unit finished.
	ErrUnitCompleted = errors.New("unit already completed")
	// ErrWrongPhase is returned for quiz operations not allowed in the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current quiz phase")
	// ErrClosed is returned once a tracker has been torn down.
	ErrClosed = errors.New("tracker closed")
)

// ValidationError reports a failed precondition of a user action. The
// tracker state is unchanged when it is returned.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Op + ": " + e.Reason
}

func invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
