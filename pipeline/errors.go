package pipeline

import (
	"errors"
	"fmt"

	"slidecast/project"
)

// ErrValidation marks client-caused request errors. They are never recorded
// as stage failures.
var ErrValidation = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StageError is a failure of one stage's work after it was recorded as a
// failed StageResult.
type StageError struct {
	Stage project.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
