package sim

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("sim: invalid state (NaN/Inf)")
	ErrNoInput      = errors.New("sim: no input available")
	ErrFinished     = errors.New("sim: run finished")
)

// StepError reports the step at which a run stopped.
type StepError struct {
	Step    int
	State   float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (x=%.6g): %v", e.Step, e.State, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
