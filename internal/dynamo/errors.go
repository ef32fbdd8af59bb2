package dynamo

import (
	"errors"
	"fmt"
)

// Error kinds shared by every loop-tuning operation. Callers match them with
// errors.Is; concrete errors below wrap one of these.
var (
	// ErrInvalidParameter indicates a model, controller, valve or method
	// parameter outside its physical domain (negative time constant,
	// non-positive gain, dt <= 0, ...).
	ErrInvalidParameter = errors.New("looptune: invalid parameter")

	// ErrInsufficientData indicates a series too short, or a step too small,
	// to segment or fit.
	ErrInsufficientData = errors.New("looptune: insufficient data")

	// ErrFitDidNotConverge indicates the optimizer failed to reach a valid
	// minimum. No fallback model is substituted.
	ErrFitDidNotConverge = errors.New("looptune: fit did not converge")

	// ErrNumericalInstability indicates a NaN or Inf appeared during simulation.
	ErrNumericalInstability = errors.New("looptune: numerical instability (NaN or Inf)")

	// ErrNotInitialized indicates a stateful element was stepped before Reset.
	ErrNotInitialized = errors.New("looptune: used before reset")
)

// ParamError names the offending parameter.
type ParamError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s=%g %s", ErrInvalidParameter.Error(), e.Field, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}

// Invalid is shorthand for a *ParamError.
func Invalid(field string, value float64, reason string) error {
	return &ParamError{Field: field, Value: value, Reason: reason}
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
