package simulator

import (
	"fmt"

	"go.uber.org/multierr"
)

// SimError is a custom error type for simulation errors
type SimError struct {
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return SimError{Message: fmt.Sprintf("invalid config: %s", msg)}
}

// FieldError reports a single configuration field that could not be applied.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: cannot use %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// InvalidFields returns the names of all fields rejected in err, in the order
// they were reported. Errors that are not FieldErrors are skipped.
func InvalidFields(err error) []string {
	var names []string
	for _, e := range multierr.Errors(err) {
		if fe, ok := e.(*FieldError); ok {
			names = append(names, fe.Field)
		}
	}
	return names
}
