package models

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed, missing or out-of-range field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ConfigurationError reports a structural mismatch between data and declared features.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// NewConfigurationError constructs a ConfigurationError.
func NewConfigurationError(op, reason string) error {
	return &ConfigurationError{Op: op, Reason: reason}
}

// ErrNumericalGuard is returned when the training objective is not finite at the
// starting point. The likelihood floor and sensitivity bound keep it from firing on valid data.
var ErrNumericalGuard = errors.New("numerical guard: objective is not finite")

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfiguration reports whether err wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
