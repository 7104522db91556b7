package anydiffusion

import (
	"fmt"
	"math"
)

// A ConfigError indicates that a loss was configured with
// an invalid hyperparameter.
type ConfigError struct {
	Loss   string
	Field  string
	Value  float64
	Reason string
}

// Error returns a human-readable description of the
// invalid hyperparameter.
func (c *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s config: %s=%v %s", c.Loss, c.Field, c.Value, c.Reason)
}

func checkPositive(loss, field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return &ConfigError{Loss: loss, Field: field, Value: value,
			Reason: "must be positive and finite"}
	}
	return nil
}

func checkFinite(loss, field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &ConfigError{Loss: loss, Field: field, Value: value,
			Reason: "must be finite"}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
