package nasc

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/registry"
)

// Sentinels matched with errors.Is against resolution errors.
var (
	ErrDependencyMissing         = builder.ErrDependencyMissing
	ErrInvalidAttribute          = builder.ErrInvalidAttribute
	ErrIncompatibleTypes         = builder.ErrIncompatibleTypes
	ErrCyclicDependency          = builder.ErrCyclicDependency
	ErrInterceptionConfiguration = builder.ErrInterceptionConfiguration
)

type (
	// BindingNotFoundError is returned when a requested binding does not exist.
	BindingNotFoundError = registry.BindingNotFoundError
	// BindingAlreadyExistsError is returned when attempting to register a duplicate binding.
	BindingAlreadyExistsError = registry.BindingAlreadyExistsError
	// CircularDependencyError indicates a circular dependency was detected.
	CircularDependencyError = builder.CyclicDependencyError
)

// InvalidBindingError is returned when a binding has invalid parameters.
type InvalidBindingError struct {
	Reason string
}

func (e *InvalidBindingError) Error() string {
	return fmt.Sprintf("invalid binding: %s", e.Reason)
}

// ResolutionError is returned when instance resolution fails.
type ResolutionError struct {
	Type  reflect.Type
	Name  string
	Cause error
}

func (e *ResolutionError) Error() string {
	typeStr := "unknown"
	if e.Type != nil {
		typeStr = e.Type.String()
	}

	nameStr := ""
	if e.Name != "" {
		nameStr = fmt.Sprintf(" (name=%s)", e.Name)
	}

	causeStr := ""
	if e.Cause != nil {
		causeStr = fmt.Sprintf(": %v", e.Cause)
	}

	return fmt.Sprintf("failed to resolve %s%s%s", typeStr, nameStr, causeStr)
}

// Unwrap returns the underlying cause error.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}
