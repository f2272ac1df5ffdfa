package builder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
)

var (
	// ErrDependencyMissing matches errors raised when a required value cannot be resolved.
	ErrDependencyMissing = errors.New("dependency missing")
	// ErrInvalidAttribute matches errors raised for ambiguous or contradictory injection configuration.
	ErrInvalidAttribute = errors.New("invalid injection attribute")
	// ErrIncompatibleTypes matches errors raised when a mapped type cannot satisfy the requested one.
	ErrIncompatibleTypes = errors.New("incompatible types")
	// ErrCyclicDependency matches errors raised when a key reappears on the active build stack.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrInterceptionConfiguration matches errors raised when an instance cannot be proxied.
	ErrInterceptionConfiguration = errors.New("interception configuration")
)

// DependencyMissingError is returned when a constructor or member parameter
// cannot be resolved to any value.
type DependencyMissingError struct {
	Key    buildkey.Key
	Member string
	Reason string
	Cause  error
}

func (e *DependencyMissingError) Error() string {
	var b strings.Builder
	b.WriteString("dependency missing for ")
	b.WriteString(e.Key.String())
	if e.Member != "" {
		b.WriteString(" (")
		b.WriteString(e.Member)
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DependencyMissingError) Is(target error) bool { return target == ErrDependencyMissing }

func (e *DependencyMissingError) Unwrap() error { return e.Cause }

// InvalidAttributeError is returned when the injection configuration of a
// member is ambiguous or self-contradictory.
type InvalidAttributeError struct {
	Type   reflect.Type
	Member string
	Reason string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("invalid injection attribute on %v.%s: %s", e.Type, e.Member, e.Reason)
}

func (e *InvalidAttributeError) Is(target error) bool { return target == ErrInvalidAttribute }

// IncompatibleTypesError is returned when a mapped or resolved type cannot
// satisfy the requested type.
type IncompatibleTypesError struct {
	Requested reflect.Type
	Actual    reflect.Type
	Context   string
}

func (e *IncompatibleTypesError) Error() string {
	contextStr := ""
	if e.Context != "" {
		contextStr = fmt.Sprintf(" (%s)", e.Context)
	}
	return fmt.Sprintf("type %v is not assignable to %v%s", e.Actual, e.Requested, contextStr)
}

func (e *IncompatibleTypesError) Is(target error) bool { return target == ErrIncompatibleTypes }

// CyclicDependencyError indicates a build key reappeared on the active build
// stack before its build completed.
type CyclicDependencyError struct {
	Path []buildkey.Key
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "circular dependency detected"
	}
	parts := make([]string, len(e.Path))
	for i, key := range e.Path {
		parts[i] = key.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, " -> "))
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }

// InterceptionConfigurationError is returned when an interception policy
// targets an instance that cannot be proxied.
type InterceptionConfigurationError struct {
	Key       buildkey.Key
	Interface reflect.Type
	Reason    string
}

func (e *InterceptionConfigurationError) Error() string {
	return fmt.Sprintf("cannot intercept %v as %v: %s", e.Key, e.Interface, e.Reason)
}

func (e *InterceptionConfigurationError) Is(target error) bool {
	return target == ErrInterceptionConfiguration
}
