// Package intercept threads method calls on built instances through
// ordered handler pipelines.
//
// A Policy attached to a build key lists handlers per method of an
// interface. When the key is built, the interception strategy wraps the
// instance in a proxy registered for that interface; every proxied call
// then becomes an Invocation that travels through the method's Pipeline,
// outermost handler first, and reaches the real instance last.
package intercept

import (
	"context"
	"reflect"

	"github.com/google/uuid"
)

// Invocation describes one intercepted call. Handlers may replace
// arguments before calling the next handler.
type Invocation struct {
	ID        uuid.UUID
	Target    any
	Interface reflect.Type
	Method    string
	Args      []any
}

// NewInvocation creates an Invocation with a fresh id.
func NewInvocation(target any, iface reflect.Type, method string, args ...any) *Invocation {
	return &Invocation{
		ID:        uuid.New(),
		Target:    target,
		Interface: iface,
		Method:    method,
		Args:      args,
	}
}

// Context returns the first argument when it is a context.Context, and
// context.Background otherwise.
func (inv *Invocation) Context() context.Context {
	if len(inv.Args) > 0 {
		if ctx, ok := inv.Args[0].(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// Return is the outcome of an invocation: either the results of the
// method, or the failure it raised. Never both.
type Return struct {
	// Value is the first result, or nil for methods without results.
	Value any
	// Outputs holds every result except a trailing error.
	Outputs []any
	// Err is the captured failure.
	Err error
}

// NewReturn creates a successful Return from the method results.
func NewReturn(outputs ...any) *Return {
	r := &Return{Outputs: outputs}
	if len(outputs) > 0 {
		r.Value = outputs[0]
	}
	return r
}

// Failure creates a failed Return.
func Failure(err error) *Return {
	return &Return{Err: err}
}

// Failed reports whether the invocation failed.
func (r *Return) Failed() bool {
	return r.Err != nil
}

// Output returns the i-th result, or nil when there is none.
func (r *Return) Output(i int) any {
	if i < 0 || i >= len(r.Outputs) {
		return nil
	}
	return r.Outputs[i]
}

// Result converts the first result of r to T and returns it with the
// failure, for proxy methods returning (T, error).
func Result[T any](r *Return) (T, error) {
	var zero T
	if r.Err != nil {
		return zero, r.Err
	}
	if v, ok := r.Value.(T); ok {
		return v, nil
	}
	return zero, nil
}

// MustResult is like Result for proxy methods without an error result.
// A failure is raised as a panic.
func MustResult[T any](r *Return) T {
	v, err := Result[T](r)
	if err != nil {
		panic(err)
	}
	return v
}
