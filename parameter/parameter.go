// Package parameter resolves the values handed to constructors, properties
// and methods during a build.
package parameter

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
)

// Parameter produces one value for an injection point.
type Parameter interface {
	// Value resolves the value within the given build context.
	Value(ctx *builder.Context) (any, error)
}

// Cloner is implemented by values that can copy themselves.
type Cloner interface {
	Clone() any
}

// Func adapts a function to Parameter.
type Func func(ctx *builder.Context) (any, error)

// Value calls f.
func (f Func) Value(ctx *builder.Context) (any, error) {
	return f(ctx)
}

type fixed struct {
	value any
}

// Value returns a Parameter that always yields v.
func Value(v any) Parameter {
	return fixed{value: v}
}

func (p fixed) Value(*builder.Context) (any, error) {
	return p.value, nil
}

func (p fixed) String() string {
	return fmt.Sprintf("value(%v)", p.value)
}

type lookup struct {
	key any
}

// Lookup returns a Parameter that reads key from the context locator.
// A missing key is reported as a DependencyMissingError.
func Lookup(key any) Parameter {
	return lookup{key: key}
}

func (p lookup) Value(ctx *builder.Context) (any, error) {
	if v, ok := ctx.Locator.Get(p.key); ok {
		return v, nil
	}
	return nil, &builder.DependencyMissingError{
		Key:    ctx.OriginalKey(),
		Member: fmt.Sprintf("lookup %v", p.key),
		Reason: "not found in locator",
	}
}

func (p lookup) String() string {
	return fmt.Sprintf("lookup(%v)", p.key)
}

type create struct {
	key buildkey.Key
}

// Create returns a Parameter that builds (t, name) through the whole chain.
func Create(t reflect.Type, name string) Parameter {
	return create{key: buildkey.New(t, name)}
}

// CreateOf is the typed form of Create.
func CreateOf[T any](name ...string) Parameter {
	return create{key: buildkey.Of[T](name...)}
}

// CreateKey returns a Parameter that builds key through the whole chain.
func CreateKey(key buildkey.Key) Parameter {
	return create{key: key}
}

func (p create) Value(ctx *builder.Context) (any, error) {
	return ctx.BuildUp(p.key, nil)
}

func (p create) String() string {
	return fmt.Sprintf("create(%v)", p.key)
}

// Key returns the key built by a creation parameter.
func (p create) Key() buildkey.Key {
	return p.key
}

type clone struct {
	inner Parameter
}

// Clone returns a Parameter that clones the value of inner when it
// implements Cloner, and yields the original value otherwise.
func Clone(inner Parameter) Parameter {
	return clone{inner: inner}
}

func (p clone) Value(ctx *builder.Context) (any, error) {
	v, err := p.inner.Value(ctx)
	if err != nil {
		return nil, err
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone(), nil
	}
	return v, nil
}

type optional struct {
	inner Parameter
}

// Optional returns a Parameter that yields nil, resolved later to the zero
// value of the target type, when inner reports a missing dependency.
// Other failures are returned unchanged.
func Optional(inner Parameter) Parameter {
	return optional{inner: inner}
}

func (p optional) Value(ctx *builder.Context) (any, error) {
	v, err := p.inner.Value(ctx)
	if err != nil {
		if errors.Is(err, builder.ErrDependencyMissing) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// Resolve resolves params into values assignable to types, in order.
// A nil value becomes the zero value of its type; a value that cannot be
// assigned is reported as an IncompatibleTypesError naming member.
func Resolve(ctx *builder.Context, member string, params []Parameter, types []reflect.Type) ([]reflect.Value, error) {
	if len(params) != len(types) {
		return nil, &builder.InvalidAttributeError{
			Type:   ctx.OriginalKey().Type(),
			Member: member,
			Reason: fmt.Sprintf("expected %d parameters, got %d", len(types), len(params)),
		}
	}
	values := make([]reflect.Value, len(params))
	for i, p := range params {
		target := types[i]
		if p == nil {
			p = Create(target, "")
		}
		v, err := p.Value(ctx)
		if err != nil {
			return nil, err
		}
		converted, err := Convert(v, target)
		if err != nil {
			return nil, &builder.IncompatibleTypesError{
				Requested: target,
				Actual:    reflect.TypeOf(v),
				Context:   fmt.Sprintf("%s parameter %d", member, i),
			}
		}
		values[i] = converted
	}
	return values, nil
}

// Convert returns v as a reflect.Value of type target. Numbers convert
// between numeric kinds only when the value survives unchanged: overflow,
// a sign change or a dropped fraction fail with an IncompatibleTypesError.
// Narrowing a float keeps the nearest representable value.
func Convert(v any, target reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(target) {
		if rv.Type() == target {
			return rv, nil
		}
		out := reflect.New(target).Elem()
		out.Set(rv)
		return out, nil
	}
	incompatible := func(reason string) error {
		return &builder.IncompatibleTypesError{Requested: target, Actual: rv.Type(), Context: reason}
	}
	if !isNumber(rv.Kind()) || !isNumber(target.Kind()) {
		return reflect.Value{}, incompatible("")
	}
	if reason := lossOf(rv, target); reason != "" {
		return reflect.Value{}, incompatible(fmt.Sprintf("%v %s", v, reason))
	}
	return rv.Convert(target), nil
}

// lossOf describes what converting the number rv to target would lose, or
// returns "" when the conversion is exact.
func lossOf(rv reflect.Value, target reflect.Type) string {
	zero := reflect.Zero(target)
	switch {
	case isInt(rv.Kind()):
		i := rv.Int()
		switch {
		case isInt(target.Kind()):
			if zero.OverflowInt(i) {
				return "overflows"
			}
		case isUint(target.Kind()):
			if i < 0 {
				return "is negative"
			}
			if zero.OverflowUint(uint64(i)) {
				return "overflows"
			}
		default:
			if zero.OverflowFloat(float64(i)) || int64(float64(i)) != i {
				return "loses precision"
			}
		}
	case isUint(rv.Kind()):
		u := rv.Uint()
		switch {
		case isInt(target.Kind()):
			if u > math.MaxInt64 || zero.OverflowInt(int64(u)) {
				return "overflows"
			}
		case isUint(target.Kind()):
			if zero.OverflowUint(u) {
				return "overflows"
			}
		default:
			if f := float64(u); f >= 1<<64 || uint64(f) != u || zero.OverflowFloat(f) {
				return "loses precision"
			}
		}
	default:
		f := rv.Float()
		switch {
		case isInt(target.Kind()):
			if math.IsNaN(f) || f != math.Trunc(f) {
				return "has a fraction"
			}
			if f < math.MinInt64 || f >= math.MaxInt64 || zero.OverflowInt(int64(f)) {
				return "overflows"
			}
		case isUint(target.Kind()):
			if math.IsNaN(f) || f != math.Trunc(f) {
				return "has a fraction"
			}
			if f < 0 {
				return "is negative"
			}
			if f >= 1<<64 || zero.OverflowUint(uint64(f)) {
				return "overflows"
			}
		default:
			if !math.IsInf(f, 0) && zero.OverflowFloat(f) {
				return "overflows"
			}
		}
	}
	return ""
}

func isInt(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(kind reflect.Kind) bool {
	switch kind {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumber(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
