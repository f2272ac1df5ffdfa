package strategy

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/parameter"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Constructor is a function that produces an instance, with one parameter
// per function argument. A nil parameter builds the argument type through
// the chain.
//
// Supported signatures:
//   - func(...) T
//   - func(...) (T, error)
type Constructor struct {
	Func   reflect.Value
	Params []parameter.Parameter

	returnsError bool
}

// NewConstructor validates fn and binds params to its arguments.
// With no params every argument is built by type.
func NewConstructor(fn any, params ...parameter.Parameter) (*Constructor, error) {
	if fn == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %v", fnType.Kind())
	}
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("constructor cannot be variadic")
	}

	numOut := fnType.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d return values", numOut)
	}
	returnsError := false
	if numOut == 2 {
		if fnType.Out(1) != errorType {
			return nil, fmt.Errorf("constructor's second return value must be error, got %v", fnType.Out(1))
		}
		returnsError = true
	}

	if len(params) == 0 {
		params = make([]parameter.Parameter, fnType.NumIn())
	}
	if len(params) != fnType.NumIn() {
		return nil, fmt.Errorf("constructor takes %d arguments, got %d parameters", fnType.NumIn(), len(params))
	}
	return &Constructor{Func: fnValue, Params: params, returnsError: returnsError}, nil
}

// MustConstructor is like NewConstructor but panics on an invalid function.
func MustConstructor(fn any, params ...parameter.Parameter) *Constructor {
	c, err := NewConstructor(fn, params...)
	if err != nil {
		panic(err)
	}
	return c
}

// Type returns the type the constructor produces.
func (c *Constructor) Type() reflect.Type {
	return c.Func.Type().Out(0)
}

// In returns the type of the i-th constructor argument.
func (c *Constructor) In(i int) reflect.Type {
	return c.Func.Type().In(i)
}

// NumIn returns the number of constructor arguments.
func (c *Constructor) NumIn() int {
	return c.Func.Type().NumIn()
}

// Invoke resolves the parameters and calls the constructor. An error
// returned by the constructor itself is passed through unchanged.
func (c *Constructor) Invoke(ctx *builder.Context) (any, error) {
	fnType := c.Func.Type()
	types := make([]reflect.Type, fnType.NumIn())
	for i := range types {
		types[i] = fnType.In(i)
	}
	args, err := parameter.Resolve(ctx, fnType.String(), c.Params, types)
	if err != nil {
		return nil, err
	}

	results := c.Func.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	out := results[0]
	if isNil(out) {
		return nil, &builder.DependencyMissingError{
			Key:    ctx.OriginalKey(),
			Member: fnType.String(),
			Reason: "constructor returned nil",
		}
	}
	return out.Interface(), nil
}

// CreationPolicy chooses how the Creation strategy allocates an instance.
// A nil constructor with a nil error falls back to zero allocation.
type CreationPolicy interface {
	SelectConstructor(ctx *builder.Context, key buildkey.Key) (*Constructor, error)
}

// Pinned always selects one constructor.
type Pinned struct {
	Constructor *Constructor
}

// SelectConstructor returns the pinned constructor.
func (p Pinned) SelectConstructor(*builder.Context, buildkey.Key) (*Constructor, error) {
	return p.Constructor, nil
}

// Candidates selects among several constructors, preferring the one with
// the most arguments. Ties keep registration order.
type Candidates struct {
	list []*Constructor
}

// NewCandidates creates a candidate list. Nil constructors are ignored.
func NewCandidates(constructors ...*Constructor) *Candidates {
	list := make([]*Constructor, 0, len(constructors))
	for _, c := range constructors {
		if c != nil {
			list = append(list, c)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].NumIn() > list[j].NumIn()
	})
	return &Candidates{list: list}
}

// Constructors returns the candidates in selection order.
func (c *Candidates) Constructors() []*Constructor {
	out := make([]*Constructor, len(c.list))
	copy(out, c.list)
	return out
}

// SelectConstructor returns the greediest candidate.
func (c *Candidates) SelectConstructor(_ *builder.Context, key buildkey.Key) (*Constructor, error) {
	if len(c.list) == 0 {
		return nil, &builder.DependencyMissingError{Key: key, Reason: "no constructor candidates"}
	}
	return c.list[0], nil
}

// Factory creates instances from a function of the build context.
type Factory func(ctx *builder.Context) (any, error)

// SelectConstructor adapts the factory to a Constructor taking the context.
func (f Factory) SelectConstructor(*builder.Context, buildkey.Key) (*Constructor, error) {
	return &Constructor{
		Func:         reflect.ValueOf((func(*builder.Context) (any, error))(f)),
		Params:       []parameter.Parameter{parameter.Func(contextParameter)},
		returnsError: true,
	}, nil
}

func contextParameter(ctx *builder.Context) (any, error) {
	return ctx, nil
}

// CreationStrategy allocates the instance when none exists yet.
type CreationStrategy struct {
	builder.Base
}

// NewCreationStrategy creates a CreationStrategy.
func NewCreationStrategy() *CreationStrategy {
	return &CreationStrategy{}
}

// BuildUp creates an instance of key through its CreationPolicy, or by
// zero allocation for struct, map and slice types.
func (s *CreationStrategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	if existing != nil {
		return next(key, existing)
	}

	instance, err := s.create(ctx, key)
	if err != nil {
		return nil, err
	}
	if t := key.Type(); t != nil && !reflect.TypeOf(instance).AssignableTo(t) {
		return nil, &builder.IncompatibleTypesError{
			Requested: t,
			Actual:    reflect.TypeOf(instance),
			Context:   "creation of " + key.String(),
		}
	}
	return next(key, instance)
}

func (s *CreationStrategy) create(ctx *builder.Context, key buildkey.Key) (any, error) {
	if creation, ok := policy.Get[CreationPolicy](ctx.Policies, key); ok {
		ctor, err := creation.SelectConstructor(ctx, key)
		if err != nil {
			return nil, err
		}
		if ctor != nil {
			ctx.Log().Debug("constructor selected",
				zap.Stringer("key", key), zap.Stringer("constructor", ctor.Func.Type()))
			return ctor.Invoke(ctx)
		}
	}
	return allocate(key)
}

func allocate(key buildkey.Key) (any, error) {
	t := key.Type()
	if t == nil {
		return nil, &builder.DependencyMissingError{Key: key, Reason: "no type to create"}
	}
	switch t.Kind() {
	case reflect.Ptr:
		if t.Elem().Kind() == reflect.Struct {
			return reflect.New(t.Elem()).Interface(), nil
		}
	case reflect.Struct:
		return reflect.New(t).Elem().Interface(), nil
	case reflect.Map:
		return reflect.MakeMap(t).Interface(), nil
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface(), nil
	case reflect.Interface:
		return nil, &builder.DependencyMissingError{Key: key, Reason: "no implementation registered for interface"}
	}
	return nil, &builder.DependencyMissingError{Key: key, Reason: fmt.Sprintf("cannot create %v without a constructor", t.Kind())}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return !v.IsValid()
}
