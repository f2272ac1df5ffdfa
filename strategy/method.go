package strategy

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/parameter"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

// MethodCall names a method to call on a built instance and the parameters
// for its arguments. Nil parameters build the argument type.
type MethodCall struct {
	Name   string
	Params []parameter.Parameter
}

// Call creates a MethodCall.
func Call(name string, params ...parameter.Parameter) MethodCall {
	return MethodCall{Name: name, Params: params}
}

// MethodPolicy lists the methods to call after creation.
type MethodPolicy interface {
	Methods() []MethodCall
}

// Methods is the stock MethodPolicy.
type Methods []MethodCall

// Methods returns m.
func (m Methods) Methods() []MethodCall {
	return m
}

// MethodStrategy calls the methods of the MethodPolicy in order. A method
// whose last result is a non-nil error fails the build with that error.
type MethodStrategy struct {
	builder.Base
}

// NewMethodStrategy creates a MethodStrategy.
func NewMethodStrategy() *MethodStrategy {
	return &MethodStrategy{}
}

// BuildUp calls the configured methods on existing.
func (s *MethodStrategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	methodPolicy, ok := policy.Get[MethodPolicy](ctx.Policies, key)
	if !ok {
		return next(key, existing)
	}
	for _, call := range methodPolicy.Methods() {
		if err := invokeMethod(ctx, existing, call); err != nil {
			return nil, err
		}
		ctx.Log().Debug("method injected", zap.Stringer("key", key), zap.String("method", call.Name))
	}
	return next(key, existing)
}

func invokeMethod(ctx *builder.Context, instance any, call MethodCall) error {
	if instance == nil {
		return &builder.InvalidAttributeError{Member: call.Name, Reason: "no instance to call"}
	}
	value := reflect.ValueOf(instance)
	method := value.MethodByName(call.Name)
	if !method.IsValid() {
		return &builder.InvalidAttributeError{Type: value.Type(), Member: call.Name, Reason: "method not found"}
	}
	methodType := method.Type()
	if methodType.IsVariadic() {
		return &builder.InvalidAttributeError{Type: value.Type(), Member: call.Name, Reason: "variadic methods are not supported"}
	}
	params := call.Params
	if len(params) == 0 {
		params = make([]parameter.Parameter, methodType.NumIn())
	}
	if len(params) != methodType.NumIn() {
		return &builder.InvalidAttributeError{
			Type:   value.Type(),
			Member: call.Name,
			Reason: fmt.Sprintf("method takes %d arguments, got %d parameters", methodType.NumIn(), len(params)),
		}
	}

	types := make([]reflect.Type, methodType.NumIn())
	for i := range types {
		types[i] = methodType.In(i)
	}
	args, err := parameter.Resolve(ctx, call.Name, params, types)
	if err != nil {
		return err
	}

	results := method.Call(args)
	if n := len(results); n > 0 && methodType.Out(n-1) == errorType && !results[n-1].IsNil() {
		return results[n-1].Interface().(error)
	}
	return nil
}
