package intercept

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-nasc-builder/parameter"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Next continues an invocation with the rest of the pipeline.
type Next func(inv *Invocation) *Return

// Handler wraps an invocation. It calls next to continue, or returns its
// own Return to stop the call from going further in.
type Handler interface {
	Invoke(inv *Invocation, next Next) *Return
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(inv *Invocation, next Next) *Return

// Invoke calls f.
func (f HandlerFunc) Invoke(inv *Invocation, next Next) *Return {
	return f(inv, next)
}

// Pipeline is a fixed, ordered list of handlers for one method.
type Pipeline struct {
	handlers []Handler
}

// NewPipeline creates a Pipeline. Nil handlers are ignored.
func NewPipeline(handlers ...Handler) *Pipeline {
	p := &Pipeline{handlers: make([]Handler, 0, len(handlers))}
	for _, h := range handlers {
		if h != nil {
			p.handlers = append(p.handlers, h)
		}
	}
	return p
}

// Count returns the number of handlers.
func (p *Pipeline) Count() int {
	if p == nil {
		return 0
	}
	return len(p.handlers)
}

// Invoke runs inv through the handlers in order; the last one continues
// to terminal. An empty pipeline calls terminal directly.
func (p *Pipeline) Invoke(inv *Invocation, terminal Next) *Return {
	var handlers []Handler
	if p != nil {
		handlers = p.handlers
	}
	var step func(i int) Next
	step = func(i int) Next {
		if i == len(handlers) {
			return terminal
		}
		return func(inv *Invocation) *Return {
			return handlers[i].Invoke(inv, step(i+1))
		}
	}
	return step(0)(inv)
}

// InvokeTarget calls the invoked method on the real target. A panic or a
// non-nil trailing error result becomes a failed Return.
func InvokeTarget(inv *Invocation) (ret *Return) {
	defer func() {
		if r := recover(); r != nil {
			ret = Failure(fmt.Errorf("panic in %s: %v", inv.Method, r))
		}
	}()

	if inv.Target == nil {
		return Failure(fmt.Errorf("no target for %s", inv.Method))
	}
	method := reflect.ValueOf(inv.Target).MethodByName(inv.Method)
	if !method.IsValid() {
		return Failure(fmt.Errorf("%T has no method %s", inv.Target, inv.Method))
	}
	args, err := callArgs(method.Type(), inv.Args)
	if err != nil {
		return Failure(fmt.Errorf("%s: %w", inv.Method, err))
	}

	var results []reflect.Value
	if method.Type().IsVariadic() {
		results = method.CallSlice(args)
	} else {
		results = method.Call(args)
	}

	methodType := method.Type()
	if n := len(results); n > 0 && methodType.Out(n-1) == errorType {
		if !results[n-1].IsNil() {
			return Failure(results[n-1].Interface().(error))
		}
		results = results[:n-1]
	}
	outputs := make([]any, len(results))
	for i, r := range results {
		outputs[i] = r.Interface()
	}
	return NewReturn(outputs...)
}

// callArgs converts args to the parameter types of a method. The last
// argument of a variadic method is expected to be the slice itself.
func callArgs(methodType reflect.Type, args []any) ([]reflect.Value, error) {
	if len(args) != methodType.NumIn() {
		return nil, fmt.Errorf("expected %d arguments, got %d", methodType.NumIn(), len(args))
	}
	values := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := parameter.Convert(arg, methodType.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}
