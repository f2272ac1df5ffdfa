package intercept

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
)

// ProxyFactory wraps a target in a proxy implementing iface that routes
// every call through the pipeline of the called method.
type ProxyFactory interface {
	Wrap(target any, iface reflect.Type, pipelines map[string]*Pipeline) (any, error)
}

// Dispatcher routes proxied calls to their pipelines. Proxies embed it and
// forward each method with Call:
//
//	type greeterProxy struct{ *intercept.Dispatcher }
//
//	func (p greeterProxy) Greet(name string) (string, error) {
//	    return intercept.Result[string](p.Call("Greet", name))
//	}
type Dispatcher struct {
	target    any
	iface     reflect.Type
	pipelines map[string]*Pipeline
}

// NewDispatcher creates a Dispatcher for target.
func NewDispatcher(target any, iface reflect.Type, pipelines map[string]*Pipeline) *Dispatcher {
	return &Dispatcher{target: target, iface: iface, pipelines: pipelines}
}

// Call invokes method with args through its pipeline, with the real
// target as the innermost step.
func (d *Dispatcher) Call(method string, args ...any) *Return {
	inv := NewInvocation(d.target, d.iface, method, args...)
	return d.pipelines[method].Invoke(inv, InvokeTarget)
}

// Unwrap returns the proxied target.
func (d *Dispatcher) Unwrap() any {
	return d.target
}

// Proxies is a ProxyFactory backed by typed proxy constructors, one per
// interface.
type Proxies struct {
	constructors *xsync.MapOf[reflect.Type, func(*Dispatcher) any]
}

// NewProxies creates an empty registry.
func NewProxies() *Proxies {
	return &Proxies{constructors: xsync.NewMapOf[reflect.Type, func(*Dispatcher) any]()}
}

// RegisterProxy registers the proxy constructor for interface I,
// replacing any previous one.
func RegisterProxy[I any](p *Proxies, constructor func(*Dispatcher) I) error {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	if iface.Kind() != reflect.Interface {
		return fmt.Errorf("%v is not an interface type", iface)
	}
	if constructor == nil {
		return fmt.Errorf("proxy constructor for %v cannot be nil", iface)
	}
	p.constructors.Store(iface, func(d *Dispatcher) any {
		return constructor(d)
	})
	return nil
}

// Has reports whether a proxy constructor is registered for iface.
func (p *Proxies) Has(iface reflect.Type) bool {
	_, ok := p.constructors.Load(iface)
	return ok
}

// Wrap builds the registered proxy for iface around target.
func (p *Proxies) Wrap(target any, iface reflect.Type, pipelines map[string]*Pipeline) (any, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%v is not an interface type", iface)
	}
	if target == nil || !reflect.TypeOf(target).Implements(iface) {
		return nil, fmt.Errorf("%T does not implement %v", target, iface)
	}
	constructor, ok := p.constructors.Load(iface)
	if !ok {
		return nil, fmt.Errorf("no proxy registered for %v", iface)
	}
	return constructor(NewDispatcher(target, iface, pipelines)), nil
}
