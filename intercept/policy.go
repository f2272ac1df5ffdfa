package intercept

import (
	"fmt"
	"reflect"
	"sync"
)

// Policy configures interception for one interface type. Handlers added
// for every method run outside the handlers added for a single method.
type Policy struct {
	iface reflect.Type

	mu        sync.Mutex
	all       []Handler
	methods   map[string][]Handler
	pipelines map[string]*Pipeline
}

// NewPolicy creates a Policy for the interface I.
func NewPolicy[I any]() *Policy {
	return NewPolicyFor(reflect.TypeOf((*I)(nil)).Elem())
}

// NewPolicyFor creates a Policy for iface.
func NewPolicyFor(iface reflect.Type) *Policy {
	return &Policy{iface: iface, methods: map[string][]Handler{}}
}

// Interface returns the intercepted interface type.
func (p *Policy) Interface() reflect.Type {
	return p.iface
}

// Add appends handlers for one method.
func (p *Policy) Add(method string, handlers ...Handler) *Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.methods[method] = append(p.methods[method], handlers...)
	p.pipelines = nil
	return p
}

// AddAll appends handlers for every method of the interface.
func (p *Policy) AddAll(handlers ...Handler) *Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.all = append(p.all, handlers...)
	p.pipelines = nil
	return p
}

// Pipelines returns one pipeline per method of the interface, built on
// first use and reused until handlers are added. Methods without handlers
// get an empty pipeline. Handlers for methods the interface does not have
// are an error.
func (p *Policy) Pipelines() (map[string]*Pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipelines != nil {
		return p.pipelines, nil
	}
	if p.iface == nil || p.iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%v is not an interface type", p.iface)
	}
	for name := range p.methods {
		if _, ok := p.iface.MethodByName(name); !ok {
			return nil, fmt.Errorf("%v has no method %s", p.iface, name)
		}
	}

	pipelines := make(map[string]*Pipeline, p.iface.NumMethod())
	for i := 0; i < p.iface.NumMethod(); i++ {
		name := p.iface.Method(i).Name
		handlers := make([]Handler, 0, len(p.all)+len(p.methods[name]))
		handlers = append(handlers, p.all...)
		handlers = append(handlers, p.methods[name]...)
		pipelines[name] = NewPipeline(handlers...)
	}
	p.pipelines = pipelines
	return pipelines, nil
}
