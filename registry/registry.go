// Package registry records the bindings registered through the container
// façade so they can be listed, grouped by tag and checked for duplicates.
// The bindings themselves are enforced by policies; the registry only
// describes them.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
)

// Binding describes one registration.
type Binding struct {
	// Key is the requested (type, name) pair.
	Key buildkey.Key

	// Concrete is the implementation type, nil for factories and values
	// whose type is only known once built.
	Concrete reflect.Type

	// Lifetime is the lifetime name: "transient", "singleton", "scoped",
	// "factory" or "instance".
	Lifetime string

	// Tags are optional labels for grouped resolution.
	Tags []string

	seq uint64
}

// HasTag reports whether the binding carries tag.
func (b *Binding) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Registry stores bindings by key. It is safe for concurrent use.
type Registry struct {
	bindings *xsync.MapOf[buildkey.Key, *Binding]
	seq      atomic.Uint64
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{bindings: xsync.NewMapOf[buildkey.Key, *Binding]()}
}

// Register stores a binding. A second binding for the same key is
// rejected with BindingAlreadyExistsError.
func (r *Registry) Register(binding *Binding) error {
	if binding == nil {
		return fmt.Errorf("binding cannot be nil")
	}
	if binding.Key.Type() == nil {
		return fmt.Errorf("binding key has no type")
	}
	binding.seq = r.seq.Add(1)
	if _, loaded := r.bindings.LoadOrStore(binding.Key, binding); loaded {
		return &BindingAlreadyExistsError{Key: binding.Key}
	}
	return nil
}

// Get retrieves the binding for key.
func (r *Registry) Get(key buildkey.Key) (*Binding, error) {
	binding, ok := r.bindings.Load(key)
	if !ok {
		return nil, &BindingNotFoundError{Key: key}
	}
	return binding, nil
}

// Has checks if a binding exists for key.
func (r *Registry) Has(key buildkey.Key) bool {
	_, ok := r.bindings.Load(key)
	return ok
}

// Remove deletes the binding for key.
func (r *Registry) Remove(key buildkey.Key) bool {
	_, ok := r.bindings.LoadAndDelete(key)
	return ok
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	return r.bindings.Size()
}

// All returns every binding of type t, named or not, in registration order.
func (r *Registry) All(t reflect.Type) []*Binding {
	return r.collect(func(b *Binding) bool { return b.Key.Type() == t })
}

// ByTag returns every binding carrying tag, in registration order.
func (r *Registry) ByTag(tag string) []*Binding {
	return r.collect(func(b *Binding) bool { return b.HasTag(tag) })
}

// Names returns the names bound for type t, excluding the unnamed binding.
func (r *Registry) Names(t reflect.Type) []string {
	var names []string
	for _, b := range r.All(t) {
		if b.Key.Name() != "" {
			names = append(names, b.Key.Name())
		}
	}
	return names
}

// Types returns every bound type, in order of first registration.
func (r *Registry) Types() []reflect.Type {
	seen := map[reflect.Type]bool{}
	var types []reflect.Type
	for _, b := range r.collect(func(*Binding) bool { return true }) {
		if !seen[b.Key.Type()] {
			seen[b.Key.Type()] = true
			types = append(types, b.Key.Type())
		}
	}
	return types
}

func (r *Registry) collect(match func(*Binding) bool) []*Binding {
	var result []*Binding
	r.bindings.Range(func(_ buildkey.Key, b *Binding) bool {
		if match(b) {
			result = append(result, b)
		}
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

// BindingAlreadyExistsError is returned when attempting to register a duplicate binding.
type BindingAlreadyExistsError struct {
	Key buildkey.Key
}

func (e *BindingAlreadyExistsError) Error() string {
	return fmt.Sprintf("binding already exists for %v", e.Key)
}

// BindingNotFoundError is returned when a requested binding does not exist.
type BindingNotFoundError struct {
	Key buildkey.Key
}

func (e *BindingNotFoundError) Error() string {
	return fmt.Sprintf("binding not found for %v", e.Key)
}
