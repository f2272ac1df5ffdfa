package nasc

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/policy"
	"github.com/toutaio/toutago-nasc-builder/strategy"
)

// ValidationError indicates problems found during binding validation.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation failed: %v", e.Errors[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %v\n", i+1, err)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// keyed is implemented by parameters that build a key.
type keyed interface {
	Key() buildkey.Key
}

// Validate walks the dependency graph of every binding without building
// anything and reports missing dependencies and cycles. Dependencies hidden
// in factories, optional or cloned parameters are not followed.
func (n *Nasc) Validate() error {
	v := &validator{n: n, done: map[buildkey.Key]bool{}}
	var errs []error
	for _, t := range n.registry.Types() {
		for _, b := range n.registry.All(t) {
			if err := v.visit(b.Key, nil); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

type validator struct {
	n    *Nasc
	done map[buildkey.Key]bool
}

func (v *validator) visit(key buildkey.Key, path []buildkey.Key) error {
	if v.done[key] {
		return nil
	}
	for i, active := range path {
		if active == key {
			cycle := append(append([]buildkey.Key{}, path[i:]...), key)
			return &builder.CyclicDependencyError{Path: cycle}
		}
	}
	path = append(path, key)

	if _, ok := v.n.lifetime.Get(key); ok {
		v.done[key] = true
		return nil
	}
	if mapping, ok := policy.Get[strategy.TypeMappingPolicy](v.n.policies, key); ok {
		if err := v.visit(mapping.Map(key), path); err != nil {
			return err
		}
		v.done[key] = true
		return nil
	}

	deps, err := v.dependencies(key)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		if err := v.visit(dep, path); err != nil {
			return err
		}
	}
	v.done[key] = true
	return nil
}

// dependencies returns the keys built when key is built: constructor
// parameters, or the tagged fields of a zero-allocated struct.
func (v *validator) dependencies(key buildkey.Key) ([]buildkey.Key, error) {
	var deps []buildkey.Key
	if creation, ok := policy.Get[strategy.CreationPolicy](v.n.policies, key); ok {
		var ctor *strategy.Constructor
		switch c := creation.(type) {
		case strategy.Pinned:
			ctor = c.Constructor
		case *strategy.Candidates:
			if list := c.Constructors(); len(list) > 0 {
				ctor = list[0]
			}
		default:
			return nil, nil
		}
		if ctor == nil {
			return nil, nil
		}
		for i, p := range ctor.Params {
			switch p := p.(type) {
			case nil:
				deps = append(deps, buildkey.New(ctor.In(i), ""))
			case keyed:
				deps = append(deps, p.Key())
			}
		}
		return deps, nil
	}

	t := key.Type()
	switch {
	case t.Kind() == reflect.Interface:
		return nil, &builder.DependencyMissingError{Key: key, Reason: "no implementation registered for interface"}
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct,
		t.Kind() == reflect.Struct, t.Kind() == reflect.Map, t.Kind() == reflect.Slice:
	default:
		return nil, &builder.DependencyMissingError{Key: key, Reason: fmt.Sprintf("cannot create %v without a constructor", t.Kind())}
	}
	properties, err := v.n.scanCache.Properties(t)
	if err != nil {
		return nil, err
	}
	if explicit, ok := policy.Get[strategy.PropertyPolicy](v.n.policies, key); ok {
		properties = explicit.Properties()
	}
	for _, p := range properties {
		if k, ok := p.Value.(keyed); ok {
			deps = append(deps, k.Key())
		}
	}
	return deps, nil
}
