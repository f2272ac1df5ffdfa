package nasc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/registry"
)

// Make resolves and returns an instance of the requested type.
// The abstractType should be an interface pointer like (*Logger)(nil) or
// a struct pointer like &Service{}. It panics when resolution fails; use
// MakeSafe to get the error instead.
//
// Example:
//
//	logger := container.Make((*Logger)(nil)).(Logger)
func (n *Nasc) Make(abstractType any) any {
	instance, err := n.MakeSafe(abstractType)
	if err != nil {
		panic(err)
	}
	return instance
}

// MakeSafe resolves an instance like Make, returning an error instead of
// panicking. The error is a *ResolutionError whose cause matches the
// builder sentinels (ErrDependencyMissing, ErrCyclicDependency, ...).
//
// Example:
//
//	service, err := container.MakeSafe((*Service)(nil))
//	if errors.Is(err, nasc.ErrDependencyMissing) { ... }
func (n *Nasc) MakeSafe(abstractType any) (any, error) {
	return n.MakeNamedSafe(abstractType, "")
}

// MakeNamed resolves and returns a named instance, panicking on failure.
//
// Example:
//
//	logger := container.MakeNamed((*Logger)(nil), "file").(Logger)
func (n *Nasc) MakeNamed(abstractType any, name string) any {
	instance, err := n.MakeNamedSafe(abstractType, name)
	if err != nil {
		panic(err)
	}
	return instance
}

// MakeNamedSafe resolves a named instance, returning an error on failure.
func (n *Nasc) MakeNamedSafe(abstractType any, name string) (any, error) {
	key, err := tokenKey(abstractType, name)
	if err != nil {
		return nil, err
	}
	return n.resolve(key)
}

// MakeAll resolves and returns all implementations of an interface.
// This includes both named and unnamed bindings, in registration order.
//
// Example:
//
//	loggers := container.MakeAll((*Logger)(nil))
//	for _, logger := range loggers {
//	    logger.(Logger).Log("message")
//	}
func (n *Nasc) MakeAll(abstractType any) []any {
	instances, err := n.resolveAll(n.Bindings(abstractType))
	if err != nil {
		panic(err)
	}
	return instances
}

// MakeWithTag resolves all instances with the specified tag.
//
// Example:
//
//	plugins := container.MakeWithTag("plugin")
func (n *Nasc) MakeWithTag(tag string) []any {
	if tag == "" {
		panic(&InvalidBindingError{Reason: "tag cannot be empty"})
	}
	instances, err := n.resolveAll(n.registry.ByTag(tag))
	if err != nil {
		panic(err)
	}
	return instances
}

func (n *Nasc) resolveAll(bindings []*registry.Binding) ([]any, error) {
	instances := make([]any, 0, len(bindings))
	for _, binding := range bindings {
		instance, err := n.resolve(binding.Key)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Resolve resolves T from the container.
//
// Example:
//
//	logger, err := nasc.Resolve[Logger](container)
func Resolve[T any](n *Nasc) (T, error) {
	return ResolveNamed[T](n, "")
}

// ResolveNamed resolves the instance of T registered under name.
func ResolveNamed[T any](n *Nasc, name string) (T, error) {
	var zero T
	instance, err := n.resolve(buildkey.Of[T](name))
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, &ResolutionError{
			Type:  reflect.TypeOf((*T)(nil)).Elem(),
			Name:  name,
			Cause: fmt.Errorf("resolved %T", instance),
		}
	}
	return typed, nil
}

// BuildUp runs the build chain for key over existing, an instance built
// elsewhere or nil. Registered policies for key apply as usual.
func (n *Nasc) BuildUp(key buildkey.Key, existing any) (any, error) {
	instance, err := n.build(key, existing)
	if err != nil {
		return nil, &ResolutionError{Type: key.Type(), Name: key.Name(), Cause: err}
	}
	return instance, nil
}

// AutoWire injects dependencies into the tagged fields of an existing
// struct pointer.
//
// Supported tag options:
//   - `inject:""` - basic injection (fails if not resolvable)
//   - `inject:"optional"` - optional (left unset if not resolvable)
//   - `inject:"name=foo"` - uses named binding
//   - `inject:"lookup=foo"` - uses a locator value
//
// Example:
//
//	type Service struct {
//	    Logger   Logger   `inject:""`
//	    Cache    Cache    `inject:"optional"`
//	    FileLog  Logger   `inject:"name=file"`
//	}
//
//	service := &Service{}
//	container.AutoWire(service)
func (n *Nasc) AutoWire(instance any) error {
	if instance == nil {
		return fmt.Errorf("cannot auto-wire nil instance")
	}
	t := reflect.TypeOf(instance)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("AutoWire requires a pointer to struct, got %T", instance)
	}
	_, err := n.BuildUp(buildkey.New(t, ""), instance)
	return err
}

// TearDown runs the teardown pass of the build chain over instance,
// notifying it through OnTearingDown when it implements BuilderAware.
func (n *Nasc) TearDown(instance any) error {
	_, err := n.context().TearDown(instance)
	return err
}

// Dispose releases every instance owned by the container (singletons and
// registered instances) in reverse creation order. The container stays
// usable; singletons are created again on their next resolution.
func (n *Nasc) Dispose() error {
	var err error
	for _, p := range n.providers.list() {
		if disposable, ok := p.(DisposableProvider); ok {
			err = multierr.Append(err, disposable.Dispose(n))
		}
	}
	err = multierr.Append(err, n.lifetime.Dispose())
	n.logger.Debug("container disposed", zap.Error(err))
	return err
}

func (n *Nasc) resolve(key buildkey.Key) (any, error) {
	instance, err := n.build(key, nil)
	if err != nil {
		n.logger.Debug("resolution failed", zap.Stringer("key", key), zap.Error(err))
		return nil, &ResolutionError{Type: key.Type(), Name: key.Name(), Cause: err}
	}
	return instance, nil
}

func (n *Nasc) build(key buildkey.Key, existing any) (any, error) {
	if n.active != nil {
		return n.active.BuildUp(key, existing)
	}
	return n.context().BuildUp(key, existing)
}
