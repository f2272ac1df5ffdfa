package strategy

import (
	"errors"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/lifetime"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

// SingletonPolicy marks a key as singleton.
type SingletonPolicy interface {
	IsSingleton() bool
}

// Singleton is the stock SingletonPolicy.
type Singleton bool

// IsSingleton reports whether instances are cached per key.
func (s Singleton) IsSingleton() bool {
	return bool(s)
}

// ContainerSingleton is a SingletonPolicy that caches in a fixed lifetime
// container instead of the one of the build context, so builds running in
// a scope still share the instance.
type ContainerSingleton struct {
	Lifetime *lifetime.Container
}

// IsSingleton returns true.
func (ContainerSingleton) IsSingleton() bool {
	return true
}

// SingletonStrategy caches one instance per key in the lifetime container.
// A cached instance is returned without running the rest of the chain, so
// repeat builds are never re-injected or re-notified.
type SingletonStrategy struct {
	builder.Base
}

// NewSingletonStrategy creates a SingletonStrategy.
func NewSingletonStrategy() *SingletonStrategy {
	return &SingletonStrategy{}
}

// BuildUp returns the cached instance for key, or builds, registers and
// returns a new one. Check and registration are atomic per key.
func (s *SingletonStrategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	lifetimePolicy, ok := policy.Get[SingletonPolicy](ctx.Policies, key)
	if !ok || !lifetimePolicy.IsSingleton() {
		return next(key, existing)
	}
	owner := ctx.Lifetime
	if pinned, ok := lifetimePolicy.(ContainerSingleton); ok && pinned.Lifetime != nil {
		owner = pinned.Lifetime
	}
	instance, created, err := owner.GetOrCreateAs(ctx.Holder(), key, func() (any, error) {
		return next(key, existing)
	})
	if errors.Is(err, lifetime.ErrWaitCycle) {
		path := ctx.Path()
		if len(path) == 0 || path[len(path)-1] != key {
			path = append(path, key)
		}
		return nil, &builder.CyclicDependencyError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	ctx.SetCachedIn(owner)
	if created {
		ctx.Locator.Add(key, instance)
		ctx.Log().Debug("singleton registered", zap.Stringer("key", key))
	} else {
		ctx.Log().Debug("singleton reused", zap.Stringer("key", key))
	}
	return instance, nil
}
