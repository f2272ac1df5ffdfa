package intercept

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

// Strategy wraps instances built for a key that carries a *Policy. It runs
// ahead of type mapping and lifetime caching: the rest of the chain builds
// (or reuses) the plain instance, and the proxy is applied on the way back
// for the requested key only. Resolving the concrete type therefore always
// yields the plain instance, whatever was resolved before.
type Strategy struct {
	builder.Base
	factory ProxyFactory
}

// proxyKey indexes the proxy of one cached instance for one intercepted key.
type proxyKey struct {
	key    buildkey.Key
	target any
}

// NewStrategy creates a Strategy that wraps instances with factory.
func NewStrategy(factory ProxyFactory) *Strategy {
	return &Strategy{factory: factory}
}

// BuildUp builds the instance through the rest of the chain and returns its
// proxy when interception is configured for key. When a pointer instance
// is cached by a lifetime container, its proxy is memoized in the same
// container so repeated resolutions return the same proxy.
func (s *Strategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	p, ok := policy.Get[*Policy](ctx.Policies, key)
	if !ok || p == nil {
		return next(key, existing)
	}
	instance, err := next(key, existing)
	if err != nil {
		return nil, err
	}

	fail := func(reason string) error {
		return &builder.InterceptionConfigurationError{Key: key, Interface: p.Interface(), Reason: reason}
	}
	if instance == nil {
		return nil, fail("no instance to wrap")
	}
	if s.factory == nil {
		return nil, fail("no proxy factory configured")
	}
	wrap := func() (any, error) {
		pipelines, err := p.Pipelines()
		if err != nil {
			return nil, fail(err.Error())
		}
		proxy, err := s.factory.Wrap(instance, p.Interface(), pipelines)
		if err != nil {
			return nil, fail(err.Error())
		}
		ctx.Log().Debug("instance intercepted", zap.Stringer("key", key), zap.Stringer("interface", p.Interface()))
		return proxy, nil
	}

	owner := ctx.CachedIn()
	if owner == nil || reflect.TypeOf(instance).Kind() != reflect.Ptr {
		return wrap()
	}
	return owner.Memoize(proxyKey{key: key, target: instance}, wrap)
}
