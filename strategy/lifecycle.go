package strategy

import (
	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
)

// BuilderAware is implemented by instances that want to know when they
// have been built and when they are being torn down.
type BuilderAware interface {
	OnBuiltUp(key buildkey.Key)
	OnTearingDown()
}

// Initializable is implemented by instances that need a setup step once
// their members are injected. A failing Initialize fails the build.
type Initializable interface {
	Initialize() error
}

// Wrapper is implemented by proxies. Lifecycle notifications go to the
// wrapped instance.
type Wrapper interface {
	Unwrap() any
}

// LifecycleStrategy notifies BuilderAware instances. It runs last, so the
// notification happens once the instance is fully built.
type LifecycleStrategy struct{}

// NewLifecycleStrategy creates a LifecycleStrategy.
func NewLifecycleStrategy() *LifecycleStrategy {
	return &LifecycleStrategy{}
}

// BuildUp calls Initialize, then OnBuiltUp with the key being built.
func (s *LifecycleStrategy) BuildUp(_ *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	target := unwrap(existing)
	if initializable, ok := target.(Initializable); ok {
		if err := initializable.Initialize(); err != nil {
			return nil, err
		}
	}
	if aware, ok := target.(BuilderAware); ok {
		aware.OnBuiltUp(key)
	}
	return next(key, existing)
}

// TearDown calls OnTearingDown.
func (s *LifecycleStrategy) TearDown(_ *builder.Context, instance any) (any, error) {
	if aware, ok := unwrap(instance).(BuilderAware); ok {
		aware.OnTearingDown()
	}
	return instance, nil
}

func unwrap(instance any) any {
	if w, ok := instance.(Wrapper); ok {
		if inner := w.Unwrap(); inner != nil {
			return inner
		}
	}
	return instance
}
