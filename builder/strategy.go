package builder

import (
	"github.com/toutaio/toutago-nasc-builder/buildkey"
)

// NextFunc continues the forward pass with the remaining strategies.
// The key may differ from the one the calling strategy received; the rest
// of the pass then builds the rewritten key.
type NextFunc func(key buildkey.Key, existing any) (any, error)

// Strategy is one pluggable stage of the build and teardown pipeline.
type Strategy interface {
	// BuildUp is called on the forward pass. It returns the instance that
	// becomes the result of the chain, usually the result of next.
	// Returning without calling next skips the remaining strategies.
	BuildUp(ctx *Context, key buildkey.Key, existing any, next NextFunc) (any, error)

	// TearDown is called on the reverse pass and returns the instance
	// handed to the previous strategy.
	TearDown(ctx *Context, instance any) (any, error)
}

// Base is a pass-through Strategy meant to be embedded.
type Base struct{}

// BuildUp delegates to next unchanged.
func (Base) BuildUp(_ *Context, key buildkey.Key, existing any, next NextFunc) (any, error) {
	return next(key, existing)
}

// TearDown returns instance unchanged.
func (Base) TearDown(_ *Context, instance any) (any, error) {
	return instance, nil
}
