// Package strategy provides the construction strategies of the default
// build chain together with the policies that configure them.
package strategy

import (
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

// TypeMappingPolicy remaps a requested key to the key actually built.
type TypeMappingPolicy interface {
	Map(key buildkey.Key) buildkey.Key
}

// TypeMapping maps every key it is registered for to Target.
type TypeMapping struct {
	Target buildkey.Key
}

// Map returns the target key.
func (m TypeMapping) Map(buildkey.Key) buildkey.Key {
	return m.Target
}

// NewTypeMapping creates a mapping to target.
func NewTypeMapping(target buildkey.Key) TypeMapping {
	return TypeMapping{Target: target}
}

// TypeMappingStrategy replaces the key with the one named by its
// TypeMappingPolicy, after checking that the new type satisfies the
// originally requested type.
type TypeMappingStrategy struct {
	builder.Base
}

// NewTypeMappingStrategy creates a TypeMappingStrategy.
func NewTypeMappingStrategy() *TypeMappingStrategy {
	return &TypeMappingStrategy{}
}

// BuildUp applies the mapping policy of key, if any.
func (s *TypeMappingStrategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	mapping, ok := policy.Get[TypeMappingPolicy](ctx.Policies, key)
	if !ok {
		return next(key, existing)
	}
	mapped := mapping.Map(key)
	requested := ctx.OriginalKey().Type()
	if requested == nil {
		requested = key.Type()
	}
	if mapped.Type() == nil || !mapped.Type().AssignableTo(requested) {
		return nil, &builder.IncompatibleTypesError{
			Requested: requested,
			Actual:    mapped.Type(),
			Context:   "type mapping for " + key.String(),
		}
	}
	ctx.Log().Debug("type mapped", zap.Stringer("from", key), zap.Stringer("to", mapped))
	return next(mapped, existing)
}
