package scan

import (
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/policy"
	"github.com/toutaio/toutago-nasc-builder/strategy"
)

// Strategy populates the property policy of a key from the `inject` tags
// of its type the first time the key is built. Keys with an explicit
// property policy are left alone.
type Strategy struct {
	builder.Base
	cache *Cache
}

// NewStrategy creates a Strategy backed by cache, or by a new cache when
// cache is nil.
func NewStrategy(cache *Cache) *Strategy {
	if cache == nil {
		cache = NewCache()
	}
	return &Strategy{cache: cache}
}

// Cache returns the reflection cache.
func (s *Strategy) Cache() *Cache {
	return s.cache
}

// BuildUp scans the key type and registers its properties when needed.
func (s *Strategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	count, err := Populate(ctx.Policies, s.cache, key)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		ctx.Log().Debug("inject tags scanned", zap.Stringer("key", key), zap.Int("properties", count))
	}
	return next(key, existing)
}

// Populate registers the scanned properties of key in policies unless key
// already has a property policy of its own. It returns the number of
// properties registered.
func Populate(policies *policy.List, cache *Cache, key buildkey.Key) (int, error) {
	if _, ok := policies.GetNoDefault(policy.KindOf[strategy.PropertyPolicy](), key); ok {
		return 0, nil
	}
	properties, err := cache.Properties(key.Type())
	if err != nil || len(properties) == 0 {
		return 0, err
	}
	if err := policy.Set[strategy.PropertyPolicy](policies, key, properties); err != nil {
		return 0, err
	}
	return len(properties), nil
}
