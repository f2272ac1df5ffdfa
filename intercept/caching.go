package intercept

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/viccon/sturdyc"
)

// CacheConfig configures the Caching handler.
type CacheConfig struct {
	// Capacity is the maximum number of cached returns.
	Capacity int
	// NumShards splits the cache to reduce lock contention.
	NumShards int
	// TTL is how long a cached return stays fresh.
	TTL time.Duration
	// EvictionPercentage is the share of a full shard evicted at once.
	EvictionPercentage int
	// Methods limits caching to these methods. Empty caches every method.
	Methods []string
	// Serializer builds the cache key of a call. Defaults to ValueSerializer.
	Serializer KeySerializer
}

// DefaultCacheConfig returns a config suitable for small services.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:           10000,
		NumShards:          10,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration values.
func (c CacheConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("cache capacity must be positive, got %d", c.Capacity)
	case c.NumShards <= 0:
		return fmt.Errorf("cache shards must be positive, got %d", c.NumShards)
	case c.TTL <= 0:
		return fmt.Errorf("cache ttl must be positive, got %s", c.TTL)
	case c.EvictionPercentage < 0 || c.EvictionPercentage > 100:
		return fmt.Errorf("cache eviction percentage must be within [0,100], got %d", c.EvictionPercentage)
	}
	return nil
}

// failedCall carries a failed Return through the cache without storing it.
type failedCall struct {
	ret *Return
}

func (f *failedCall) Error() string {
	return f.ret.Err.Error()
}

// Caching returns a read-through cache handler. Successful returns are
// cached per interface, target, method and arguments; failures always
// reach the caller and are never cached. Targets held by pointer (or map,
// chan, func, slice) are told apart by address, so two live instances
// sharing the handler never share results; other targets by their value.
// An address reused after its target was collected may see entries left
// by that target until they expire.
func Caching(cfg CacheConfig) (Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	serializer := cfg.Serializer
	if serializer == nil {
		serializer = ValueSerializer{}
	}
	only := make(map[string]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		only[m] = true
	}
	client := sturdyc.New[*Return](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage)

	return HandlerFunc(func(inv *Invocation, next Next) *Return {
		if len(only) > 0 && !only[inv.Method] {
			return next(inv)
		}
		key := cacheKey(inv, serializer)
		ret, err := client.GetOrFetch(inv.Context(), key, func(ctx context.Context) (*Return, error) {
			ret := next(inv)
			if ret.Failed() {
				return nil, &failedCall{ret: ret}
			}
			return ret, nil
		})
		if err != nil {
			var failed *failedCall
			if errors.As(err, &failed) {
				return failed.ret
			}
			return Failure(err)
		}
		return ret
	}), nil
}

func cacheKey(inv *Invocation, serializer KeySerializer) string {
	raw := serializer.SerializeKey(inv.Method, inv.Args...)
	iface := "<nil>"
	if inv.Interface != nil {
		iface = inv.Interface.String()
	}
	return iface + KeySeparator + targetKey(inv.Target) + KeySeparator + inv.Method +
		KeySeparator + strconv.FormatUint(xxhash.Sum64String(raw), 16)
}

func targetKey(target any) string {
	v := reflect.ValueOf(target)
	if !v.IsValid() {
		return "<nil>"
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return v.Type().String() + "@" + strconv.FormatUint(uint64(v.Pointer()), 16)
	}
	var b strings.Builder
	writeValue(&b, v, visiting{})
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}
