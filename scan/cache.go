package scan

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/parameter"
	"github.com/toutaio/toutago-nasc-builder/strategy"
)

// typeInfo is the scan result for one struct type.
type typeInfo struct {
	properties strategy.Properties
	err        error
}

// Cache caches scan results per type so each struct is analysed once.
type Cache struct {
	types *xsync.MapOf[reflect.Type, *typeInfo]
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{types: xsync.NewMapOf[reflect.Type, *typeInfo]()}
}

// Properties returns the injectable fields of t, or of the struct t points
// to. Types that are not structs have none. Invalid tags are reported as
// an InvalidAttributeError, and cached like any other result.
func (c *Cache) Properties(t reflect.Type) (strategy.Properties, error) {
	if t == nil {
		return nil, nil
	}
	info, _ := c.types.LoadOrCompute(t, func() *typeInfo {
		properties, err := scanType(t)
		return &typeInfo{properties: properties, err: err}
	})
	return info.properties, info.err
}

// Len returns the number of cached types.
func (c *Cache) Len() int {
	return c.types.Size()
}

// Clear drops every cached result.
func (c *Cache) Clear() {
	c.types.Clear()
}

func scanType(t reflect.Type) (strategy.Properties, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil
	}

	var properties strategy.Properties
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, ok := field.Tag.Lookup(TagName)
		if !ok {
			continue
		}
		opts, err := parseTag(tag)
		if err != nil {
			return nil, &builder.InvalidAttributeError{Type: t, Member: field.Name, Reason: err.Error()}
		}
		if opts.skip {
			continue
		}
		properties = append(properties, strategy.Property{
			Name:  field.Name,
			Value: opts.param(parameter.Create(field.Type, opts.name)),
		})
	}
	return properties, nil
}
