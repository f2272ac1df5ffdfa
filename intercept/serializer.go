package intercept

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeySeparator separates the segments of a serialized cache key.
const KeySeparator = "::"

// KeySerializer turns a method call into a cache key. Equal calls must
// produce equal keys across runs.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// ValueSerializer is the default KeySerializer. Pointers are followed,
// maps are written in key order, struct fields by name, and context
// arguments are left out. A pointer, map or slice met again while it is
// still being written is written as <cycle>.
type ValueSerializer struct{}

// SerializeKey joins the method and its serialized arguments.
func (ValueSerializer) SerializeKey(method string, args ...any) string {
	var b strings.Builder
	b.WriteString(method)
	for _, arg := range args {
		if _, ok := arg.(context.Context); ok {
			continue
		}
		b.WriteString(KeySeparator)
		writeValue(&b, reflect.ValueOf(arg), visiting{})
	}
	return b.String()
}

// reference identifies a pointer, map or slice being written.
type reference struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// visiting holds the references on the path from the argument root to the
// value being written.
type visiting map[reference]bool

// enter marks v as being written. It returns false when v is already on
// the path.
func (seen visiting) enter(v reflect.Value) (reference, bool) {
	ref := reference{typ: v.Type(), ptr: v.Pointer()}
	if v.Kind() == reflect.Slice {
		ref.len = v.Len()
	}
	if seen[ref] {
		return ref, false
	}
	seen[ref] = true
	return ref, true
}

func writeValue(b *strings.Builder, v reflect.Value, seen visiting) {
	if !v.IsValid() {
		b.WriteString("nil")
		return
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		writeValue(b, v.Elem(), seen)
	case reflect.Ptr:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		ref, ok := seen.enter(v)
		if !ok {
			b.WriteString("<cycle>")
			return
		}
		defer delete(seen, ref)
		writeValue(b, v.Elem(), seen)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				b.WriteString("[]nil")
				return
			}
			ref, ok := seen.enter(v)
			if !ok {
				b.WriteString("<cycle>")
				return
			}
			defer delete(seen, ref)
		}
		fmt.Fprintf(b, "[%d]{", v.Len())
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, v.Index(i), seen)
		}
		b.WriteByte('}')
	case reflect.Map:
		if v.IsNil() {
			b.WriteString("map:nil")
			return
		}
		ref, ok := seen.enter(v)
		if !ok {
			b.WriteString("<cycle>")
			return
		}
		defer delete(seen, ref)
		entries := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			var entry strings.Builder
			writeValue(&entry, iter.Key(), seen)
			entry.WriteByte('=')
			writeValue(&entry, iter.Value(), seen)
			entries = append(entries, entry.String())
		}
		sort.Strings(entries)
		fmt.Fprintf(b, "map[%d]{%s}", len(entries), strings.Join(entries, ","))
	case reflect.Struct:
		t := v.Type()
		b.WriteString(t.String())
		b.WriteByte('{')
		first := true
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(t.Field(i).Name)
			b.WriteByte(':')
			writeValue(b, v.Field(i), seen)
		}
		b.WriteByte('}')
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		fmt.Fprintf(b, "%s:%#x", v.Kind(), v.Pointer())
	default:
		fmt.Fprintf(b, "%v", v)
	}
}
