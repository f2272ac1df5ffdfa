// Package buildkey defines the identity value used to request objects from
// the builder: a type plus an optional name.
package buildkey

import (
	"fmt"
	"path"
	"reflect"
	"strings"
)

// Key identifies one constructible thing. Two keys are equal when both the
// type and the name match, so Key is safe to use as a map key.
// An empty name designates the default instance of the type.
type Key struct {
	typ  reflect.Type
	name string
}

// New creates a key for t and name.
func New(t reflect.Type, name string) Key {
	return Key{typ: t, name: name}
}

// Of creates a key for the type parameter. An optional name may be given.
//
// Example:
//
//	key := buildkey.Of[Logger]("file")
func Of[T any](name ...string) Key {
	k := Key{typ: reflect.TypeOf((*T)(nil)).Elem()}
	if len(name) > 0 {
		k.name = name[0]
	}
	return k
}

// FromToken creates a key from a type token.
// A nil pointer to an interface, like (*Logger)(nil), designates the
// interface type. Any other value designates its own dynamic type, so
// &ConsoleLogger{} and (*ConsoleLogger)(nil) both designate *ConsoleLogger.
func FromToken(token any, name string) (Key, error) {
	if token == nil {
		return Key{}, fmt.Errorf("type token cannot be nil")
	}
	return New(TypeOfToken(token), name), nil
}

// TypeOfToken returns the type designated by a type token.
func TypeOfToken(token any) reflect.Type {
	t := reflect.TypeOf(token)
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem()
	}
	return t
}

// Type returns the requested type.
func (k Key) Type() reflect.Type {
	return k.typ
}

// Name returns the requested name, empty for the default instance.
func (k Key) Name() string {
	return k.name
}

// IsZero reports whether the key carries no type.
func (k Key) IsZero() bool {
	return k.typ == nil
}

// WithType returns a copy of k with the type replaced.
func (k Key) WithType(t reflect.Type) Key {
	return Key{typ: t, name: k.name}
}

// WithName returns a copy of k with the name replaced.
func (k Key) WithName(name string) Key {
	return Key{typ: k.typ, name: name}
}

// String renders the key as "pkg.Type" or "pkg.Type#name".
func (k Key) String() string {
	s := typeName(k.typ)
	if k.name == "" {
		return s
	}
	return s + "#" + k.name
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	prefix := ""
	for t.Kind() == reflect.Ptr {
		prefix += "*"
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return prefix + t.String()
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if p := t.PkgPath(); p != "" {
		name = path.Base(p) + "." + name
	}
	return prefix + name
}
