// Package policy provides thread-safe storage and retrieval of build policies.
//
// A policy is a configuration object consulted by one strategy. Policies are
// stored per kind (the reflect.Type of the policy interface) and per build
// key, with one optional default per kind used when no keyed entry exists.
package policy

import (
	"errors"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
)

var (
	// ErrNilKind is returned when a nil policy kind is provided.
	ErrNilKind = errors.New("policy: nil kind provided")
	// ErrNilPolicy is returned when a nil policy is provided.
	ErrNilPolicy = errors.New("policy: nil policy provided")
)

type entryKey struct {
	kind reflect.Type
	key  buildkey.Key
}

// List maps (kind, build key) pairs to policies with a default per kind.
// A List is usually shared by many build operations and populated
// progressively, so every method is goroutine-safe.
type List struct {
	entries  *xsync.MapOf[entryKey, any]
	defaults *xsync.MapOf[reflect.Type, any]
}

// New creates an empty policy List.
func New() *List {
	return &List{
		entries:  xsync.NewMapOf[entryKey, any](),
		defaults: xsync.NewMapOf[reflect.Type, any](),
	}
}

// Get returns the policy registered for the exact key, or the default policy
// of the kind when there is none. The boolean is false when neither exists.
func (l *List) Get(kind reflect.Type, key buildkey.Key) (any, bool) {
	if kind == nil {
		return nil, false
	}
	if p, ok := l.entries.Load(entryKey{kind: kind, key: key}); ok {
		return p, true
	}
	return l.defaults.Load(kind)
}

// GetNoDefault returns the policy registered for the exact key only.
func (l *List) GetNoDefault(kind reflect.Type, key buildkey.Key) (any, bool) {
	if kind == nil {
		return nil, false
	}
	return l.entries.Load(entryKey{kind: kind, key: key})
}

// Set stores p for the exact (kind, key) pair, replacing any previous entry.
func (l *List) Set(kind reflect.Type, key buildkey.Key, p any) error {
	if kind == nil {
		return ErrNilKind
	}
	if p == nil {
		return ErrNilPolicy
	}
	l.entries.Store(entryKey{kind: kind, key: key}, p)
	return nil
}

// Clear removes the entry for the exact (kind, key) pair.
// The default policy of the kind is left untouched.
func (l *List) Clear(kind reflect.Type, key buildkey.Key) {
	l.entries.Delete(entryKey{kind: kind, key: key})
}

// SetDefault stores p as the fallback policy of kind.
func (l *List) SetDefault(kind reflect.Type, p any) error {
	if kind == nil {
		return ErrNilKind
	}
	if p == nil {
		return ErrNilPolicy
	}
	l.defaults.Store(kind, p)
	return nil
}

// ClearDefault removes the fallback policy of kind.
// Keyed entries of the kind are left untouched.
func (l *List) ClearDefault(kind reflect.Type) {
	l.defaults.Delete(kind)
}

// ClearAll removes every keyed entry and every default.
func (l *List) ClearAll() {
	l.entries.Clear()
	l.defaults.Clear()
}

// Count returns the number of keyed entries. Defaults are not counted.
func (l *List) Count() int {
	return l.entries.Size()
}

// KindOf returns the policy kind designated by the type parameter.
func KindOf[P any]() reflect.Type {
	return reflect.TypeOf((*P)(nil)).Elem()
}

// Get is the typed form of List.Get. It reports false when the stored
// policy does not satisfy P.
func Get[P any](l *List, key buildkey.Key) (P, bool) {
	var zero P
	p, ok := l.Get(KindOf[P](), key)
	if !ok {
		return zero, false
	}
	typed, ok := p.(P)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set is the typed form of List.Set.
func Set[P any](l *List, key buildkey.Key, p P) error {
	return l.Set(KindOf[P](), key, any(p))
}

// Clear is the typed form of List.Clear.
func Clear[P any](l *List, key buildkey.Key) {
	l.Clear(KindOf[P](), key)
}

// SetDefault is the typed form of List.SetDefault.
func SetDefault[P any](l *List, p P) error {
	return l.SetDefault(KindOf[P](), any(p))
}

// ClearDefault is the typed form of List.ClearDefault.
func ClearDefault[P any](l *List) {
	l.ClearDefault(KindOf[P]())
}
