// Package locator provides the object locator used by parameter resolution
// and singleton registration to store and retrieve values outside the
// strategy chain.
package locator

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Locator is a goroutine-safe store of values keyed by any comparable key,
// typically a string name or a buildkey.Key. Lookups fall back to the
// parent locator when the key is not found locally.
type Locator struct {
	parent *Locator
	items  *xsync.MapOf[any, any]
}

// New creates a Locator. parent may be nil.
func New(parent *Locator) *Locator {
	return &Locator{
		parent: parent,
		items:  xsync.NewMapOf[any, any](),
	}
}

// Parent returns the parent locator, or nil.
func (l *Locator) Parent() *Locator {
	return l.parent
}

// Add stores value under key, replacing any local value.
func (l *Locator) Add(key, value any) {
	l.items.Store(key, value)
}

// Get returns the value stored under key, searching parents when absent.
func (l *Locator) Get(key any) (any, bool) {
	for current := l; current != nil; current = current.parent {
		if v, ok := current.items.Load(key); ok {
			return v, true
		}
	}
	return nil, false
}

// GetLocal returns the value stored under key without consulting parents.
func (l *Locator) GetLocal(key any) (any, bool) {
	return l.items.Load(key)
}

// Contains reports whether key is present here or in a parent.
func (l *Locator) Contains(key any) bool {
	_, ok := l.Get(key)
	return ok
}

// Remove deletes the local value under key. Parents are not modified.
func (l *Locator) Remove(key any) bool {
	_, ok := l.items.LoadAndDelete(key)
	return ok
}

// Count returns the number of local entries.
func (l *Locator) Count() int {
	return l.items.Size()
}

// Range calls fn for every local entry until fn returns false.
func (l *Locator) Range(fn func(key, value any) bool) {
	l.items.Range(fn)
}
