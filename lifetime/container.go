// Package lifetime tracks instances owned by the builder so they can be
// reused per key and released together.
package lifetime

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
)

// Disposable represents an instance that requires cleanup.
// Instances implementing this interface (or io.Closer) have their cleanup
// method called when the owning container is disposed.
//
// Example:
//
//	type DatabaseConnection struct {}
//	func (d *DatabaseConnection) Dispose() error {
//	    return d.connection.Close()
//	}
type Disposable interface {
	Dispose() error
}

// cell holds one keyed instance. Its mutex serializes the first creation so
// concurrent callers never observe "absent" together.
type cell struct {
	mu     sync.Mutex
	value  any
	set    bool
	holder atomic.Pointer[Holder]
}

// Holder identifies one build operation while it creates or waits for
// keyed instances. Builds that share no Holder can still wait on each other
// through the cells they hold; GetOrCreateAs uses the holders to turn such
// a wait cycle into an ErrWaitCycle instead of a deadlock.
type Holder struct {
	waiting atomic.Pointer[cell]
}

// NewHolder creates a Holder for one build operation.
func NewHolder() *Holder {
	return &Holder{}
}

// waitsOn reports whether blocking h on entry closes a wait cycle: the
// holder of entry is h itself, or is waiting for a cell whose holder leads
// back to h.
func (h *Holder) waitsOn(entry *cell) bool {
	seen := map[*Holder]bool{}
	for entry != nil {
		owner := entry.holder.Load()
		if owner == nil {
			return false
		}
		if owner == h {
			return true
		}
		if seen[owner] {
			return false
		}
		seen[owner] = true
		entry = owner.waiting.Load()
	}
	return false
}

// ErrWaitCycle is returned by GetOrCreateAs when creating the key would wait
// for a build that is itself waiting for the caller.
var ErrWaitCycle = errors.New("keyed creation waits on itself")

// Container owns instances, optionally indexed by key.
type Container struct {
	mu    sync.Mutex
	order []any
	keyed *xsync.MapOf[any, *cell]
}

// New creates an empty Container.
func New() *Container {
	return &Container{
		keyed: xsync.NewMapOf[any, *cell](),
	}
}

// Add takes ownership of instance without indexing it by key.
// Adding an instance that is already owned is a no-op.
func (c *Container) Add(instance any) {
	if instance == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(instance)
}

// AddKeyed takes ownership of instance and indexes it under key, replacing
// the previous keyed instance (which stays owned until removed or disposed).
func (c *Container) AddKeyed(key, instance any) {
	if instance == nil {
		return
	}
	entry, _ := c.keyed.LoadOrCompute(key, func() *cell { return &cell{} })
	entry.mu.Lock()
	entry.value, entry.set = instance, true
	entry.mu.Unlock()
	c.Add(instance)
}

// Get returns the instance indexed under key.
// If the instance is being created concurrently, Get waits for it.
func (c *Container) Get(key any) (any, bool) {
	entry, ok := c.keyed.Load(key)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.value, entry.set
}

// GetOrCreate returns the instance indexed under key, or calls create and
// indexes its result. The check and the registration are atomic per key:
// create runs at most once at a time for a key and a successful result is
// never replaced by a concurrent caller. Errors are not cached.
// The boolean reports whether create was called and its result registered.
//
// When the key is dropped while create runs (the container is disposed or
// the key removed), the result is returned to the caller but neither
// indexed nor owned.
func (c *Container) GetOrCreate(key any, create func() (any, error)) (any, bool, error) {
	return c.GetOrCreateAs(nil, key, create)
}

// GetOrCreateAs is GetOrCreate on behalf of holder. A holder about to block
// on a key held by a build that already waits for it, directly or through
// other builds, gets ErrWaitCycle instead. A nil holder never checks.
func (c *Container) GetOrCreateAs(holder *Holder, key any, create func() (any, error)) (any, bool, error) {
	return c.getOrCreate(holder, key, true, create)
}

// Memoize returns the value indexed under key, or calls create and indexes
// its result without taking ownership of it. Memoized values are dropped
// with the key index on Dispose but never released.
func (c *Container) Memoize(key any, create func() (any, error)) (any, error) {
	value, _, err := c.getOrCreate(nil, key, false, create)
	return value, err
}

func (c *Container) getOrCreate(holder *Holder, key any, own bool, create func() (any, error)) (any, bool, error) {
	entry, _ := c.keyed.LoadOrCompute(key, func() *cell { return &cell{} })
	if err := c.lock(holder, entry); err != nil {
		return nil, false, err
	}
	defer func() {
		if holder != nil {
			entry.holder.Store(nil)
		}
		entry.mu.Unlock()
	}()
	if entry.set {
		return entry.value, false, nil
	}
	instance, err := create()
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.keyed.Load(key); !ok || current != entry {
		return instance, false, nil
	}
	entry.value, entry.set = instance, true
	if own && instance != nil {
		c.appendLocked(instance)
	}
	return instance, true, nil
}

// lock acquires entry for holder, checking for a wait cycle before it
// blocks on a cell held by another build.
func (c *Container) lock(holder *Holder, entry *cell) error {
	if holder == nil {
		entry.mu.Lock()
		return nil
	}
	if !entry.mu.TryLock() {
		holder.waiting.Store(entry)
		if holder.waitsOn(entry) {
			holder.waiting.Store(nil)
			return ErrWaitCycle
		}
		entry.mu.Lock()
		holder.waiting.Store(nil)
	}
	entry.holder.Store(holder)
	return nil
}

// Contains reports whether instance is owned by the container.
func (c *Container) Contains(instance any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(instance) >= 0
}

// Remove releases ownership of instance without disposing it, and drops
// every key index pointing at it.
func (c *Container) Remove(instance any) bool {
	c.mu.Lock()
	i := c.indexLocked(instance)
	if i >= 0 {
		c.order = append(c.order[:i], c.order[i+1:]...)
	}
	c.mu.Unlock()

	c.keyed.Range(func(key any, entry *cell) bool {
		entry.mu.Lock()
		if entry.set && same(entry.value, instance) {
			c.keyed.Delete(key)
		}
		entry.mu.Unlock()
		return true
	})
	return i >= 0
}

// RemoveKey drops the key index and releases ownership of its instance.
func (c *Container) RemoveKey(key any) (any, bool) {
	entry, ok := c.keyed.LoadAndDelete(key)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	value, set := entry.value, entry.set
	entry.mu.Unlock()
	if !set {
		return nil, false
	}
	c.mu.Lock()
	if i := c.indexLocked(value); i >= 0 {
		c.order = append(c.order[:i], c.order[i+1:]...)
	}
	c.mu.Unlock()
	return value, true
}

// Count returns the number of owned instances.
func (c *Container) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Dispose releases every owned instance in reverse insertion order.
// A failing instance does not stop the others; all failures are returned
// together. The container is empty and reusable afterwards.
func (c *Container) Dispose() error {
	c.mu.Lock()
	owned := c.order
	c.order = nil
	c.keyed.Clear()
	c.mu.Unlock()

	var err error
	for i := len(owned) - 1; i >= 0; i-- {
		err = multierr.Append(err, release(owned[i]))
	}
	return err
}

func (c *Container) appendLocked(instance any) {
	if c.indexLocked(instance) >= 0 {
		return
	}
	c.order = append(c.order, instance)
}

func (c *Container) indexLocked(instance any) int {
	for i, owned := range c.order {
		if same(owned, instance) {
			return i
		}
	}
	return -1
}

func release(instance any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disposal panic for %T: %v", instance, r)
		}
	}()
	switch actual := instance.(type) {
	case Disposable:
		if err := actual.Dispose(); err != nil {
			return fmt.Errorf("disposal error for %T: %w", instance, err)
		}
	case io.Closer:
		if err := actual.Close(); err != nil {
			return fmt.Errorf("disposal error for %T: %w", instance, err)
		}
	}
	return nil
}

// same compares instances by identity without panicking on
// non-comparable dynamic types.
func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Ptr, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return false
}
