package nasc

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/lifetime"
	"github.com/toutaio/toutago-nasc-builder/locator"
)

// ErrScopeDisposed is returned when resolving from a disposed scope.
var ErrScopeDisposed = errors.New("scope disposed")

// Disposable represents a service that requires cleanup.
// Scoped and singleton instances implementing this interface (or
// io.Closer) are disposed with their scope or container.
type Disposable = lifetime.Disposable

// Scope represents an isolated dependency resolution context.
// Scoped bindings create one instance per scope, allowing for request-scoped
// or transaction-scoped dependencies. Singletons still come from the
// container, and locator values set on the container stay visible.
//
// Example:
//
//	scope := container.CreateScope()
//	defer scope.Dispose()
//
//	// Scoped instances are unique to this scope
//	uow := scope.Make((*UnitOfWork)(nil)).(UnitOfWork)
type Scope struct {
	view     *Nasc
	lifetime *lifetime.Container

	mu       sync.RWMutex
	children []*Scope
	disposed bool
}

// CreateScope creates a new dependency resolution scope.
//
// Example:
//
//	scope := container.CreateScope()
//	defer scope.Dispose()
//	uow := scope.Make((*UnitOfWork)(nil)).(UnitOfWork)
func (n *Nasc) CreateScope() *Scope {
	return newScope(n, n.locator)
}

func newScope(n *Nasc, parentLocator *locator.Locator) *Scope {
	lt := lifetime.New()
	view := *n
	view.lifetime = lt
	view.locator = locator.New(parentLocator)
	view.active = nil
	return &Scope{view: &view, lifetime: lt}
}

// Make resolves an instance within this scope, panicking on failure.
//
// Example:
//
//	service := scope.Make((*Service)(nil)).(Service)
func (s *Scope) Make(abstractType any) any {
	instance, err := s.MakeSafe(abstractType)
	if err != nil {
		panic(err)
	}
	return instance
}

// MakeSafe resolves an instance within this scope.
func (s *Scope) MakeSafe(abstractType any) (any, error) {
	return s.MakeNamedSafe(abstractType, "")
}

// MakeNamed resolves a named instance within this scope, panicking on failure.
func (s *Scope) MakeNamed(abstractType any, name string) any {
	instance, err := s.MakeNamedSafe(abstractType, name)
	if err != nil {
		panic(err)
	}
	return instance
}

// MakeNamedSafe resolves a named instance within this scope.
func (s *Scope) MakeNamedSafe(abstractType any, name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return nil, ErrScopeDisposed
	}
	return s.view.MakeNamedSafe(abstractType, name)
}

// Container returns a view of the container resolving within this scope.
// It is meant for Resolve and ResolveNamed; registrations must go through
// the container itself.
func (s *Scope) Container() *Nasc {
	return s.view
}

// Value stores a locator value visible to this scope and its children only.
func (s *Scope) Value(key, value any) error {
	return s.view.Value(key, value)
}

// CreateChildScope creates a child scope that inherits parent registrations
// and locator values. Child scopes are disposed when the parent is disposed.
//
// Example:
//
//	parentScope := container.CreateScope()
//	defer parentScope.Dispose()
//
//	childScope := parentScope.CreateChildScope()
//	// Child will be disposed with parent
func (s *Scope) CreateChildScope() (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrScopeDisposed
	}
	child := newScope(s.view, s.view.locator)
	s.children = append(s.children, child)
	return child, nil
}

// Dispose releases resources held by this scope: child scopes first, then
// the scoped instances in reverse creation order (dependents before their
// dependencies). Disposing twice is a no-op.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}
	s.disposed = true

	var err error
	for _, child := range s.children {
		if childErr := child.Dispose(); childErr != nil {
			err = multierr.Append(err, errors.WithMessage(childErr, "child scope disposal error"))
		}
	}
	s.children = nil
	err = multierr.Append(err, s.lifetime.Dispose())

	s.view.logger.Debug("scope disposed", zap.Error(err))
	return err
}
