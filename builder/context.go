// Package builder implements the strategy-chain build and teardown engine.
//
// A build request names a buildkey.Key. A Context is created for it and the
// key flows forward through every strategy of a Chain; each strategy reads
// its policies from the shared policy.List and may rewrite the key,
// short-circuit with a cached instance, or allocate and populate the
// instance before passing it on. Teardown walks the same chain backwards.
package builder

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/lifetime"
	"github.com/toutaio/toutago-nasc-builder/locator"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

// Context is the per-operation state handed to every strategy.
// It references, never copies, the shared chain, policies, locator and
// lifetime container.
type Context struct {
	Chain    *Chain
	Policies *policy.List
	Locator  *locator.Locator
	Lifetime *lifetime.Container
	Logger   *zap.Logger

	originalKey buildkey.Key
	stack       *stack
	cachedIn    *lifetime.Container
}

// NewContext creates a top-level context. Nil collaborators are replaced by
// empty ones so strategies never need nil checks.
func NewContext(chain *Chain, policies *policy.List, loc *locator.Locator, lt *lifetime.Container) *Context {
	if chain == nil {
		chain = NewChain()
	}
	if policies == nil {
		policies = policy.New()
	}
	if loc == nil {
		loc = locator.New(nil)
	}
	if lt == nil {
		lt = lifetime.New()
	}
	return &Context{
		Chain:    chain,
		Policies: policies,
		Locator:  loc,
		Lifetime: lt,
		Logger:   zap.NewNop(),
		stack:    newStack(),
	}
}

// WithLogger sets the logger used by the chain and strategies.
func (c *Context) WithLogger(logger *zap.Logger) *Context {
	if logger != nil {
		c.Logger = logger
	}
	return c
}

// OriginalKey returns the key requested for this build, before any
// strategy rewrote it.
func (c *Context) OriginalKey() buildkey.Key {
	return c.originalKey
}

// Holder identifies this build operation to lifetime containers, so that
// singleton creations waiting on each other across goroutines are reported
// as cycles.
func (c *Context) Holder() *lifetime.Holder {
	c.ensureStack()
	return c.stack.holder
}

// CachedIn returns the lifetime container that cached the instance built
// through this context, or nil when the instance is not cached.
func (c *Context) CachedIn() *lifetime.Container {
	return c.cachedIn
}

// SetCachedIn records the lifetime container that cached the instance
// built through this context.
func (c *Context) SetCachedIn(lt *lifetime.Container) {
	c.cachedIn = lt
}

// Path returns the keys currently being built, outermost first.
func (c *Context) Path() []buildkey.Key {
	c.ensureStack()
	return c.stack.snapshot()
}

// BuildUp builds key through the chain. Strategies and parameter resolvers
// call it for nested builds: the nested build runs inline on a child
// context sharing everything but the original key, and fails with a
// CyclicDependencyError when key is already being built.
func (c *Context) BuildUp(key buildkey.Key, existing any) (any, error) {
	c.ensureStack()
	if err := c.stack.push(key); err != nil {
		return nil, err
	}
	defer c.stack.pop()

	child := c.child(key)
	child.Log().Debug("build up", zap.Stringer("key", key), zap.Int("depth", c.stack.depth()))
	return c.Chain.BuildUp(child, key, existing)
}

// TearDown runs the reverse pass over instance.
func (c *Context) TearDown(instance any) (any, error) {
	c.Log().Debug("tear down", zap.String("type", typeString(instance)))
	return c.Chain.TearDown(c, instance)
}

func (c *Context) child(key buildkey.Key) *Context {
	return &Context{
		Chain:       c.Chain,
		Policies:    c.Policies,
		Locator:     c.Locator,
		Lifetime:    c.Lifetime,
		Logger:      c.Logger,
		originalKey: key,
		stack:       c.stack,
	}
}

func (c *Context) ensureStack() {
	if c.stack == nil {
		c.stack = newStack()
	}
}

// Log returns the context logger, never nil.
func (c *Context) Log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// stack is the active build stack of one top-level operation. Builds are
// synchronous, so one operation only touches its stack from one goroutine.
type stack struct {
	keys   []buildkey.Key
	holder *lifetime.Holder
}

func newStack() *stack {
	return &stack{holder: lifetime.NewHolder()}
}

func (s *stack) push(key buildkey.Key) error {
	for i, active := range s.keys {
		if active == key {
			path := make([]buildkey.Key, 0, len(s.keys)-i+1)
			path = append(path, s.keys[i:]...)
			path = append(path, key)
			return &CyclicDependencyError{Path: path}
		}
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *stack) pop() {
	if len(s.keys) > 0 {
		s.keys = s.keys[:len(s.keys)-1]
	}
}

func (s *stack) depth() int {
	return len(s.keys)
}

func (s *stack) snapshot() []buildkey.Key {
	out := make([]buildkey.Key, len(s.keys))
	copy(out, s.keys)
	return out
}

func typeString(v any) string {
	if v == nil {
		return "<nil>"
	}
	return buildkey.New(reflect.TypeOf(v), "").String()
}
