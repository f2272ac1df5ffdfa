package builder

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
)

// Chain is an ordered, mutable sequence of strategies.
// Traversals run over a snapshot taken when they start, so the chain may be
// modified while builds are in flight.
type Chain struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewChain creates a Chain running strategies in the given order.
// Nil strategies are ignored.
func NewChain(strategies ...Strategy) *Chain {
	c := &Chain{}
	c.Add(strategies...)
	return c
}

// Add appends strategies to the end of the chain.
func (c *Chain) Add(strategies ...Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
}

// Insert places s at index, shifting later strategies back.
func (c *Chain) Insert(index int, s Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index > len(c.strategies) {
		return fmt.Errorf("index %d out of range [0,%d]", index, len(c.strategies))
	}
	c.strategies = append(c.strategies, nil)
	copy(c.strategies[index+1:], c.strategies[index:])
	c.strategies[index] = s
	return nil
}

// Remove deletes the first occurrence of s.
func (c *Chain) Remove(s Strategy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, candidate := range c.strategies {
		if candidate == s {
			c.strategies = append(c.strategies[:i], c.strategies[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of strategies.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.strategies)
}

// Strategies returns a snapshot of the strategies in order.
func (c *Chain) Strategies() []Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Strategy, len(c.strategies))
	copy(out, c.strategies)
	return out
}

// BuildUp runs the forward pass for key starting at position 0.
// When a strategy hands a different key to next, that key joins the active
// build stack for the rest of the pass.
func (c *Chain) BuildUp(ctx *Context, key buildkey.Key, existing any) (any, error) {
	strategies := c.Strategies()
	ctx.ensureStack()

	var step func(i int, current buildkey.Key, existing any) (any, error)
	step = func(i int, current buildkey.Key, existing any) (any, error) {
		if i == len(strategies) {
			return existing, nil
		}
		return strategies[i].BuildUp(ctx, current, existing, func(next buildkey.Key, instance any) (any, error) {
			if next != current {
				ctx.Log().Debug("build key rewritten",
					zap.Stringer("from", current), zap.Stringer("to", next))
				if err := ctx.stack.push(next); err != nil {
					return nil, err
				}
				defer ctx.stack.pop()
			}
			return step(i+1, next, instance)
		})
	}
	return step(0, key, existing)
}

// TearDown runs the reverse pass starting at the last strategy. A failing
// strategy does not stop the traversal; its instance is passed on unchanged
// and all failures are returned once every strategy has run.
func (c *Chain) TearDown(ctx *Context, instance any) (any, error) {
	strategies := c.Strategies()
	var errs error
	for i := len(strategies) - 1; i >= 0; i-- {
		result, err := strategies[i].TearDown(ctx, instance)
		if err != nil {
			ctx.Log().Warn("teardown strategy failed",
				zap.String("strategy", fmt.Sprintf("%T", strategies[i])), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		instance = result
	}
	return instance, errs
}
