package intercept

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/policy"
	"github.com/toutaio/toutago-nasc-builder/strategy"
)

var errDivideByZero = errors.New("divide by zero")

type Calculator interface {
	Add(a, b int) (int, error)
	Divide(a, b int) (int, error)
	Name() string
}

type calculator struct {
	calls int
}

func (c *calculator) Add(a, b int) (int, error) {
	c.calls++
	return a + b, nil
}

func (c *calculator) Divide(a, b int) (int, error) {
	c.calls++
	if b == 0 {
		return 0, errDivideByZero
	}
	return a / b, nil
}

func (c *calculator) Name() string {
	return "calculator"
}

type calculatorProxy struct {
	*Dispatcher
}

func (p calculatorProxy) Add(a, b int) (int, error) {
	return Result[int](p.Call("Add", a, b))
}

func (p calculatorProxy) Divide(a, b int) (int, error) {
	return Result[int](p.Call("Divide", a, b))
}

func (p calculatorProxy) Name() string {
	return MustResult[string](p.Call("Name"))
}

func newProxies(t *testing.T) *Proxies {
	proxies := NewProxies()
	require.NoError(t, RegisterProxy[Calculator](proxies, func(d *Dispatcher) Calculator {
		return calculatorProxy{d}
	}))
	return proxies
}

func tracer(name string, trace *[]string) Handler {
	return HandlerFunc(func(inv *Invocation, next Next) *Return {
		*trace = append(*trace, name+"-before")
		ret := next(inv)
		*trace = append(*trace, name+"-after")
		return ret
	})
}

func TestPipeline_OnionOrdering(t *testing.T) {
	var trace []string
	pipeline := NewPipeline(tracer("A", &trace), nil, tracer("B", &trace))
	assert.Equal(t, 2, pipeline.Count())

	ret := pipeline.Invoke(NewInvocation(nil, nil, "Call"), func(*Invocation) *Return {
		trace = append(trace, "call")
		return NewReturn("done")
	})

	assert.Equal(t, "done", ret.Value)
	assert.Equal(t, []string{"A-before", "B-before", "call", "B-after", "A-after"}, trace)
}

func TestPipeline_EmptyIsPassThrough(t *testing.T) {
	called := false
	var nilPipeline *Pipeline
	for _, p := range []*Pipeline{NewPipeline(), nilPipeline} {
		called = false
		ret := p.Invoke(NewInvocation(nil, nil, "Call"), func(*Invocation) *Return {
			called = true
			return NewReturn(1)
		})
		assert.True(t, called)
		assert.Equal(t, 1, ret.Value)
	}
	assert.Equal(t, 0, nilPipeline.Count())
}

func TestPipeline_HandlerCanShortCircuitAndRewriteArgs(t *testing.T) {
	target := &calculator{}
	inv := NewInvocation(target, nil, "Add", 1, 2)

	rewrite := HandlerFunc(func(inv *Invocation, next Next) *Return {
		inv.Args[1] = 40
		return next(inv)
	})
	ret := NewPipeline(rewrite).Invoke(inv, InvokeTarget)
	require.False(t, ret.Failed())
	assert.Equal(t, 41, ret.Value)

	deny := HandlerFunc(func(*Invocation, Next) *Return {
		return Failure(errors.New("denied"))
	})
	ret = NewPipeline(deny, rewrite).Invoke(NewInvocation(target, nil, "Add", 1, 2), InvokeTarget)
	assert.EqualError(t, ret.Err, "denied")
	assert.Equal(t, 1, target.calls, "the target is not reached")
}

type panicky struct{}

func (panicky) Explode() { panic("kaboom") }

func TestInvokeTarget(t *testing.T) {
	c := &calculator{}

	ret := InvokeTarget(NewInvocation(c, nil, "Divide", 9, 3))
	require.False(t, ret.Failed())
	assert.Equal(t, 3, ret.Value)
	assert.Equal(t, []any{3}, ret.Outputs)

	ret = InvokeTarget(NewInvocation(c, nil, "Divide", 9, 0))
	assert.ErrorIs(t, ret.Err, errDivideByZero)
	assert.Nil(t, ret.Value, "a failed return carries no value")

	ret = InvokeTarget(NewInvocation(panicky{}, nil, "Explode"))
	require.True(t, ret.Failed())
	assert.Contains(t, ret.Err.Error(), "kaboom")

	assert.True(t, InvokeTarget(NewInvocation(c, nil, "Multiply", 1, 2)).Failed())
	assert.True(t, InvokeTarget(NewInvocation(c, nil, "Add", 1)).Failed())
	assert.True(t, InvokeTarget(NewInvocation(c, nil, "Add", "1", 2)).Failed())
	assert.True(t, InvokeTarget(NewInvocation(nil, nil, "Add")).Failed())
}

func TestReturnHelpers(t *testing.T) {
	ret := NewReturn("a", 2)
	assert.Equal(t, 2, ret.Output(1))
	assert.Nil(t, ret.Output(5))

	v, err := Result[string](ret)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	assert.Panics(t, func() { MustResult[string](Failure(errors.New("nope"))) })
}

func TestPolicy_Pipelines(t *testing.T) {
	var trace []string
	p := NewPolicy[Calculator]().
		Add("Add", tracer("add", &trace)).
		AddAll(tracer("all", &trace))

	pipelines, err := p.Pipelines()
	require.NoError(t, err)
	require.Len(t, pipelines, 3)
	assert.Equal(t, 2, pipelines["Add"].Count())
	assert.Equal(t, 1, pipelines["Divide"].Count())

	again, err := p.Pipelines()
	require.NoError(t, err)
	assert.Same(t, pipelines["Add"], again["Add"], "pipelines are built once")

	pipelines["Add"].Invoke(NewInvocation(&calculator{}, nil, "Add", 1, 1), InvokeTarget)
	assert.Equal(t, []string{"all-before", "add-before", "add-after", "all-after"}, trace)

	p.Add("Name", tracer("name", &trace))
	rebuilt, err := p.Pipelines()
	require.NoError(t, err)
	assert.Equal(t, 2, rebuilt["Name"].Count())
}

func TestPolicy_Invalid(t *testing.T) {
	_, err := NewPolicy[Calculator]().Add("Multiply", tracer("x", new([]string))).Pipelines()
	assert.Error(t, err)

	_, err = NewPolicy[*calculator]().Pipelines()
	assert.Error(t, err)
}

func TestProxies_Wrap(t *testing.T) {
	proxies := newProxies(t)
	iface := reflect.TypeOf((*Calculator)(nil)).Elem()
	target := &calculator{}

	assert.True(t, proxies.Has(iface))
	wrapped, err := proxies.Wrap(target, iface, nil)
	require.NoError(t, err)
	calc := wrapped.(Calculator)
	sum, err := calc.Add(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
	assert.Equal(t, "calculator", calc.Name())
	assert.Same(t, target, wrapped.(calculatorProxy).Unwrap())

	_, err = proxies.Wrap("not a calculator", iface, nil)
	assert.Error(t, err)
	_, err = proxies.Wrap(target, reflect.TypeOf(target), nil)
	assert.Error(t, err)
	_, err = NewProxies().Wrap(target, iface, nil)
	assert.Error(t, err)

	assert.Error(t, RegisterProxy[*calculator](proxies, func(d *Dispatcher) *calculator { return nil }))
	assert.Error(t, RegisterProxy[Calculator](proxies, nil))
}

func newContext(proxies ProxyFactory) *builder.Context {
	chain := builder.NewChain(
		NewStrategy(proxies),
		strategy.NewTypeMappingStrategy(),
		strategy.NewSingletonStrategy(),
		strategy.NewCreationStrategy(),
		strategy.NewLifecycleStrategy(),
	)
	ctx := builder.NewContext(chain, nil, nil, nil)
	_ = policy.Set[strategy.TypeMappingPolicy](ctx.Policies, buildkey.Of[Calculator](), strategy.NewTypeMapping(buildkey.Of[*calculator]()))
	return ctx
}

func TestStrategy_WrapsRequestedKey(t *testing.T) {
	var trace []string
	ctx := newContext(newProxies(t))
	require.NoError(t, policy.Set(ctx.Policies, buildkey.Of[Calculator](), NewPolicy[Calculator]().AddAll(tracer("A", &trace), tracer("B", &trace))))

	instance, err := ctx.BuildUp(buildkey.Of[Calculator](), nil)
	require.NoError(t, err)
	calc, ok := instance.(calculatorProxy)
	require.True(t, ok)

	quotient, err := calc.Divide(8, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, quotient)
	assert.Equal(t, []string{"A-before", "B-before", "B-after", "A-after"}, trace)

	_, err = calc.Divide(1, 0)
	assert.ErrorIs(t, err, errDivideByZero)
}

func TestStrategy_ConcreteKeyIsNeverWrapped(t *testing.T) {
	ctx := newContext(newProxies(t))
	require.NoError(t, policy.Set(ctx.Policies, buildkey.Of[Calculator](), NewPolicy[Calculator]()))

	plain, err := ctx.BuildUp(buildkey.Of[*calculator](), nil)
	require.NoError(t, err)
	assert.IsType(t, &calculator{}, plain)

	wrapped, err := ctx.BuildUp(buildkey.Of[Calculator](), nil)
	require.NoError(t, err)
	assert.IsType(t, calculatorProxy{}, wrapped)
}

func TestStrategy_SingletonResolutionOrder(t *testing.T) {
	newSingletonContext := func(t *testing.T) *builder.Context {
		ctx := newContext(newProxies(t))
		require.NoError(t, policy.Set(ctx.Policies, buildkey.Of[Calculator](), NewPolicy[Calculator]()))
		require.NoError(t, policy.Set[strategy.SingletonPolicy](ctx.Policies, buildkey.Of[*calculator](), strategy.Singleton(true)))
		return ctx
	}
	build := func(t *testing.T, ctx *builder.Context, key buildkey.Key) any {
		instance, err := ctx.BuildUp(key, nil)
		require.NoError(t, err)
		return instance
	}

	t.Run("concrete first", func(t *testing.T) {
		ctx := newSingletonContext(t)
		plain := build(t, ctx, buildkey.Of[*calculator]())
		wrapped := build(t, ctx, buildkey.Of[Calculator]())

		require.IsType(t, &calculator{}, plain)
		require.IsType(t, calculatorProxy{}, wrapped)
		assert.Same(t, plain, wrapped.(calculatorProxy).Unwrap())
	})

	t.Run("interface first", func(t *testing.T) {
		ctx := newSingletonContext(t)
		wrapped := build(t, ctx, buildkey.Of[Calculator]())
		plain := build(t, ctx, buildkey.Of[*calculator]())

		require.IsType(t, calculatorProxy{}, wrapped)
		require.IsType(t, &calculator{}, plain)
		assert.Same(t, plain, wrapped.(calculatorProxy).Unwrap())
	})

	t.Run("proxy is reused", func(t *testing.T) {
		ctx := newSingletonContext(t)
		first := build(t, ctx, buildkey.Of[Calculator]()).(calculatorProxy)
		second := build(t, ctx, buildkey.Of[Calculator]()).(calculatorProxy)
		assert.Same(t, first.Dispatcher, second.Dispatcher)
	})
}

func TestStrategy_TransientGetsNewProxy(t *testing.T) {
	ctx := newContext(newProxies(t))
	require.NoError(t, policy.Set(ctx.Policies, buildkey.Of[Calculator](), NewPolicy[Calculator]()))

	first, err := ctx.BuildUp(buildkey.Of[Calculator](), nil)
	require.NoError(t, err)
	second, err := ctx.BuildUp(buildkey.Of[Calculator](), nil)
	require.NoError(t, err)
	assert.NotSame(t, first.(calculatorProxy).Unwrap(), second.(calculatorProxy).Unwrap())
	assert.Equal(t, 0, ctx.Lifetime.Count(), "transient proxies are not owned")
}

func TestStrategy_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		proxies ProxyFactory
		policy  *Policy
	}{
		{"no proxy registered", NewProxies(), NewPolicy[Calculator]()},
		{"no factory", nil, NewPolicy[Calculator]()},
		{"unknown method", newProxies(t), NewPolicy[Calculator]().Add("Multiply")},
		{"not implemented", newProxies(t), NewPolicy[interface{ Close() error }]()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newContext(tt.proxies)
			require.NoError(t, policy.Set(ctx.Policies, buildkey.Of[Calculator](), tt.policy))

			_, err := ctx.BuildUp(buildkey.Of[Calculator](), nil)
			var configErr *builder.InterceptionConfigurationError
			require.ErrorAs(t, err, &configErr)
			assert.ErrorIs(t, err, builder.ErrInterceptionConfiguration)
		})
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	pipeline := NewPipeline(Logging(zap.New(core)))
	iface := reflect.TypeOf((*Calculator)(nil)).Elem()

	pipeline.Invoke(NewInvocation(&calculator{}, iface, "Add", 1, 2), InvokeTarget)
	pipeline.Invoke(NewInvocation(&calculator{}, iface, "Divide", 1, 0), InvokeTarget)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "invocation started", entries[0].Message)
	assert.Equal(t, "invocation completed", entries[1].Message)
	assert.Equal(t, "invocation failed", entries[3].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Equal(t, "Divide", entries[3].ContextMap()["method"])

	assert.NotPanics(t, func() {
		NewPipeline(Logging(nil)).Invoke(NewInvocation(&calculator{}, iface, "Name"), InvokeTarget)
	})
}

func TestCaching(t *testing.T) {
	handler, err := Caching(DefaultCacheConfig())
	require.NoError(t, err)
	target := &calculator{}
	pipeline := NewPipeline(handler)
	call := func(method string, args ...any) *Return {
		return pipeline.Invoke(NewInvocation(target, nil, method, args...), InvokeTarget)
	}

	assert.Equal(t, 3, call("Add", 1, 2).Value)
	assert.Equal(t, 3, call("Add", 1, 2).Value)
	assert.Equal(t, 1, target.calls, "repeat call served from cache")

	assert.Equal(t, 5, call("Add", 2, 3).Value)
	assert.Equal(t, 2, target.calls)

	assert.ErrorIs(t, call("Divide", 1, 0).Err, errDivideByZero)
	assert.ErrorIs(t, call("Divide", 1, 0).Err, errDivideByZero)
	assert.Equal(t, 4, target.calls, "failures are not cached")
}

func TestCaching_SeparatesTargets(t *testing.T) {
	handler, err := Caching(DefaultCacheConfig())
	require.NoError(t, err)
	pipeline := NewPipeline(handler)
	iface := reflect.TypeOf((*Calculator)(nil)).Elem()
	first, second := &calculator{}, &calculator{}

	for _, target := range []*calculator{first, second, first, second} {
		ret := pipeline.Invoke(NewInvocation(target, iface, "Add", 1, 2), InvokeTarget)
		assert.Equal(t, 3, ret.Value)
	}
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls, "each instance fills its own entry")
}

func TestCaching_MethodFilterAndValidation(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.Methods = []string{"Divide"}
	handler, err := Caching(cfg)
	require.NoError(t, err)
	target := &calculator{}
	pipeline := NewPipeline(handler)

	for i := 0; i < 2; i++ {
		pipeline.Invoke(NewInvocation(target, nil, "Add", 1, 1), InvokeTarget)
		pipeline.Invoke(NewInvocation(target, nil, "Divide", 4, 2), InvokeTarget)
	}
	assert.Equal(t, 3, target.calls)

	for _, mutate := range []func(*CacheConfig){
		func(c *CacheConfig) { c.Capacity = 0 },
		func(c *CacheConfig) { c.NumShards = 0 },
		func(c *CacheConfig) { c.TTL = 0 },
		func(c *CacheConfig) { c.EvictionPercentage = 101 },
	} {
		bad := DefaultCacheConfig()
		mutate(&bad)
		_, err := Caching(bad)
		assert.Error(t, err)
	}
}

func TestValueSerializer(t *testing.T) {
	type query struct {
		Name  string
		Tags  []string
		inner int
	}
	s := ValueSerializer{}

	assert.Equal(t, "Find", s.SerializeKey("Find"))
	assert.Equal(t,
		s.SerializeKey("Find", map[string]int{"a": 1, "b": 2, "c": 3}),
		s.SerializeKey("Find", map[string]int{"c": 3, "b": 2, "a": 1}))
	assert.Equal(t,
		s.SerializeKey("Find", context.Background(), &query{Name: "x", inner: 1}),
		s.SerializeKey("Find", query{Name: "x", inner: 2}),
		"contexts, pointers and unexported fields do not affect the key")
	assert.NotEqual(t, s.SerializeKey("Find", 1, 2), s.SerializeKey("Find", 12))
	assert.Contains(t, s.SerializeKey("Find", nil, []int(nil)), "nil")
}

type node struct {
	Name string
	Next *node
	Refs map[string]any
}

func TestValueSerializer_Cycles(t *testing.T) {
	s := ValueSerializer{}

	loop := &node{Name: "a"}
	loop.Next = &node{Name: "b", Next: loop}
	key := s.SerializeKey("Walk", loop)
	assert.Contains(t, key, "<cycle>")
	assert.Equal(t, key, s.SerializeKey("Walk", loop))

	refs := map[string]any{}
	refs["self"] = refs
	assert.Contains(t, s.SerializeKey("Walk", &node{Name: "m", Refs: refs}), "<cycle>")

	items := make([]any, 1)
	items[0] = items
	assert.Contains(t, s.SerializeKey("Walk", items), "<cycle>")

	shared := &node{Name: "shared"}
	pair := []*node{shared, shared}
	assert.NotContains(t, s.SerializeKey("Walk", pair), "<cycle>", "a value reached twice is not a cycle")
}
