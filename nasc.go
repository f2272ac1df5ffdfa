package nasc

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/intercept"
	"github.com/toutaio/toutago-nasc-builder/lifetime"
	"github.com/toutaio/toutago-nasc-builder/locator"
	"github.com/toutaio/toutago-nasc-builder/parameter"
	"github.com/toutaio/toutago-nasc-builder/policy"
	"github.com/toutaio/toutago-nasc-builder/registry"
	"github.com/toutaio/toutago-nasc-builder/scan"
	"github.com/toutaio/toutago-nasc-builder/strategy"
)

// Nasc is the main dependency injection container.
// Registrations are recorded as policies and every resolution runs the
// build chain, so all operations are safe for concurrent use.
type Nasc struct {
	policies  *policy.List
	locator   *locator.Locator
	lifetime  *lifetime.Container
	staged    *builder.StagedChain
	chain     *atomic.Pointer[builder.Chain]
	registry  *registry.Registry
	proxies   *intercept.Proxies
	scanCache *scan.Cache
	logger    *zap.Logger
	providers *providerSet

	// validate makes registrations scan inject tags eagerly.
	validate bool
	// pending strategies added by options, installed after the defaults.
	pending []stagedStrategy
	// active is the build in progress when this is a view handed to a
	// factory; nested resolutions then join that build.
	active *builder.Context
}

type stagedStrategy struct {
	stage    builder.Stage
	strategy builder.Strategy
}

// New creates a new Nasc container instance.
// Options can be provided to configure the container behavior.
//
// Example:
//
//	container := nasc.New()
//	// or with options:
//	container := nasc.New(nasc.WithLogger(logger))
func New(options ...Option) *Nasc {
	n := &Nasc{
		policies:  policy.New(),
		locator:   locator.New(nil),
		lifetime:  lifetime.New(),
		staged:    builder.NewStagedChain(),
		chain:     &atomic.Pointer[builder.Chain]{},
		registry:  registry.New(),
		proxies:   intercept.NewProxies(),
		logger:    zap.NewNop(),
		providers: &providerSet{},
	}

	for _, opt := range options {
		if err := opt(n); err != nil {
			panic(fmt.Sprintf("failed to apply option: %v", err))
		}
	}

	if n.scanCache == nil {
		n.scanCache = scan.NewCache()
	}
	n.staged.Add(builder.StagePreCreation, intercept.NewStrategy(n.proxies))
	n.staged.Add(builder.StagePreCreation, strategy.NewTypeMappingStrategy())
	n.staged.Add(builder.StagePreCreation, strategy.NewSingletonStrategy())
	n.staged.Add(builder.StagePreCreation, scan.NewStrategy(n.scanCache))
	n.staged.Add(builder.StageCreation, strategy.NewCreationStrategy())
	n.staged.Add(builder.StageInitialization, strategy.NewPropertyStrategy())
	n.staged.Add(builder.StageInitialization, strategy.NewMethodStrategy())
	n.staged.Add(builder.StagePostInitialization, strategy.NewLifecycleStrategy())
	for _, p := range n.pending {
		n.staged.Add(p.stage, p.strategy)
	}
	n.pending = nil
	n.chain.Store(n.staged.Chain())

	return n
}

// AddStrategy appends s to stage. Strategies run in stage order, and in
// insertion order within a stage.
func (n *Nasc) AddStrategy(stage builder.Stage, s builder.Strategy) {
	n.staged.Add(stage, s)
	n.chain.Store(n.staged.Chain())
	n.logger.Debug("strategy added", zap.Stringer("stage", stage), zap.String("strategy", fmt.Sprintf("%T", s)))
}

// Policies returns the policy list consulted by the build chain.
func (n *Nasc) Policies() *policy.List {
	return n.policies
}

// Locator returns the locator used by Lookup parameters.
func (n *Nasc) Locator() *locator.Locator {
	return n.locator
}

// Proxies returns the proxy registry used for interception.
func (n *Nasc) Proxies() *intercept.Proxies {
	return n.proxies
}

// Logger returns the container logger.
func (n *Nasc) Logger() *zap.Logger {
	return n.logger
}

// Bind registers a binding between an interface type and a concrete implementation.
// The abstractType should be an interface pointer like (*Logger)(nil).
// The concreteType should be a pointer to the concrete implementation.
//
// Example:
//
//	container.Bind((*Logger)(nil), &ConsoleLogger{})
//
// Returns an error if:
//   - Either parameter is nil
//   - The binding already exists
//   - The concrete type does not implement the abstract type
func (n *Nasc) Bind(abstractType, concreteType any) error {
	return n.bindType(abstractType, concreteType, "", LifetimeTransient, nil)
}

// BindNamed registers a named binding.
// Named bindings allow multiple implementations of the same interface.
//
// Example:
//
//	container.BindNamed((*Logger)(nil), &FileLogger{}, "file")
//	container.BindNamed((*Logger)(nil), &ConsoleLogger{}, "console")
//
//	fileLogger := container.MakeNamed((*Logger)(nil), "file").(Logger)
func (n *Nasc) BindNamed(abstractType, concreteType any, name string) error {
	if name == "" {
		return &InvalidBindingError{Reason: "name cannot be empty"}
	}
	return n.bindType(abstractType, concreteType, name, LifetimeTransient, nil)
}

// Singleton registers a singleton binding.
// The instance is created lazily on first resolution and reused for all
// subsequent resolutions, from the container and from every scope.
//
// Example:
//
//	container.Singleton((*Database)(nil), &PostgresDB{})
//	db1 := container.Make((*Database)(nil)).(Database)
//	db2 := container.Make((*Database)(nil)).(Database)
//	// db1 == db2 (same instance)
func (n *Nasc) Singleton(abstractType, concreteType any) error {
	return n.bindType(abstractType, concreteType, "", LifetimeSingleton, nil)
}

// SingletonNamed registers a named singleton binding.
func (n *Nasc) SingletonNamed(abstractType, concreteType any, name string) error {
	if name == "" {
		return &InvalidBindingError{Reason: "name cannot be empty"}
	}
	return n.bindType(abstractType, concreteType, name, LifetimeSingleton, nil)
}

// Scoped registers a scoped binding.
// One instance is created per scope. Resolved from the container itself,
// the container acts as the root scope.
//
// Example:
//
//	container.Scoped((*UnitOfWork)(nil), &DbUnitOfWork{})
//	scope := container.CreateScope()
//	uow := scope.Make((*UnitOfWork)(nil)).(UnitOfWork)
func (n *Nasc) Scoped(abstractType, concreteType any) error {
	return n.bindType(abstractType, concreteType, "", LifetimeScoped, nil)
}

// BindWithTags registers a binding with tags.
// Tags enable grouping and batch resolution of related services. The
// binding is named after the concrete type so several implementations
// of one interface can carry the same tag.
//
// Example:
//
//	container.BindWithTags((*Plugin)(nil), &PluginA{}, []string{"plugin", "enabled"})
//	container.BindWithTags((*Plugin)(nil), &PluginB{}, []string{"plugin", "enabled"})
//
//	plugins := container.MakeWithTag("plugin")
func (n *Nasc) BindWithTags(abstractType, concreteType any, tags []string) error {
	if len(tags) == 0 {
		return &InvalidBindingError{Reason: "at least one tag is required"}
	}
	if concreteType == nil {
		return &InvalidBindingError{Reason: "concrete type cannot be nil"}
	}
	name := reflect.TypeOf(concreteType).String()
	return n.bindType(abstractType, concreteType, name, LifetimeTransient, tags)
}

func (n *Nasc) bindType(abstractType, concreteType any, name string, lt Lifetime, tags []string) error {
	key, err := tokenKey(abstractType, name)
	if err != nil {
		return err
	}
	if concreteType == nil {
		return &InvalidBindingError{Reason: "concrete type cannot be nil"}
	}
	concreteT := reflect.TypeOf(concreteType)
	if concreteT.Kind() != reflect.Ptr || concreteT.Elem().Kind() != reflect.Struct {
		return &InvalidBindingError{
			Reason: fmt.Sprintf("concrete type must be pointer to struct, got %v", concreteT),
		}
	}
	return n.register(key, concreteT, lt, tags)
}

// register records the binding of key to concreteT and sets the policies
// that enforce it. Lifetime policies live on the concrete key, so two
// bindings sharing a concrete type and name share its lifetime.
func (n *Nasc) register(key buildkey.Key, concreteT reflect.Type, lt Lifetime, tags []string) error {
	if !concreteT.AssignableTo(key.Type()) {
		return &InvalidBindingError{
			Reason: fmt.Sprintf("%v does not implement %v", concreteT, key.Type()),
		}
	}
	if n.validate {
		if _, err := n.scanCache.Properties(concreteT); err != nil {
			return &InvalidBindingError{Reason: err.Error()}
		}
	}
	if err := n.registry.Register(&registry.Binding{
		Key: key, Concrete: concreteT, Lifetime: lt.String(), Tags: tags,
	}); err != nil {
		return err
	}

	target := key.WithType(concreteT)
	if target != key {
		if err := policy.Set[strategy.TypeMappingPolicy](n.policies, key, strategy.NewTypeMapping(target)); err != nil {
			return err
		}
	}
	if err := n.setLifetime(target, lt); err != nil {
		return err
	}
	n.logger.Debug("binding registered",
		zap.Stringer("key", key), zap.Stringer("concrete", target), zap.Stringer("lifetime", lt))
	return nil
}

func (n *Nasc) setLifetime(key buildkey.Key, lt Lifetime) error {
	var lifetimePolicy strategy.SingletonPolicy
	switch lt {
	case LifetimeSingleton, LifetimeInstance:
		lifetimePolicy = strategy.ContainerSingleton{Lifetime: n.lifetime}
	case LifetimeScoped:
		lifetimePolicy = strategy.Singleton(true)
	default:
		lifetimePolicy = strategy.Singleton(false)
	}
	return policy.Set[strategy.SingletonPolicy](n.policies, key, lifetimePolicy)
}

// ConstructorFunc is a constructor function: any function returning the
// instance, optionally followed by an error.
type ConstructorFunc = any

// BindConstructor registers a transient binding created by constructor.
// Constructor parameters are resolved from the container; params, when
// given, override the resolution of each parameter in order.
//
// Example:
//
//	func NewUserService(db Database, logger Logger) *UserService { ... }
//
//	container.BindConstructor((*UserService)(nil), NewUserService)
func (n *Nasc) BindConstructor(abstractType any, constructor ConstructorFunc, params ...parameter.Parameter) error {
	return n.bindConstructor(abstractType, constructor, LifetimeTransient, params)
}

// SingletonConstructor registers a singleton binding created by constructor.
func (n *Nasc) SingletonConstructor(abstractType any, constructor ConstructorFunc, params ...parameter.Parameter) error {
	return n.bindConstructor(abstractType, constructor, LifetimeSingleton, params)
}

// ScopedConstructor registers a scoped binding created by constructor.
func (n *Nasc) ScopedConstructor(abstractType any, constructor ConstructorFunc, params ...parameter.Parameter) error {
	return n.bindConstructor(abstractType, constructor, LifetimeScoped, params)
}

func (n *Nasc) bindConstructor(abstractType any, constructor ConstructorFunc, lt Lifetime, params []parameter.Parameter) error {
	key, err := tokenKey(abstractType, "")
	if err != nil {
		return err
	}
	ctor, err := strategy.NewConstructor(constructor, params...)
	if err != nil {
		return &InvalidBindingError{Reason: err.Error()}
	}
	if out := ctor.Type(); !out.AssignableTo(key.Type()) {
		return &InvalidBindingError{
			Reason: fmt.Sprintf("constructor returns %v, which does not implement %v", out, key.Type()),
		}
	}
	return n.registerCreation(key, ctor.Type(), lt, strategy.Pinned{Constructor: ctor})
}

// Factory registers a factory binding.
// The factory function is called on every resolution to create instances.
// The container it receives resolves within the build in progress, so
// circular factories are reported instead of recursing forever.
//
// Example:
//
//	container.Factory((*Connection)(nil), func(c *Nasc) (interface{}, error) {
//	    config := c.Make((*Config)(nil)).(*Config)
//	    return NewConnection(config.DSN), nil
//	})
func (n *Nasc) Factory(abstractType any, factory FactoryFunc) error {
	if factory == nil {
		return &InvalidBindingError{Reason: "factory function cannot be nil"}
	}
	key, err := tokenKey(abstractType, "")
	if err != nil {
		return err
	}
	create := strategy.Factory(func(ctx *builder.Context) (any, error) {
		return factory(n.within(ctx))
	})
	return n.registerCreation(key, nil, LifetimeFactory, create)
}

func (n *Nasc) registerCreation(key buildkey.Key, concreteT reflect.Type, lt Lifetime, creation strategy.CreationPolicy) error {
	if err := n.registry.Register(&registry.Binding{Key: key, Concrete: concreteT, Lifetime: lt.String()}); err != nil {
		return err
	}
	if err := policy.Set[strategy.CreationPolicy](n.policies, key, creation); err != nil {
		return err
	}
	if err := n.setLifetime(key, lt); err != nil {
		return err
	}
	n.logger.Debug("binding registered", zap.Stringer("key", key), zap.Stringer("lifetime", lt))
	return nil
}

// Instance registers an already built instance. The container owns it
// from now on: it is returned for every resolution and disposed with
// the container.
//
// Example:
//
//	container.Instance((*Config)(nil), &Config{DSN: "postgres://"})
func (n *Nasc) Instance(abstractType, instance any) error {
	return n.InstanceNamed(abstractType, instance, "")
}

// InstanceNamed registers an already built instance under name.
func (n *Nasc) InstanceNamed(abstractType, instance any, name string) error {
	key, err := tokenKey(abstractType, name)
	if err != nil {
		return err
	}
	if instance == nil {
		return &InvalidBindingError{Reason: "instance cannot be nil"}
	}
	if t := reflect.TypeOf(instance); !t.AssignableTo(key.Type()) {
		return &InvalidBindingError{Reason: fmt.Sprintf("%v does not implement %v", t, key.Type())}
	}
	if err := n.registry.Register(&registry.Binding{
		Key: key, Concrete: reflect.TypeOf(instance), Lifetime: LifetimeInstance.String(),
	}); err != nil {
		return err
	}
	n.lifetime.AddKeyed(key, instance)
	n.locator.Add(key, instance)
	return n.setLifetime(key, LifetimeInstance)
}

// Value stores value in the locator under key, for Lookup parameters and
// `inject:"lookup=key"` fields.
func (n *Nasc) Value(key, value any) error {
	if key == nil {
		return &InvalidBindingError{Reason: "locator key cannot be nil"}
	}
	n.locator.Add(key, value)
	return nil
}

// Intercept routes the calls made through abstractType, which must be an
// interface with a registered proxy, through handlers. The returned
// policy accepts further handlers, for all methods or for one.
//
// Example:
//
//	policy, err := container.Intercept((*Greeter)(nil), intercept.Logging(logger))
//	policy.Add("Greet", cachingHandler)
func (n *Nasc) Intercept(abstractType any, handlers ...intercept.Handler) (*intercept.Policy, error) {
	return n.InterceptNamed(abstractType, "", handlers...)
}

// InterceptNamed is Intercept for a named binding.
func (n *Nasc) InterceptNamed(abstractType any, name string, handlers ...intercept.Handler) (*intercept.Policy, error) {
	key, err := tokenKey(abstractType, name)
	if err != nil {
		return nil, err
	}
	if key.Type().Kind() != reflect.Interface {
		return nil, &InvalidBindingError{Reason: fmt.Sprintf("cannot intercept non-interface type %v", key.Type())}
	}
	if !n.proxies.Has(key.Type()) {
		return nil, &InvalidBindingError{Reason: fmt.Sprintf("no proxy registered for %v", key.Type())}
	}

	p, ok := policy.Get[*intercept.Policy](n.policies, key)
	if !ok {
		p = intercept.NewPolicyFor(key.Type())
		if err := policy.Set[*intercept.Policy](n.policies, key, p); err != nil {
			return nil, err
		}
	}
	p.AddAll(handlers...)
	n.logger.Debug("interception registered", zap.Stringer("key", key), zap.Int("handlers", len(handlers)))
	return p, nil
}

// RegisterProxy registers the proxy constructor used to intercept the
// interface I.
//
// Example:
//
//	type greeterProxy struct{ *intercept.Dispatcher }
//
//	nasc.RegisterProxy(container, func(d *intercept.Dispatcher) Greeter { return greeterProxy{d} })
func RegisterProxy[I any](n *Nasc, constructor func(*intercept.Dispatcher) I) error {
	return intercept.RegisterProxy(n.proxies, constructor)
}

// Has reports whether abstractType has an unnamed binding.
func (n *Nasc) Has(abstractType any) bool {
	return n.HasNamed(abstractType, "")
}

// HasNamed reports whether abstractType has a binding named name.
func (n *Nasc) HasNamed(abstractType any, name string) bool {
	key, err := tokenKey(abstractType, name)
	return err == nil && n.registry.Has(key)
}

// Bindings returns every binding of abstractType, named or not, in
// registration order.
func (n *Nasc) Bindings(abstractType any) []*registry.Binding {
	t := buildkey.TypeOfToken(abstractType)
	if t == nil {
		return nil
	}
	return n.registry.All(t)
}

// within returns a view of the container whose resolutions join the
// build of ctx.
func (n *Nasc) within(ctx *builder.Context) *Nasc {
	view := *n
	view.active = ctx
	return &view
}

func (n *Nasc) context() *builder.Context {
	return builder.NewContext(n.chain.Load(), n.policies, n.locator, n.lifetime).WithLogger(n.logger)
}

func tokenKey(token any, name string) (buildkey.Key, error) {
	if token == nil {
		return buildkey.Key{}, &InvalidBindingError{Reason: "abstract type cannot be nil"}
	}
	return buildkey.FromToken(token, name)
}
