// Package nasc provides a dependency injection container built on an
// extensible object-construction engine.
//
// Nasc (Old Irish: "Link" or "Bond") turns every registration into
// policies and every resolution into a pass over a chain of strategies:
// interception, type mapping, singleton caching, inject tag scanning,
// construction, property and method injection, lifecycle notification.
// The chain is open: custom strategies can be added to any stage.
//
// # Quick Start
//
//	container := nasc.New()
//	container.Bind((*Logger)(nil), &ConsoleLogger{})
//	logger := container.Make((*Logger)(nil)).(Logger)
//
// # Lifetimes
//
// Transient - New instance each time:
//
//	container.Bind((*Service)(nil), &MyService{})
//
// Singleton - Single shared instance:
//
//	container.Singleton((*Cache)(nil), &MemoryCache{})
//
// Scoped - One instance per scope:
//
//	container.Scoped((*UnitOfWork)(nil), &DbUnitOfWork{})
//	scope := container.CreateScope()
//	defer scope.Dispose()
//	uow := scope.Make((*UnitOfWork)(nil))
//
// # Constructors and Tags
//
// Constructor parameters are resolved from the container, and struct
// fields tagged `inject` are populated after construction:
//
//	type UserService struct {
//	    DB     Database `inject:""`
//	    Logger Logger   `inject:"name=file"`
//	    DSN    string   `inject:"lookup=dsn"`
//	}
//
//	container.BindConstructor((*Repository)(nil), NewRepository)
//	service := container.Make(&UserService{}).(*UserService)
//
// # Interception
//
// Calls through an interface can be routed through handlers, outermost
// first, once a proxy for the interface is registered:
//
//	nasc.RegisterProxy(container, func(d *intercept.Dispatcher) Greeter { return greeterProxy{d} })
//	container.Intercept((*Greeter)(nil), intercept.Logging(logger))
//
// Only resolutions of the intercepted key are wrapped. Resolving the
// concrete type returns the plain instance, the same one the proxy calls
// when the binding is a singleton.
//
// # Error Handling
//
// Safe resolution with error checking:
//
//	service, err := container.MakeSafe((*Service)(nil))
//	if errors.Is(err, nasc.ErrCyclicDependency) {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// All operations are thread-safe and can be used concurrently.
package nasc
