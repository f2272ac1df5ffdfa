package nasc

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/parameter"
)

// Test interfaces and implementations
type Logger interface {
	Log(msg string)
}

type ConsoleLogger struct {
	messages []string
}

func (l *ConsoleLogger) Log(msg string) {
	l.messages = append(l.messages, msg)
}

type FileLogger struct{}

func (l *FileLogger) Log(string) {}

type Database interface {
	Connect() error
}

type MockDB struct {
	connected bool
}

func (db *MockDB) Connect() error {
	db.connected = true
	return nil
}

type UserService struct {
	DB     Database
	Logger Logger
}

func NewUserService(db Database, logger Logger) *UserService {
	return &UserService{DB: db, Logger: logger}
}

type Mailer struct {
	Logger  Logger `inject:""`
	Audit   Logger `inject:"name=audit,optional"`
	From    string `inject:"lookup=mail.from"`
	Unused  Logger
	started []buildkey.Key
}

func (m *Mailer) OnBuiltUp(key buildkey.Key) { m.started = append(m.started, key) }
func (m *Mailer) OnTearingDown()             { m.started = nil }

func TestNew(t *testing.T) {
	container := New()
	require.NotNil(t, container)
	assert.NotNil(t, container.Policies())
	assert.NotNil(t, container.Locator())
	assert.NotNil(t, container.Proxies())
	assert.NotNil(t, container.Logger())
}

func TestNew_WithOptions(t *testing.T) {
	container := New(WithValidation(), WithLogger(zap.NewNop()))
	require.NotNil(t, container)
	assert.True(t, container.validate)
}

func TestNew_InvalidOptionPanics(t *testing.T) {
	assert.Panics(t, func() { New(WithLogger(nil)) })
	assert.Panics(t, func() { New(WithStrategy(builder.StageCreation, nil)) })
}

func TestBind_Success(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	assert.True(t, container.Has((*Logger)(nil)))
}

func TestBind_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		abstract any
		concrete any
	}{
		{"nil abstract", nil, &ConsoleLogger{}},
		{"nil concrete", (*Logger)(nil), nil},
		{"concrete not a struct pointer", (*Logger)(nil), ConsoleLogger{}},
		{"concrete does not implement", (*Database)(nil), &ConsoleLogger{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Bind(tt.abstract, tt.concrete)
			var invalid *InvalidBindingError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestBind_Duplicate(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))

	err := container.Bind((*Logger)(nil), &FileLogger{})
	var dup *BindingAlreadyExistsError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, buildkey.Of[Logger](), dup.Key)
}

func TestMake_TransientInstancesAreDistinct(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))

	first := container.Make((*Logger)(nil))
	second := container.Make((*Logger)(nil))

	assert.IsType(t, &ConsoleLogger{}, first)
	assert.NotSame(t, first, second)
}

func TestMake_UnboundInterfacePanics(t *testing.T) {
	container := New()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrDependencyMissing)
	}()
	container.Make((*Logger)(nil))
}

func TestMake_NilTypePanics(t *testing.T) {
	assert.Panics(t, func() { New().Make(nil) })
}

func TestMake_ConcreteWithoutBinding(t *testing.T) {
	container := New()
	instance := container.Make(&MockDB{})
	assert.IsType(t, &MockDB{}, instance)
}

func TestSingleton_ReturnsSameInstance(t *testing.T) {
	container := New()
	require.NoError(t, container.Singleton((*Database)(nil), &MockDB{}))

	first := container.Make((*Database)(nil))
	second := container.Make((*Database)(nil))
	assert.Same(t, first, second)
}

func TestSingleton_PerName(t *testing.T) {
	container := New()
	require.NoError(t, container.SingletonNamed((*Logger)(nil), &ConsoleLogger{}, "a"))
	require.NoError(t, container.SingletonNamed((*Logger)(nil), &ConsoleLogger{}, "b"))

	a := container.MakeNamed((*Logger)(nil), "a")
	b := container.MakeNamed((*Logger)(nil), "b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, container.MakeNamed((*Logger)(nil), "a"))
}

func TestSingleton_ThreadSafe(t *testing.T) {
	container := New()
	var created atomic.Int32
	require.NoError(t, container.SingletonConstructor((*Database)(nil), func() *MockDB {
		created.Add(1)
		return &MockDB{}
	}))

	var wg sync.WaitGroup
	instances := make([]any, 50)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i] = container.Make((*Database)(nil))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, instance := range instances {
		assert.Same(t, instances[0], instance)
	}
}

func TestBindNamed(t *testing.T) {
	container := New()
	require.NoError(t, container.BindNamed((*Logger)(nil), &FileLogger{}, "file"))
	require.NoError(t, container.BindNamed((*Logger)(nil), &ConsoleLogger{}, "console"))

	assert.IsType(t, &FileLogger{}, container.MakeNamed((*Logger)(nil), "file"))
	assert.IsType(t, &ConsoleLogger{}, container.MakeNamed((*Logger)(nil), "console"))
	assert.True(t, container.HasNamed((*Logger)(nil), "file"))
	assert.False(t, container.Has((*Logger)(nil)))

	_, err := container.MakeNamedSafe((*Logger)(nil), "missing")
	assert.ErrorIs(t, err, ErrDependencyMissing)

	var invalid *InvalidBindingError
	assert.ErrorAs(t, container.BindNamed((*Logger)(nil), &FileLogger{}, ""), &invalid)
}

func TestMakeAll(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	require.NoError(t, container.BindNamed((*Logger)(nil), &FileLogger{}, "file"))
	require.NoError(t, container.BindNamed((*Logger)(nil), &ConsoleLogger{}, "console"))

	loggers := container.MakeAll((*Logger)(nil))
	require.Len(t, loggers, 3)
	assert.IsType(t, &ConsoleLogger{}, loggers[0])
	assert.IsType(t, &FileLogger{}, loggers[1])
	assert.IsType(t, &ConsoleLogger{}, loggers[2])

	assert.Empty(t, container.MakeAll((*Database)(nil)))
	assert.Len(t, container.Bindings((*Logger)(nil)), 3)
}

func TestBindWithTags(t *testing.T) {
	container := New()
	require.NoError(t, container.BindWithTags((*Logger)(nil), &ConsoleLogger{}, []string{"sink", "local"}))
	require.NoError(t, container.BindWithTags((*Logger)(nil), &FileLogger{}, []string{"sink"}))

	sinks := container.MakeWithTag("sink")
	require.Len(t, sinks, 2)
	assert.IsType(t, &ConsoleLogger{}, sinks[0])
	assert.IsType(t, &FileLogger{}, sinks[1])
	assert.Len(t, container.MakeWithTag("local"), 1)
	assert.Empty(t, container.MakeWithTag("remote"))
	assert.Panics(t, func() { container.MakeWithTag("") })

	var invalid *InvalidBindingError
	assert.ErrorAs(t, container.BindWithTags((*Logger)(nil), &FileLogger{}, nil), &invalid)
}

func TestBindConstructor(t *testing.T) {
	container := New()
	require.NoError(t, container.Singleton((*Database)(nil), &MockDB{}))
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	require.NoError(t, container.BindConstructor((*UserService)(nil), NewUserService))

	service := container.Make((*UserService)(nil)).(*UserService)
	assert.Same(t, container.Make((*Database)(nil)), service.DB)
	assert.IsType(t, &ConsoleLogger{}, service.Logger)
	assert.NotSame(t, service, container.Make((*UserService)(nil)))
}

func TestBindConstructor_RecordsProducedType(t *testing.T) {
	container := New()
	require.NoError(t, container.SingletonConstructor((*Database)(nil), func() *MockDB { return &MockDB{} }))

	bindings := container.Bindings((*Database)(nil))
	require.Len(t, bindings, 1)
	assert.Equal(t, reflect.TypeOf(&MockDB{}), bindings[0].Concrete)
	assert.Equal(t, "singleton", bindings[0].Lifetime)
	assert.IsType(t, &MockDB{}, container.Make((*Database)(nil)))
}

func TestBindConstructor_ExplicitParameters(t *testing.T) {
	container := New()
	db := &MockDB{}
	require.NoError(t, container.BindConstructor((*UserService)(nil), NewUserService,
		parameter.Value(db), parameter.Value(&FileLogger{})))

	service := container.Make((*UserService)(nil)).(*UserService)
	assert.Same(t, db, service.DB)
	assert.IsType(t, &FileLogger{}, service.Logger)
}

func TestBindConstructor_Invalid(t *testing.T) {
	container := New()
	var invalid *InvalidBindingError

	assert.ErrorAs(t, container.BindConstructor((*UserService)(nil), "not a function"), &invalid)
	assert.ErrorAs(t, container.BindConstructor((*Database)(nil), NewUserService), &invalid)
	assert.ErrorAs(t, container.BindConstructor((*UserService)(nil), NewUserService, parameter.Value(1)), &invalid)
}

func TestBindConstructor_ErrorPropagates(t *testing.T) {
	container := New()
	boom := errors.New("connection refused")
	require.NoError(t, container.BindConstructor((*Database)(nil), func() (*MockDB, error) {
		return nil, boom
	}))

	_, err := container.MakeSafe((*Database)(nil))
	assert.ErrorIs(t, err, boom)

	var resolution *ResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, buildkey.Of[Database]().Type(), resolution.Type)
}

func TestSingletonConstructor_FailureIsNotCached(t *testing.T) {
	container := New()
	var attempts int
	require.NoError(t, container.SingletonConstructor((*Database)(nil), func() (*MockDB, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("not yet")
		}
		return &MockDB{}, nil
	}))

	_, err := container.MakeSafe((*Database)(nil))
	require.Error(t, err)
	first, err := container.MakeSafe((*Database)(nil))
	require.NoError(t, err)
	assert.Same(t, first, container.Make((*Database)(nil)))
	assert.Equal(t, 2, attempts)
}

func TestFactory(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))

	var calls int
	require.NoError(t, container.Factory((*UserService)(nil), func(c *Nasc) (any, error) {
		calls++
		return &UserService{Logger: c.Make((*Logger)(nil)).(Logger)}, nil
	}))

	first := container.Make((*UserService)(nil)).(*UserService)
	second := container.Make((*UserService)(nil)).(*UserService)
	assert.NotSame(t, first, second)
	assert.NotNil(t, first.Logger)
	assert.Equal(t, 2, calls)

	var invalid *InvalidBindingError
	assert.ErrorAs(t, container.Factory((*Logger)(nil), nil), &invalid)
}

func TestFactory_Errors(t *testing.T) {
	container := New()
	boom := errors.New("factory failed")
	require.NoError(t, container.Factory((*Database)(nil), func(*Nasc) (any, error) {
		return nil, boom
	}))
	require.NoError(t, container.Factory((*Logger)(nil), func(*Nasc) (any, error) {
		return &MockDB{}, nil
	}))

	_, err := container.MakeSafe((*Database)(nil))
	assert.ErrorIs(t, err, boom)

	_, err = container.MakeSafe((*Logger)(nil))
	assert.ErrorIs(t, err, ErrIncompatibleTypes)
}

func TestFactory_SelfReferenceIsACycle(t *testing.T) {
	container := New()
	require.NoError(t, container.Factory((*Logger)(nil), func(c *Nasc) (any, error) {
		return c.MakeSafe((*Logger)(nil))
	}))

	_, err := container.MakeSafe((*Logger)(nil))
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestInstance(t *testing.T) {
	container := New()
	db := &MockDB{}
	require.NoError(t, container.Instance((*Database)(nil), db))

	assert.Same(t, db, container.Make((*Database)(nil)))
	assert.Same(t, db, container.CreateScope().Make((*Database)(nil)))

	var invalid *InvalidBindingError
	assert.ErrorAs(t, container.Instance((*Logger)(nil), nil), &invalid)
	assert.ErrorAs(t, container.InstanceNamed((*Logger)(nil), db, "x"), &invalid)
}

func TestTagInjection(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	require.NoError(t, container.Value("mail.from", "noreply@example.com"))

	mailer := container.Make(&Mailer{}).(*Mailer)
	assert.IsType(t, &ConsoleLogger{}, mailer.Logger)
	assert.Nil(t, mailer.Audit, "optional named dependency without binding")
	assert.Nil(t, mailer.Unused)
	assert.Equal(t, "noreply@example.com", mailer.From)
	assert.Equal(t, []buildkey.Key{buildkey.Of[*Mailer]()}, mailer.started)

	require.NoError(t, container.BindNamed((*Logger)(nil), &FileLogger{}, "audit"))
	mailer = container.Make(&Mailer{}).(*Mailer)
	assert.IsType(t, &FileLogger{}, mailer.Audit)
}

func TestTagInjection_MissingLookup(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))

	_, err := container.MakeSafe(&Mailer{})
	assert.ErrorIs(t, err, ErrDependencyMissing)

	var invalid *InvalidBindingError
	assert.ErrorAs(t, container.Value(nil, "x"), &invalid)
}

func TestAutoWire(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	require.NoError(t, container.Value("mail.from", "ops@example.com"))

	mailer := &Mailer{}
	require.NoError(t, container.AutoWire(mailer))
	assert.NotNil(t, mailer.Logger)
	assert.Equal(t, "ops@example.com", mailer.From)

	assert.Error(t, container.AutoWire(nil))
	assert.Error(t, container.AutoWire(Mailer{}))
}

func TestResolve(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	require.NoError(t, container.BindNamed((*Logger)(nil), &FileLogger{}, "file"))

	logger, err := Resolve[Logger](container)
	require.NoError(t, err)
	assert.IsType(t, &ConsoleLogger{}, logger)

	named, err := ResolveNamed[Logger](container, "file")
	require.NoError(t, err)
	assert.IsType(t, &FileLogger{}, named)

	_, err = Resolve[Database](container)
	assert.ErrorIs(t, err, ErrDependencyMissing)
}

func TestTearDown(t *testing.T) {
	container := New()
	mailer := &Mailer{started: []buildkey.Key{buildkey.Of[*Mailer]()}}

	require.NoError(t, container.TearDown(mailer))
	assert.Nil(t, mailer.started)
}

type recordingDisposable struct {
	name  string
	order *[]string
	Dep   *innerDisposable `inject:""`
}

func (r *recordingDisposable) Dispose() error {
	*r.order = append(*r.order, r.name)
	return nil
}

type innerDisposable struct {
	closed bool
}

func (i *innerDisposable) Close() error {
	i.closed = true
	return nil
}

func TestDispose_ReverseCreationOrder(t *testing.T) {
	container := New()
	var order []string
	require.NoError(t, container.Singleton(&innerDisposable{}, &innerDisposable{}))
	require.NoError(t, container.SingletonConstructor((*recordingDisposable)(nil), func(dep *innerDisposable) *recordingDisposable {
		order = append(order, "constructed")
		return &recordingDisposable{name: "outer", order: &order, Dep: dep}
	}))

	outer := container.Make((*recordingDisposable)(nil)).(*recordingDisposable)
	require.NoError(t, container.Dispose())

	assert.Equal(t, []string{"constructed", "outer"}, order)
	assert.True(t, outer.Dep.closed)
	assert.NotSame(t, outer, container.Make((*recordingDisposable)(nil)), "singletons are rebuilt after dispose")
}

type fixedStrategy struct {
	builder.Base
	key   buildkey.Key
	value any
}

func (s fixedStrategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	if key == s.key {
		return s.value, nil
	}
	return next(key, existing)
}

func TestAddStrategy(t *testing.T) {
	fixed := &MockDB{}
	container := New(WithStrategy(builder.StagePreCreation, fixedStrategy{key: buildkey.Of[*MockDB](), value: fixed}))
	assert.Same(t, fixed, container.Make(&MockDB{}))

	other := &ConsoleLogger{}
	container.AddStrategy(builder.StageCreation, fixedStrategy{key: buildkey.Of[*ConsoleLogger](), value: other})
	assert.Same(t, other, container.Make(&ConsoleLogger{}))
}

func TestWithValidation_RejectsInvalidTags(t *testing.T) {
	type badTags struct {
		Logger Logger `inject:"name=a,lookup=b"`
	}
	container := New(WithValidation())

	var invalid *InvalidBindingError
	assert.ErrorAs(t, container.Singleton(&badTags{}, &badTags{}), &invalid)
	assert.NoError(t, New().Singleton(&badTags{}, &badTags{}), "without validation tags are checked on build")
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	container := New(WithLogger(zap.New(core)))
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	container.Make((*Logger)(nil))

	assert.Equal(t, 1, logs.FilterMessage("binding registered").Len())
	assert.NotZero(t, logs.FilterMessage("type mapped").Len())
}

func TestConcurrentMake(t *testing.T) {
	container := New()
	require.NoError(t, container.Bind((*Logger)(nil), &ConsoleLogger{}))
	require.NoError(t, container.Singleton((*Database)(nil), &MockDB{}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := container.MakeSafe((*Logger)(nil))
			assert.NoError(t, err)
			_, err = container.MakeSafe((*Database)(nil))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestLifetime_String(t *testing.T) {
	assert.Equal(t, "transient", LifetimeTransient.String())
	assert.Equal(t, "singleton", LifetimeSingleton.String())
	assert.Equal(t, "scoped", LifetimeScoped.String())
	assert.Equal(t, "factory", LifetimeFactory.String())
	assert.Equal(t, "instance", LifetimeInstance.String())
}

func TestParseLifetime(t *testing.T) {
	for in, want := range map[string]Lifetime{
		"":           LifetimeTransient,
		"transient":  LifetimeTransient,
		" Singleton": LifetimeSingleton,
		"scoped":     LifetimeScoped,
	} {
		got, err := ParseLifetime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLifetime("factory")
	var invalid *InvalidBindingError
	assert.ErrorAs(t, err, &invalid)
}
