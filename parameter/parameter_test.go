package parameter

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
)

type token struct {
	id     int
	cloned bool
}

func (t *token) Clone() any {
	return &token{id: t.id, cloned: true}
}

// produce builds a fresh token for every request.
type produce struct {
	builder.Base
	next int
}

func (p *produce) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	if key.Type() != reflect.TypeOf(&token{}) {
		return nil, &builder.DependencyMissingError{Key: key, Reason: "unknown"}
	}
	p.next++
	return next(key, &token{id: p.next})
}

func newContext() *builder.Context {
	return builder.NewContext(builder.NewChain(&produce{}), nil, nil, nil)
}

func TestValue(t *testing.T) {
	v, err := Value(42).Value(newContext())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestLookup(t *testing.T) {
	ctx := newContext()
	ctx.Locator.Add("answer", 42)

	v, err := Lookup("answer").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Lookup("question").Value(ctx)
	assert.ErrorIs(t, err, builder.ErrDependencyMissing)
}

func TestCreate(t *testing.T) {
	ctx := newContext()

	first, err := CreateOf[*token]().Value(ctx)
	require.NoError(t, err)
	second, err := Create(reflect.TypeOf(&token{}), "").Value(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.(*token).id)
	assert.Equal(t, 2, second.(*token).id)

	_, err = CreateKey(buildkey.Of[string]()).Value(ctx)
	assert.ErrorIs(t, err, builder.ErrDependencyMissing)
}

func TestClone(t *testing.T) {
	ctx := newContext()
	original := &token{id: 7}

	v, err := Clone(Value(original)).Value(ctx)
	require.NoError(t, err)
	clone := v.(*token)
	assert.NotSame(t, original, clone)
	assert.True(t, clone.cloned)
	assert.Equal(t, 7, clone.id)

	v, err = Clone(Value("plain")).Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestOptional(t *testing.T) {
	ctx := newContext()

	v, err := Optional(Lookup("absent")).Value(ctx)
	require.NoError(t, err)
	assert.Nil(t, v)

	boom := errors.New("boom")
	_, err = Optional(Func(func(*builder.Context) (any, error) { return nil, boom })).Value(ctx)
	assert.ErrorIs(t, err, boom, "only missing dependencies are swallowed")
}

func TestResolve(t *testing.T) {
	ctx := newContext()
	types := []reflect.Type{reflect.TypeOf(int64(0)), reflect.TypeOf(&token{}), reflect.TypeOf("")}

	values, err := Resolve(ctx, "ctor", []Parameter{Value(3), nil, Optional(Lookup("missing"))}, types)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, int64(3), values[0].Interface())
	assert.IsType(t, &token{}, values[1].Interface())
	assert.Equal(t, "", values[2].Interface())

	_, err = Resolve(ctx, "ctor", []Parameter{Value(1)}, types)
	assert.ErrorIs(t, err, builder.ErrInvalidAttribute)

	_, err = Resolve(ctx, "ctor", []Parameter{Value("x")}, types[:1])
	var incompatible *builder.IncompatibleTypesError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, reflect.TypeOf(""), incompatible.Actual)
}

func TestConvert(t *testing.T) {
	var reader interface{ Clone() any }
	ifaceType := reflect.TypeOf(&reader).Elem()

	v, err := Convert(&token{id: 1}, ifaceType)
	require.NoError(t, err)
	assert.Equal(t, ifaceType, v.Type())

	v, err = Convert(nil, reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Interface())

	v, err = Convert(uint8(9), reflect.TypeOf(float64(0)))
	require.NoError(t, err)
	assert.Equal(t, float64(9), v.Interface())

	_, err = Convert("9", reflect.TypeOf(0))
	assert.ErrorIs(t, err, builder.ErrIncompatibleTypes)
}

func TestConvert_Numbers(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target any
		want   any
	}{
		{"widen int", int8(-5), int64(0), int64(-5)},
		{"narrow int in range", 200, uint8(0), uint8(200)},
		{"int to float", 3, float64(0), float64(3)},
		{"whole float to int", 2.0, 0, 2},
		{"whole float to uint", float32(7), uint16(0), uint16(7)},
		{"uint to int", uint64(42), int32(0), int32(42)},
		{"float64 to float32", 1.5, float32(0), float32(1.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Convert(tt.value, reflect.TypeOf(tt.target))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Interface())
		})
	}
}

func TestConvert_RejectsLossyNumbers(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target any
	}{
		{"int overflows uint8", 300, uint8(0)},
		{"int overflows int8", -129, int8(0)},
		{"negative to uint", -1, uint(0)},
		{"uint overflows int64", uint64(math.MaxUint64), int64(0)},
		{"uint overflows uint16", uint32(70000), uint16(0)},
		{"fraction to int", 2.9, 0},
		{"fraction to uint", 0.5, uint(0)},
		{"NaN to int", math.NaN(), 0},
		{"float overflows int32", 1e10, int32(0)},
		{"negative float to uint", -3.0, uint8(0)},
		{"float64 overflows float32", math.MaxFloat64, float32(0)},
		{"int loses precision in float32", 1<<24 + 1, float32(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.value, reflect.TypeOf(tt.target))
			var incompatible *builder.IncompatibleTypesError
			require.ErrorAs(t, err, &incompatible)
			assert.Equal(t, reflect.TypeOf(tt.target), incompatible.Requested)
			assert.Equal(t, reflect.TypeOf(tt.value), incompatible.Actual)
		})
	}
}
