package strategy

import (
	"fmt"
	"reflect"

	"github.com/viant/xunsafe"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-builder/buildkey"
	"github.com/toutaio/toutago-nasc-builder/builder"
	"github.com/toutaio/toutago-nasc-builder/parameter"
	"github.com/toutaio/toutago-nasc-builder/policy"
)

// Property injects one struct field. A nil Value builds the field type.
type Property struct {
	Name  string
	Value parameter.Parameter
}

// PropertyPolicy lists the fields to inject into an instance.
type PropertyPolicy interface {
	Properties() []Property
}

// Properties is the stock PropertyPolicy.
type Properties []Property

// Properties returns p.
func (p Properties) Properties() []Property {
	return p
}

// PropertyStrategy sets the fields named by the PropertyPolicy of the key.
// Unexported fields declared directly on the struct are written as well.
type PropertyStrategy struct {
	builder.Base
}

// NewPropertyStrategy creates a PropertyStrategy.
func NewPropertyStrategy() *PropertyStrategy {
	return &PropertyStrategy{}
}

// BuildUp injects the properties into existing. Struct values are copied,
// injected and the copy is passed on.
func (s *PropertyStrategy) BuildUp(ctx *builder.Context, key buildkey.Key, existing any, next builder.NextFunc) (any, error) {
	propertyPolicy, ok := policy.Get[PropertyPolicy](ctx.Policies, key)
	if !ok {
		return next(key, existing)
	}
	properties := propertyPolicy.Properties()
	if len(properties) == 0 {
		return next(key, existing)
	}

	holder, err := structHolder(existing)
	if err != nil {
		return nil, &builder.InvalidAttributeError{Type: reflect.TypeOf(existing), Member: properties[0].Name, Reason: err.Error()}
	}
	for _, property := range properties {
		if err := setProperty(ctx, holder, property); err != nil {
			return nil, err
		}
		ctx.Log().Debug("property injected", zap.Stringer("key", key), zap.String("field", property.Name))
	}

	if reflect.TypeOf(existing).Kind() == reflect.Struct {
		existing = holder.Elem().Interface()
	}
	return next(key, existing)
}

// structHolder returns a pointer to the struct behind instance. Struct
// values are copied into a new addressable struct.
func structHolder(instance any) (reflect.Value, error) {
	if instance == nil {
		return reflect.Value{}, fmt.Errorf("no instance to inject into")
	}
	v := reflect.ValueOf(instance)
	switch {
	case v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct:
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil pointer")
		}
		return v, nil
	case v.Kind() == reflect.Struct:
		holder := reflect.New(v.Type())
		holder.Elem().Set(v)
		return holder, nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not a struct", instance)
}

func setProperty(ctx *builder.Context, holder reflect.Value, property Property) error {
	structType := holder.Type().Elem()
	sField, ok := structType.FieldByName(property.Name)
	if !ok {
		return &builder.InvalidAttributeError{Type: structType, Member: property.Name, Reason: "field not found"}
	}

	param := property.Value
	if param == nil {
		param = parameter.Create(sField.Type, "")
	}
	values, err := parameter.Resolve(ctx, structType.Name()+"."+property.Name, []parameter.Parameter{param}, []reflect.Type{sField.Type})
	if err != nil {
		return err
	}

	field, err := holder.Elem().FieldByIndexErr(sField.Index)
	if err != nil {
		return &builder.InvalidAttributeError{Type: structType, Member: property.Name, Reason: err.Error()}
	}
	if field.CanSet() {
		field.Set(values[0])
		return nil
	}
	if len(sField.Index) > 1 {
		return &builder.InvalidAttributeError{Type: structType, Member: property.Name, Reason: "promoted unexported field cannot be set"}
	}

	xField := xunsafe.NewField(sField)
	ptr := xField.Pointer(xunsafe.AsPointer(holder.Interface()))
	reflect.NewAt(sField.Type, ptr).Elem().Set(values[0])
	return nil
}
