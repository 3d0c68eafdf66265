package serialization

import (
	"fmt"
	"reflect"
)

// RegisterStruct builds and registers a field-wise codec triple for the
// struct type t and its pointer form. Fields serialize in declaration order
// with the field type as the expected type, so homogeneous fields collapse
// their headers. The pointer deserializer records itself before reading
// fields, which is what lets self-referential graphs decode.
func (m *Manager) RegisterStruct(t reflect.Type, override bool) error {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: RegisterStruct needs a struct type, got %s", ErrRegistrationInconsistency, t)
	}
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return fmt.Errorf("%w: %s field %s is unexported", ErrRegistrationInconsistency, t, t.Field(i).Name)
		}
	}
	ptr := reflect.PointerTo(t)

	serializeFields := func(v reflect.Value, ctx *SerializeContext) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := ctx.Serialize(v.Field(i).Interface(), f.Type); err != nil {
				return err
			}
		}
		return nil
	}
	deserializeFields := func(v reflect.Value, ctx *DeserializeContext) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			obj, err := ctx.Deserialize(f.Type)
			if err != nil {
				return err
			}
			if err := assign(v.Field(i), obj); err != nil {
				return err
			}
		}
		return nil
	}
	copyFields := func(src, dst reflect.Value, ctx *CopyContext) error {
		for i := 0; i < t.NumField(); i++ {
			copied, err := ctx.Copy(src.Field(i).Interface())
			if err != nil {
				return err
			}
			if err := assign(dst.Field(i), copied); err != nil {
				return err
			}
		}
		return nil
	}

	valueSer := func(obj any, ctx *SerializeContext, expected reflect.Type) error {
		return serializeFields(reflect.ValueOf(obj), ctx)
	}
	valueDes := func(expected reflect.Type, ctx *DeserializeContext) (any, error) {
		v := reflect.New(t).Elem()
		if err := deserializeFields(v, ctx); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	valueCopy := func(obj any, ctx *CopyContext) (any, error) {
		dst := reflect.New(t).Elem()
		if err := copyFields(reflect.ValueOf(obj), dst, ctx); err != nil {
			return nil, err
		}
		return dst.Interface(), nil
	}

	ptrSer := func(obj any, ctx *SerializeContext, expected reflect.Type) error {
		return serializeFields(reflect.ValueOf(obj).Elem(), ctx)
	}
	ptrDes := func(expected reflect.Type, ctx *DeserializeContext) (any, error) {
		v := reflect.New(t)
		ctx.RecordObject(v.Interface())
		if err := deserializeFields(v.Elem(), ctx); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	ptrCopy := func(obj any, ctx *CopyContext) (any, error) {
		dst := reflect.New(t)
		ctx.RecordCopy(obj, dst.Interface())
		if err := copyFields(reflect.ValueOf(obj).Elem(), dst.Elem(), ctx); err != nil {
			return nil, err
		}
		return dst.Interface(), nil
	}

	if err := m.registry.Register(t, valueCopy, valueSer, valueDes, override); err != nil {
		return err
	}
	return m.registry.Register(ptr, ptrCopy, ptrSer, ptrDes, override)
}
