package serialization

import (
	"fmt"
	"reflect"
)

// registerBuiltins seeds the registry with the well-known keys and the
// built-in generic container definitions.
func (m *Manager) registerBuiltins() error {
	r := m.registry
	r.mu.Lock()
	for t, key := range wellKnownKeys {
		r.byKey[key] = t
	}
	r.mu.Unlock()

	if err := r.RegisterGeneric("list", &GenericDefinition{
		Arity: 1,
		Instantiate: func(args []reflect.Type) (reflect.Type, error) {
			return reflect.SliceOf(args[0]), nil
		},
	}); err != nil {
		return err
	}

	return r.RegisterGeneric("map", &GenericDefinition{
		Arity: 2,
		Instantiate: func(args []reflect.Type) (reflect.Type, error) {
			if !args[0].Comparable() {
				return nil, fmt.Errorf("map key type %s is not comparable", args[0])
			}
			return reflect.MapOf(args[0], args[1]), nil
		},
		Codec: m.mapCodec,
	})
}

// mapCodec materializes the codec triple for one concrete map type. The
// deserializer and copier record themselves before filling entries so maps
// that indirectly contain themselves still resolve.
func (m *Manager) mapCodec(t reflect.Type) (CopierFunc, SerializerFunc, DeserializerFunc, error) {
	if t.Kind() != reflect.Map {
		return nil, nil, nil, fmt.Errorf("%w: map codec asked for %s", ErrNoCodecFound, t)
	}
	keyType, elemType := t.Key(), t.Elem()

	ser := func(obj any, ctx *SerializeContext, expected reflect.Type) error {
		v := reflect.ValueOf(obj)
		ctx.Writer.WriteUint32(uint32(v.Len()))
		iter := v.MapRange()
		for iter.Next() {
			if err := ctx.Serialize(iter.Key().Interface(), keyType); err != nil {
				return err
			}
			if err := ctx.Serialize(iter.Value().Interface(), elemType); err != nil {
				return err
			}
		}
		return nil
	}

	des := func(expected reflect.Type, ctx *DeserializeContext) (any, error) {
		n, err := ctx.Reader.ReadUint32()
		if err != nil {
			return nil, err
		}
		v := reflect.MakeMapWithSize(t, int(n))
		ctx.RecordObject(v.Interface())
		for i := 0; i < int(n); i++ {
			kobj, err := ctx.Deserialize(keyType)
			if err != nil {
				return nil, err
			}
			eobj, err := ctx.Deserialize(elemType)
			if err != nil {
				return nil, err
			}
			kv, err := valueFor(kobj, keyType)
			if err != nil {
				return nil, err
			}
			ev, err := valueFor(eobj, elemType)
			if err != nil {
				return nil, err
			}
			v.SetMapIndex(kv, ev)
		}
		return v.Interface(), nil
	}

	copier := func(obj any, ctx *CopyContext) (any, error) {
		v := reflect.ValueOf(obj)
		clone := reflect.MakeMapWithSize(t, v.Len())
		ctx.RecordCopy(obj, clone.Interface())
		iter := v.MapRange()
		for iter.Next() {
			kc, err := ctx.Copy(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			ec, err := ctx.Copy(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			kv, err := valueFor(kc, keyType)
			if err != nil {
				return nil, err
			}
			ev, err := valueFor(ec, elemType)
			if err != nil {
				return nil, err
			}
			clone.SetMapIndex(kv, ev)
		}
		return clone.Interface(), nil
	}

	return copier, ser, des, nil
}

// valueFor adapts a decoded any to a reflect.Value of type t, mapping nil to
// the zero value of nilable kinds.
func valueFor(obj any, t reflect.Type) (reflect.Value, error) {
	if obj == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: null for non-nilable %s", ErrStreamFormat, t)
	}
	v := reflect.ValueOf(obj)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: cannot assign %s to %s", ErrStreamFormat, v.Type(), t)
	}
	return v, nil
}
