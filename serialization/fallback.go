package serialization

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborFallback is the last-resort codec used when no other tier applies. It
// writes the concrete type key followed by a length-prefixed CBOR rendering
// of the value; deep copy is a marshal/unmarshal round trip. It accepts
// structs whose fields are all exported, and pointers and maps and slices
// built from them, which is what a reflection-based deep serializer can
// faithfully reconstruct.
type cborFallback struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORFallback() (*cborFallback, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return &cborFallback{enc: enc, dec: dec}, nil
}

func (f *cborFallback) SupportsType(t reflect.Type) bool {
	return cborRepresentable(t, make(map[reflect.Type]bool))
}

func cborRepresentable(t reflect.Type, visiting map[reflect.Type]bool) bool {
	if visiting[t] {
		return true
	}
	visiting[t] = true
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	case reflect.Pointer, reflect.Slice:
		return cborRepresentable(t.Elem(), visiting)
	case reflect.Array:
		return cborRepresentable(t.Elem(), visiting)
	case reflect.Map:
		return cborRepresentable(t.Key(), visiting) && cborRepresentable(t.Elem(), visiting)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				return false
			}
			if !cborRepresentable(field.Type, visiting) {
				return false
			}
		}
		return true
	}
	return false
}

func (f *cborFallback) Serialize(obj any, ctx *SerializeContext, expected reflect.Type) error {
	t := reflect.TypeOf(obj)
	// Make the key resolvable for the decoding side of this engine.
	ctx.Registry().recordKey(t)
	payload, err := f.enc.Marshal(obj)
	if err != nil {
		return err
	}
	w := ctx.Writer
	w.WriteString(ctx.Registry().KeyOf(t))
	w.WriteUint32(uint32(len(payload)))
	w.WriteRaw(payload)
	return nil
}

func (f *cborFallback) Deserialize(expected reflect.Type, ctx *DeserializeContext) (any, error) {
	key, err := ctx.Reader.ReadString()
	if err != nil {
		return nil, err
	}
	t, err := ctx.manager.resolver.Resolve(key)
	if err != nil {
		return nil, err
	}
	n, err := ctx.Reader.ReadUint32()
	if err != nil {
		return nil, err
	}
	payload, err := ctx.Reader.ReadRaw(int(n))
	if err != nil {
		return nil, err
	}
	if t.Kind() == reflect.Pointer {
		v := reflect.New(t.Elem())
		if err := f.dec.Unmarshal(payload, v.Interface()); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	v := reflect.New(t)
	if err := f.dec.Unmarshal(payload, v.Interface()); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

func (f *cborFallback) Copy(obj any, ctx *CopyContext) (any, error) {
	t := reflect.TypeOf(obj)
	payload, err := f.enc.Marshal(obj)
	if err != nil {
		return nil, err
	}
	if t.Kind() == reflect.Pointer {
		v := reflect.New(t.Elem())
		if err := f.dec.Unmarshal(payload, v.Interface()); err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	v := reflect.New(t)
	if err := f.dec.Unmarshal(payload, v.Interface()); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

var _ TypeCodec = (*cborFallback)(nil)
