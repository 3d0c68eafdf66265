package serialization

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Manager is the serialization engine: the registry, the resolver, the
// fallback serializer, and the top-level serialize / deserialize / deep-copy
// entry points. It is constructed once by the host runtime and shared across
// threads; per-operation state lives in the contexts it creates.
type Manager struct {
	registry *Registry
	resolver *Resolver
	fallback TypeCodec
	stats    Statistics
	logger   *zap.Logger

	largeObjectThreshold int
	bufferSize           int
}

// Registry exposes the engine's type registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Serialize encodes obj into a fresh byte buffer.
func (m *Manager) Serialize(obj any) ([]byte, error) {
	ctx := m.newSerializeContext()
	start := time.Now()
	err := m.serializeInner(ctx, obj, nil)
	m.stats.RecordSerialization(time.Since(start))
	if err != nil {
		return nil, err
	}
	return ctx.Writer.Bytes(), nil
}

// Deserialize decodes one value from data. expected is the statically known
// type, or nil when the stream is dynamically typed.
func (m *Manager) Deserialize(expected reflect.Type, data []byte) (any, error) {
	ctx := m.newDeserializeContext(data)
	start := time.Now()
	obj, err := m.deserializeInner(ctx, expected)
	m.stats.RecordDeserialization(time.Since(start))
	if err != nil {
		return nil, err
	}
	if expected != nil && obj != nil && !reflect.TypeOf(obj).AssignableTo(expected) {
		return nil, fmt.Errorf("%w: decoded %T where %s was expected", ErrStreamFormat, obj, expected)
	}
	return obj, nil
}

// DeserializeAs decodes one value of type T.
func DeserializeAs[T any](m *Manager, data []byte) (T, error) {
	var zero T
	obj, err := m.Deserialize(typeof[T](), data)
	if err != nil {
		return zero, err
	}
	if obj == nil {
		return zero, nil
	}
	return obj.(T), nil
}

// RoundTrip serializes v and decodes it back, exercising the full wire path.
func RoundTrip[T any](m *Manager, v T) (T, error) {
	var zero T
	data, err := m.Serialize(v)
	if err != nil {
		return zero, err
	}
	return DeserializeAs[T](m, data)
}

// DeepCopy copies obj without going through the wire format. Shared
// subgraphs remain shared and cycles terminate.
func (m *Manager) DeepCopy(obj any) (any, error) {
	ctx := m.newCopyContext()
	start := time.Now()
	copied, err := m.copyInner(ctx, obj)
	m.stats.RecordCopy(time.Since(start))
	return copied, err
}

// DeepCopyArrayInPlace replaces each element of a slice with its deep copy,
// sharing one copy table across elements so duplicates stay shared.
func (m *Manager) DeepCopyArrayInPlace(arr any) error {
	v := reflect.ValueOf(arr)
	if !v.IsValid() || v.Kind() != reflect.Slice {
		return fmt.Errorf("%w: DeepCopyArrayInPlace needs a slice, got %s", ErrNoCodecFound, typeNameOf(arr))
	}
	ctx := m.newCopyContext()
	for i := 0; i < v.Len(); i++ {
		copied, err := m.copyInner(ctx, v.Index(i).Interface())
		if err != nil {
			return err
		}
		if err := assign(v.Index(i), copied); err != nil {
			return err
		}
	}
	return nil
}

// HasSerializer reports whether any tier of the engine can encode t.
func (m *Manager) HasSerializer(t reflect.Type) bool {
	if m.registry.HasSerializer(t) {
		return true
	}
	if m.registry.ExternalFor(t) != nil || m.registry.KeyedFor(t) != nil {
		return true
	}
	return m.fallback != nil && m.fallback.SupportsType(t)
}

// ResolveTypeName maps a stable type key to its runtime type.
func (m *Manager) ResolveTypeName(key string) (reflect.Type, error) {
	return m.resolver.Resolve(key)
}

// serializeInner encodes one value, applying the codec tie-break order:
// simple fastpath, enums, the bare-object sentinel, back-references, arrays,
// external serializers, registered codecs, keyed serializers, fallback.
func (m *Manager) serializeInner(ctx *SerializeContext, obj any, expected reflect.Type) error {
	w := ctx.Writer
	if tryWriteSimple(w, obj) {
		return nil
	}
	v := reflect.ValueOf(obj)
	t := v.Type()

	if kind, ok := m.registry.enumKind(t); ok {
		m.writeTypeHeader(w, t, expected)
		writeEnumValue(w, v, kind)
		return nil
	}

	if t == objectType {
		w.WriteToken(TokenSpecifiedType)
		w.WriteToken(TokenObject)
		return nil
	}

	if referenceKind(t) {
		if off, ok := ctx.checkReference(v); ok {
			w.WriteToken(TokenReference)
			w.WriteUint32(off)
			return nil
		}
		ctx.recordObject(v)
	}

	switch t.Kind() {
	case reflect.Slice:
		return m.writeArray(ctx, v, expected)
	case reflect.Array:
		return m.writeFixedArray(ctx, v, expected)
	}

	if ext := m.registry.ExternalFor(t); ext != nil {
		m.writeTypeHeader(w, t, expected)
		return ext.Serialize(obj, ctx, expected)
	}

	if ser, ok := m.registry.SerializerOf(t); ok {
		m.writeTypeHeader(w, t, expected)
		return ser(obj, ctx, expected)
	}

	if ks := m.registry.KeyedFor(t); ks != nil {
		w.WriteToken(TokenKeyedSerializer)
		w.WriteUint8(ks.SerializerID())
		return ks.Serialize(obj, ctx, expected)
	}

	if m.fallback != nil && m.fallback.SupportsType(t) {
		w.WriteToken(TokenFallback)
		start := time.Now()
		err := m.fallback.Serialize(obj, ctx, expected)
		m.stats.RecordFallbackSerialization(time.Since(start))
		return err
	}

	// A non-transmittable error must never itself become a non-transmittable
	// error: substitute a synthetic record carrying the original message,
	// type name, and stack text, and send that through the fallback.
	if original, ok := obj.(error); ok && m.fallback != nil {
		sub := substituteError(m.registry.KeyOf(t), original)
		if m.fallback.SupportsType(reflect.TypeOf(sub)) {
			w.WriteToken(TokenFallback)
			start := time.Now()
			err := m.fallback.Serialize(sub, ctx, nil)
			m.stats.RecordFallbackSerialization(time.Since(start))
			return err
		}
	}

	return fmt.Errorf("%w: %s (from %q)", ErrNoCodecFound, m.registry.KeyOf(t), t.PkgPath())
}

// deserializeInner decodes one value, driven by the next token. The current
// object offset is saved and restored around the call so nested structural
// reads do not corrupt the parent's offset.
func (m *Manager) deserializeInner(ctx *DeserializeContext, expected reflect.Type) (any, error) {
	pos := uint32(ctx.Reader.Position())
	prev := ctx.current
	ctx.current = pos
	defer func() { ctx.current = prev }()

	if obj, ok, err := tryReadSimple(ctx.Reader); err != nil {
		return nil, err
	} else if ok {
		return obj, nil
	}

	tok, err := ctx.Reader.ReadToken()
	if err != nil {
		return nil, err
	}
	switch tok {
	case TokenReference:
		off, err := ctx.Reader.ReadUint32()
		if err != nil {
			return nil, err
		}
		obj, ok := ctx.recorded(off)
		if !ok {
			return nil, fmt.Errorf("%w: reference to unknown offset %d", ErrStreamFormat, off)
		}
		return obj, nil

	case TokenFallback:
		if m.fallback == nil {
			return nil, fmt.Errorf("%w: fallback token with no fallback serializer", ErrNoCodecFound)
		}
		start := time.Now()
		obj, err := m.fallback.Deserialize(expected, ctx)
		m.stats.RecordFallbackDeserialization(time.Since(start))
		if err != nil {
			return nil, err
		}
		m.recordAt(ctx, pos, obj)
		return obj, nil

	case TokenKeyedSerializer:
		id, err := ctx.Reader.ReadUint8()
		if err != nil {
			return nil, err
		}
		ks, ok := m.registry.KeyedByID(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown keyed serializer id %d", ErrStreamFormat, id)
		}
		obj, err := ks.Deserialize(expected, ctx)
		if err != nil {
			return nil, err
		}
		m.recordAt(ctx, pos, obj)
		return obj, nil

	case TokenExpectedType:
		if expected == nil {
			return nil, fmt.Errorf("%w: ExpectedType with no expected type supplied", ErrStreamFormat)
		}
		return m.readBody(ctx, expected, pos)

	case TokenSpecifiedType:
		t, err := m.readTypeInfo(ctx.Reader)
		if err != nil {
			return nil, err
		}
		return m.readBody(ctx, t, pos)
	}
	return nil, fmt.Errorf("%w: unexpected token %s at structural position %d", ErrStreamFormat, tok, pos)
}

// readBody decodes the payload of a value whose concrete type is known.
func (m *Manager) readBody(ctx *DeserializeContext, t reflect.Type, pos uint32) (any, error) {
	if t == objectType {
		return struct{}{}, nil
	}
	if kind, ok := m.registry.enumKind(t); ok {
		return readEnumValue(ctx.Reader, t, kind)
	}
	switch t.Kind() {
	case reflect.Slice:
		return m.readArrayBody(ctx, t, pos)
	case reflect.Array:
		return m.readFixedArrayBody(ctx, t)
	}
	if ext := m.registry.ExternalFor(t); ext != nil {
		obj, err := ext.Deserialize(t, ctx)
		if err != nil {
			return nil, err
		}
		m.recordAt(ctx, pos, obj)
		return obj, nil
	}
	if des, ok := m.registry.DeserializerOf(t); ok {
		obj, err := des(t, ctx)
		if err != nil {
			return nil, err
		}
		m.recordAt(ctx, pos, obj)
		return obj, nil
	}
	return nil, fmt.Errorf("%w: no deserializer for %s", ErrNoCodecFound, m.registry.KeyOf(t))
}

// recordAt stores obj at pos unless the codec already recorded itself there
// (aggregate codecs record before reading their members).
func (m *Manager) recordAt(ctx *DeserializeContext, pos uint32, obj any) {
	if _, ok := ctx.recorded(pos); !ok {
		ctx.objects[pos] = obj
	}
}

// copyInner deep-copies one value: shallow-copyable types are returned
// unchanged, then the copy table terminates cycles, then external,
// registered, array, keyed, and fallback copiers are tried in order.
func (m *Manager) copyInner(ctx *CopyContext, obj any) (any, error) {
	if obj == nil {
		return nil, nil
	}
	v := reflect.ValueOf(obj)
	t := v.Type()
	if m.registry.shallowCopyable(t) {
		return obj, nil
	}
	if referenceKind(t) {
		if v.IsNil() {
			return obj, nil
		}
		if copied, ok := ctx.existingCopy(v); ok {
			return copied, nil
		}
	}

	if ext := m.registry.ExternalFor(t); ext != nil {
		copied, err := ext.Copy(obj, ctx)
		return m.finishCopy(ctx, v, copied, err)
	}
	if copier, ok := m.registry.CopierOf(t); ok {
		copied, err := copier(obj, ctx)
		return m.finishCopy(ctx, v, copied, err)
	}
	switch t.Kind() {
	case reflect.Slice:
		return m.copyArray(ctx, v)
	case reflect.Array:
		return m.copyFixedArray(ctx, v)
	}
	if ks := m.registry.KeyedFor(t); ks != nil {
		copied, err := ks.Copy(obj, ctx)
		return m.finishCopy(ctx, v, copied, err)
	}
	if m.fallback != nil && m.fallback.SupportsType(t) {
		start := time.Now()
		copied, err := m.fallback.Copy(obj, ctx)
		m.stats.RecordFallbackCopy(time.Since(start))
		return m.finishCopy(ctx, v, copied, err)
	}
	return nil, fmt.Errorf("%w: no copier for %s", ErrNoCodecFound, m.registry.KeyOf(t))
}

func (m *Manager) finishCopy(ctx *CopyContext, original reflect.Value, copied any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if referenceKind(original.Type()) {
		if _, ok := ctx.existingCopy(original); !ok {
			ctx.RecordCopy(original.Interface(), copied)
		}
	}
	return copied, nil
}

// writeFixedArray encodes a fixed-length array. Length is part of the type,
// so the body is just the elements in order; fixed arrays are values and are
// never deduplicated.
func (m *Manager) writeFixedArray(ctx *SerializeContext, v reflect.Value, expected reflect.Type) error {
	t := v.Type()
	m.writeTypeHeader(ctx.Writer, t, expected)
	elem := t.Elem()
	for i := 0; i < t.Len(); i++ {
		if err := m.serializeInner(ctx, v.Index(i).Interface(), elem); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) readFixedArrayBody(ctx *DeserializeContext, t reflect.Type) (any, error) {
	v := reflect.New(t).Elem()
	elem := t.Elem()
	for i := 0; i < t.Len(); i++ {
		obj, err := m.deserializeInner(ctx, elem)
		if err != nil {
			return nil, err
		}
		if err := assign(v.Index(i), obj); err != nil {
			return nil, err
		}
	}
	return v.Interface(), nil
}

func (m *Manager) copyFixedArray(ctx *CopyContext, v reflect.Value) (any, error) {
	t := v.Type()
	clone := reflect.New(t).Elem()
	for i := 0; i < t.Len(); i++ {
		copied, err := ctx.Copy(v.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if err := assign(clone.Index(i), copied); err != nil {
			return nil, err
		}
	}
	return clone.Interface(), nil
}

func writeEnumValue(w *Writer, v reflect.Value, kind reflect.Kind) {
	switch kind {
	case reflect.Int8:
		w.WriteInt8(int8(v.Int()))
	case reflect.Int16:
		w.WriteInt16(int16(v.Int()))
	case reflect.Int32:
		w.WriteInt32(int32(v.Int()))
	case reflect.Int, reflect.Int64:
		w.WriteInt64(v.Int())
	case reflect.Uint8:
		w.WriteUint8(uint8(v.Uint()))
	case reflect.Uint16:
		w.WriteUint16(uint16(v.Uint()))
	case reflect.Uint32:
		w.WriteUint32(uint32(v.Uint()))
	case reflect.Uint, reflect.Uint64:
		w.WriteUint64(v.Uint())
	}
}

func readEnumValue(r *Reader, t reflect.Type, kind reflect.Kind) (any, error) {
	v := reflect.New(t).Elem()
	switch kind {
	case reflect.Int8:
		x, err := r.ReadInt8()
		if err != nil {
			return nil, err
		}
		v.SetInt(int64(x))
	case reflect.Int16:
		x, err := r.ReadInt16()
		if err != nil {
			return nil, err
		}
		v.SetInt(int64(x))
	case reflect.Int32:
		x, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		v.SetInt(int64(x))
	case reflect.Int, reflect.Int64:
		x, err := r.ReadInt64()
		if err != nil {
			return nil, err
		}
		v.SetInt(x)
	case reflect.Uint8:
		x, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		v.SetUint(uint64(x))
	case reflect.Uint16:
		x, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		v.SetUint(uint64(x))
	case reflect.Uint32:
		x, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		v.SetUint(uint64(x))
	case reflect.Uint, reflect.Uint64:
		x, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		v.SetUint(x)
	}
	return v.Interface(), nil
}
