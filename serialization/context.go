package serialization

import (
	"fmt"
	"reflect"
)

// SerializeContext is the per-operation state of one encode: the stream
// writer, the back-reference table mapping object identity to the stream
// offset of its first appearance, and a handle on the engine.
type SerializeContext struct {
	Writer  *Writer
	manager *Manager
	refs    map[refKey]uint32
}

func (m *Manager) newSerializeContext() *SerializeContext {
	return &SerializeContext{
		Writer:  NewWriter(m.bufferSize),
		manager: m,
		refs:    make(map[refKey]uint32),
	}
}

// Registry exposes the engine's registry to user codecs.
func (c *SerializeContext) Registry() *Registry { return c.manager.registry }

// checkReference looks up the identity of v. The first return is the stream
// offset at which the value was first written.
func (c *SerializeContext) checkReference(v reflect.Value) (uint32, bool) {
	off, ok := c.refs[identityOf(v)]
	return off, ok
}

// recordObject remembers v at the current writer position. Callers must
// invoke it before writing the object's body so self-references resolve.
func (c *SerializeContext) recordObject(v reflect.Value) {
	c.refs[identityOf(v)] = uint32(c.Writer.Position())
}

// Serialize recursively encodes a nested value. expected is the statically
// known type at this position, or nil; when it matches the runtime type the
// type header collapses to a single ExpectedType token.
func (c *SerializeContext) Serialize(obj any, expected reflect.Type) error {
	return c.manager.serializeInner(c, obj, expected)
}

// DeserializeContext is the per-operation state of one decode: the stream
// reader, the inverse back-reference table, and the offset of the object
// currently being materialized.
type DeserializeContext struct {
	Reader  *Reader
	manager *Manager
	objects map[uint32]any
	current uint32
}

func (m *Manager) newDeserializeContext(b []byte) *DeserializeContext {
	return &DeserializeContext{
		Reader:  NewReader(b),
		manager: m,
		objects: make(map[uint32]any),
	}
}

func (c *DeserializeContext) Registry() *Registry { return c.manager.registry }

// CurrentObjectOffset is the stream offset of the object being deserialized.
// It is saved and restored around every nested Deserialize call.
func (c *DeserializeContext) CurrentObjectOffset() uint32 { return c.current }

// RecordObject registers the materialized object at the current object
// offset. Deserializers for aggregate types must call it before reading
// nested values so references into the object's own body resolve.
func (c *DeserializeContext) RecordObject(obj any) {
	c.objects[c.current] = obj
}

func (c *DeserializeContext) recorded(off uint32) (any, bool) {
	obj, ok := c.objects[off]
	return obj, ok
}

// Deserialize recursively decodes a nested value of the statically expected
// type (nil when the position is dynamically typed).
func (c *DeserializeContext) Deserialize(expected reflect.Type) (any, error) {
	return c.manager.deserializeInner(c, expected)
}

// CopyContext is the per-operation state of one deep copy: the identity
// table mapping originals to their copies, so shared subgraphs stay shared
// and cycles terminate.
type CopyContext struct {
	manager *Manager
	copies  map[refKey]any
}

func (m *Manager) newCopyContext() *CopyContext {
	return &CopyContext{manager: m, copies: make(map[refKey]any)}
}

func (c *CopyContext) Registry() *Registry { return c.manager.registry }

// RecordCopy associates the copy with the original. Copiers for aggregate
// types must call it before descending into members.
func (c *CopyContext) RecordCopy(original, copied any) {
	v := reflect.ValueOf(original)
	if !v.IsValid() || !referenceKind(v.Type()) {
		return
	}
	c.copies[identityOf(v)] = copied
}

func (c *CopyContext) existingCopy(v reflect.Value) (any, bool) {
	obj, ok := c.copies[identityOf(v)]
	return obj, ok
}

// Copy recursively deep-copies a nested value.
func (c *CopyContext) Copy(obj any) (any, error) {
	return c.manager.copyInner(c, obj)
}

// Codec function shapes registered per type. Serializer and deserializer are
// paired: registering one without the other is a registration inconsistency.
type (
	CopierFunc       func(obj any, ctx *CopyContext) (any, error)
	SerializerFunc   func(obj any, ctx *SerializeContext, expected reflect.Type) error
	DeserializerFunc func(expected reflect.Type, ctx *DeserializeContext) (any, error)
)

// The capability set discovered on serializer types supplied through the
// registration feed. A type satisfying none of these is rejected.
type (
	ValueCopier interface {
		Copy(obj any, ctx *CopyContext) (any, error)
	}
	ValueSerializer interface {
		Serialize(obj any, ctx *SerializeContext, expected reflect.Type) error
	}
	ValueDeserializer interface {
		Deserialize(expected reflect.Type, ctx *DeserializeContext) (any, error)
	}
)

// TypeCodec is the shared capability set of external, keyed, and fallback
// serializers; the three tiers differ only in lookup policy and wire token.
type TypeCodec interface {
	SupportsType(t reflect.Type) bool
	Copy(obj any, ctx *CopyContext) (any, error)
	Serialize(obj any, ctx *SerializeContext, expected reflect.Type) error
	Deserialize(expected reflect.Type, ctx *DeserializeContext) (any, error)
}

// KeyedCodec is a TypeCodec selected on the wire by a 1-byte id.
type KeyedCodec interface {
	TypeCodec
	SerializerID() byte
}

func typeNameOf(obj any) string {
	if obj == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", obj)
}
