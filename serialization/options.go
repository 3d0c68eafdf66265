package serialization

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Registration feeds one codec triple into the registry at construction.
type Registration struct {
	Type         reflect.Type
	Copier       CopierFunc
	Serializer   SerializerFunc
	Deserializer DeserializerFunc
	Override     bool
}

// SerializerBinding attaches a serializer object to a target type. The
// object's capabilities are discovered by asserting it against the known
// capability set; satisfying none of them is a registration inconsistency.
type SerializerBinding struct {
	Target     reflect.Type
	Serializer any
	Override   bool
}

// KnownType maps a type key to the fully qualified name the type loader
// understands.
type KnownType struct {
	Key                string
	FullyQualifiedName string
}

// DefaultLargeObjectThreshold is the allocation size above which the engine
// emits a large-object warning.
const DefaultLargeObjectThreshold = 1 << 20

// Options is the registry feed and environment handed to NewManager.
type Options struct {
	Registrations      []Registration
	SerializerBindings []SerializerBinding
	KnownTypes         []KnownType
	External           []TypeCodec
	Keyed              []KeyedCodec

	// Fallback replaces the default reflection-based fallback serializer.
	Fallback TypeCodec

	TypeLoader TypeLoader
	Statistics Statistics
	Logger     *zap.Logger

	// LargeObjectThreshold in bytes; zero means DefaultLargeObjectThreshold,
	// negative disables the warning.
	LargeObjectThreshold int

	// BufferSize is the initial capacity of serialize buffers.
	BufferSize int
}

// NewManager constructs the engine. Registration errors abort construction;
// nothing is registered lazily afterwards except generic specializations,
// external-serializer memoization, and the key-only entries the encoder
// records for named types on first use.
func NewManager(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	statistics := opts.Statistics
	if statistics == nil {
		statistics = NopStatistics{}
	}
	threshold := opts.LargeObjectThreshold
	if threshold == 0 {
		threshold = DefaultLargeObjectThreshold
	}

	m := &Manager{
		registry:             newRegistry(logger),
		stats:                statistics,
		logger:               logger,
		largeObjectThreshold: threshold,
		bufferSize:           opts.BufferSize,
	}
	m.resolver = newResolver(m.registry, opts.TypeLoader)

	if err := m.registerBuiltins(); err != nil {
		return nil, err
	}

	for _, kt := range opts.KnownTypes {
		m.registry.AddKnownType(kt.Key, kt.FullyQualifiedName)
	}
	for _, reg := range opts.Registrations {
		if err := m.registry.Register(reg.Type, reg.Copier, reg.Serializer, reg.Deserializer, reg.Override); err != nil {
			return nil, err
		}
	}
	for _, b := range opts.SerializerBindings {
		if err := m.bind(b); err != nil {
			return nil, err
		}
	}
	for _, ext := range opts.External {
		m.registry.addExternal(ext)
	}
	for _, ks := range opts.Keyed {
		if err := m.registry.addKeyed(ks); err != nil {
			return nil, err
		}
	}

	if opts.Fallback != nil {
		m.fallback = opts.Fallback
	} else {
		fb, err := newCBORFallback()
		if err != nil {
			return nil, err
		}
		m.fallback = fb
	}
	return m, nil
}

// bind discovers the capability methods on a serializer object and registers
// them for the target type.
func (m *Manager) bind(b SerializerBinding) error {
	var copier CopierFunc
	var serializer SerializerFunc
	var deserializer DeserializerFunc
	if c, ok := b.Serializer.(ValueCopier); ok {
		copier = c.Copy
	}
	if s, ok := b.Serializer.(ValueSerializer); ok {
		serializer = s.Serialize
	}
	if d, ok := b.Serializer.(ValueDeserializer); ok {
		deserializer = d.Deserialize
	}
	if copier == nil && serializer == nil && deserializer == nil {
		return fmt.Errorf("%w: no serialization methods found on %T", ErrRegistrationInconsistency, b.Serializer)
	}
	return m.registry.Register(b.Target, copier, serializer, deserializer, b.Override)
}
