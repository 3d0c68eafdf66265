package serialization

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// codecEntry is the registry value for one runtime type: the codec triple
// and the stable type key. Marker entries carry a key and no codecs.
type codecEntry struct {
	typ          reflect.Type
	key          string
	copier       CopierFunc
	serializer   SerializerFunc
	deserializer DeserializerFunc
}

// GenericDefinition describes an open generic registered under the
// alternative key "base<arity>". Instantiate closes the definition over
// concrete argument types; Codec materializes the codec triple for one
// closed instantiation. Codec may be nil for resolver-only definitions.
type GenericDefinition struct {
	Arity       int
	Instantiate func(args []reflect.Type) (reflect.Type, error)
	Codec       func(concrete reflect.Type) (CopierFunc, SerializerFunc, DeserializerFunc, error)
}

// Registry is the bidirectional mapping between runtime types, stable string
// keys, and codec triples. The codec tables are read on every operation and
// written at startup and on lazy generic specialization, so reads take the
// read lock and the memoization tables are sync.Maps.
type Registry struct {
	mu         sync.RWMutex
	byType     map[reflect.Type]*codecEntry
	byKey      map[string]reflect.Type
	generics   map[string]*GenericDefinition
	enums      map[reflect.Type]reflect.Kind
	immutables map[reflect.Type]struct{}
	knownTypes map[string]string

	// interfaces holds the registered interface entries in registration
	// order. Lookups for a type with no exact entry scan it with
	// Implements, so a codec registered against an interface covers every
	// implementing type.
	interfaces []*codecEntry

	external  []TypeCodec
	keyed     []KeyedCodec
	keyedByID map[byte]KeyedCodec

	// Memoized first-match results, including negative ones. The sentinel
	// distinguishes "computed: none" from "not yet computed".
	externalMemo sync.Map
	keyedMemo    sync.Map

	specializing singleflight.Group

	logger *zap.Logger
}

// noCodecSentinel is the explicit negative memoization value.
type noCodecSentinel struct{}

func newRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byType:     make(map[reflect.Type]*codecEntry),
		byKey:      make(map[string]reflect.Type),
		generics:   make(map[string]*GenericDefinition),
		enums:      make(map[reflect.Type]reflect.Kind),
		immutables: make(map[reflect.Type]struct{}),
		knownTypes: make(map[string]string),
		keyedByID:  make(map[byte]KeyedCodec),
		logger:     logger,
	}
}

// Register stores the codec triple for t. Serializer and deserializer must
// be both present or both absent; a copier may stand alone. The key of the
// pointer or value counterpart of t is recorded as a marker so values
// statically typed either way can be located at decode time. Registering an
// interface type makes its codecs cover every implementing type: Go
// reflection cannot enumerate a type's interfaces at registration time, so
// the lookup paths scan the registered interface entries with Implements
// instead.
func (r *Registry) Register(t reflect.Type, copier CopierFunc, serializer SerializerFunc, deserializer DeserializerFunc, override bool) error {
	if (serializer == nil) != (deserializer == nil) {
		return fmt.Errorf("%w: %s has a serializer or deserializer without its pair", ErrRegistrationInconsistency, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[t]; ok && existing.serializer != nil && !override {
		r.logger.Debug("keeping existing registration", zap.String("type", t.String()))
		return nil
	}
	entry := &codecEntry{
		typ:          t,
		key:          r.keyOfLocked(t),
		copier:       copier,
		serializer:   serializer,
		deserializer: deserializer,
	}
	r.byType[t] = entry
	r.byKey[entry.key] = t
	r.noteInterfaceLocked(entry)
	r.recordCounterpartLocked(t)
	return nil
}

// noteInterfaceLocked tracks interface entries for the Implements scan,
// replacing a previous entry for the same interface.
func (r *Registry) noteInterfaceLocked(e *codecEntry) {
	if e.typ.Kind() != reflect.Interface {
		return
	}
	for i, existing := range r.interfaces {
		if existing.typ == e.typ {
			r.interfaces[i] = e
			return
		}
	}
	r.interfaces = append(r.interfaces, e)
}

// RegisterMarker records a key-only entry for t, typically an interface or
// abstract base, so its type key is resolvable. An empty key uses the
// computed canonical key.
func (r *Registry) RegisterMarker(t reflect.Type, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == "" {
		key = r.keyOfLocked(t)
	}
	if _, ok := r.byType[t]; !ok {
		e := &codecEntry{typ: t, key: key}
		r.byType[t] = e
		r.noteInterfaceLocked(e)
	}
	r.byKey[key] = t
	return nil
}

// RegisterEnum records t as an enum: a named type encoded as a type header
// followed by its underlying integer. Non-integer underlying kinds are
// rejected rather than silently widened.
func (r *Registry) RegisterEnum(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return fmt.Errorf("%w: enum %s has non-integer underlying kind %s", ErrRegistrationInconsistency, t, t.Kind())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enums[t] = t.Kind()
	key := r.keyOfLocked(t)
	if _, ok := r.byType[t]; !ok {
		r.byType[t] = &codecEntry{typ: t, key: key}
	}
	r.byKey[key] = t
	return nil
}

// RegisterGeneric stores an open generic definition under "base<arity>".
func (r *Registry) RegisterGeneric(base string, def *GenericDefinition) error {
	if def == nil || def.Instantiate == nil {
		return fmt.Errorf("%w: generic definition %s has no instantiation", ErrRegistrationInconsistency, base)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generics[fmt.Sprintf("%s<%d>", base, def.Arity)] = def
	return nil
}

// RegisterConcreteOfGeneric materializes and caches the codec triple for a
// concrete instantiation whose definition is registered under baseKey.
func (r *Registry) RegisterConcreteOfGeneric(concrete reflect.Type, baseKey string) error {
	r.mu.RLock()
	def := r.generics[baseKey]
	r.mu.RUnlock()
	if def == nil || def.Codec == nil {
		return fmt.Errorf("%w: no generic definition %s", ErrNoCodecFound, baseKey)
	}
	_, err := r.specialize(concrete, def)
	return err
}

// RegisterImmutable declares values of t safe to share during deep copy.
func (r *Registry) RegisterImmutable(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.immutables[t] = struct{}{}
}

func (r *Registry) isImmutable(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.immutables[t]
	return ok
}

// AddKnownType maps a type key to the fully qualified name the external type
// loader understands.
func (r *Registry) AddKnownType(key, fullyQualifiedName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownTypes[key] = fullyQualifiedName
}

func (r *Registry) knownTypeName(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.knownTypes[key]
	return name, ok
}

// recordCounterpartLocked registers a marker for the pointer or value form
// of t so both spellings of a registered type are resolvable at decode
// time.
func (r *Registry) recordCounterpartLocked(t reflect.Type) {
	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		key := r.keyOfLocked(elem)
		if _, ok := r.byType[elem]; !ok {
			r.byType[elem] = &codecEntry{typ: elem, key: key}
		}
		r.byKey[key] = elem
	case reflect.Struct:
		ptr := reflect.PointerTo(t)
		key := r.keyOfLocked(ptr)
		if _, ok := r.byType[ptr]; !ok {
			r.byType[ptr] = &codecEntry{typ: ptr, key: key}
		}
		r.byKey[key] = ptr
	}
}

// TypeOf resolves a key the registry has already seen.
func (r *Registry) TypeOf(key string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKey[key]
	return t, ok
}

func (r *Registry) genericDef(key string) (*GenericDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.generics[key]
	return def, ok
}

func (r *Registry) enumKind(t reflect.Type) (reflect.Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.enums[t]
	return k, ok
}

// KeyOf computes the stable type key for t.
func (r *Registry) KeyOf(t reflect.Type) string {
	r.mu.RLock()
	if e, ok := r.byType[t]; ok && e.key != "" {
		r.mu.RUnlock()
		return e.key
	}
	r.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keyOfLocked(t)
}

var wellKnownKeys = map[reflect.Type]string{
	boolType:     "bool",
	uint8Type:    "uint8",
	int8Type:     "int8",
	int16Type:    "int16",
	uint16Type:   "uint16",
	int32Type:    "int32",
	uint32Type:   "uint32",
	int64Type:    "int64",
	uint64Type:   "uint64",
	intType:      "int",
	uintType:     "uint",
	float32Type:  "float32",
	float64Type:  "float64",
	stringType:   "string",
	charType:     "char",
	guidType:     "guid",
	decimalType:  "decimal",
	timeType:     "date",
	durationType: "timespan",
	objectType:   "object",
	anyType:      "any",
}

func (r *Registry) keyOfLocked(t reflect.Type) string {
	if e, ok := r.byType[t]; ok && e.key != "" {
		return e.key
	}
	if key, ok := wellKnownKeys[t]; ok {
		return key
	}
	if t.Name() != "" {
		// Named types keep their name even when their underlying shape is
		// structural. Go renders generic instantiations with square
		// brackets, which collide with the array suffix of the key grammar;
		// rewrite them to the generic form.
		name := t.String()
		name = strings.ReplaceAll(name, "[", "<")
		name = strings.ReplaceAll(name, "]", ">")
		return name
	}
	switch t.Kind() {
	case reflect.Slice:
		rank := 1
		elem := t.Elem()
		for elem.Kind() == reflect.Slice {
			rank++
			elem = elem.Elem()
		}
		return r.keyOfLocked(elem) + "[" + strings.Repeat(",", rank-1) + "]"
	case reflect.Array:
		return fmt.Sprintf("%s[%d]", r.keyOfLocked(t.Elem()), t.Len())
	case reflect.Map:
		return "map<" + r.keyOfLocked(t.Key()) + "," + r.keyOfLocked(t.Elem()) + ">"
	case reflect.Pointer:
		return r.keyOfLocked(t.Elem()) + "*"
	}
	return t.String()
}

// CopierOf returns the exact-match copier, retrying generic instances
// against their definition.
func (r *Registry) CopierOf(t reflect.Type) (CopierFunc, bool) {
	if e, ok := r.lookup(t); ok && e.copier != nil {
		return e.copier, true
	}
	return nil, false
}

// SerializerOf returns the exact-match serializer, retrying generic
// instances against their definition.
func (r *Registry) SerializerOf(t reflect.Type) (SerializerFunc, bool) {
	if e, ok := r.lookup(t); ok && e.serializer != nil {
		return e.serializer, true
	}
	return nil, false
}

// DeserializerOf returns the exact-match deserializer, retrying generic
// instances against their definition.
func (r *Registry) DeserializerOf(t reflect.Type) (DeserializerFunc, bool) {
	if e, ok := r.lookup(t); ok && e.deserializer != nil {
		return e.deserializer, true
	}
	return nil, false
}

func (r *Registry) lookup(t reflect.Type) (*codecEntry, bool) {
	r.mu.RLock()
	e, ok := r.byType[t]
	r.mu.RUnlock()
	if ok && (e.serializer != nil || e.copier != nil) {
		return e, true
	}
	if e, ok := r.interfaceEntryFor(t); ok {
		return e, true
	}
	def, ok := r.definitionFor(t)
	if !ok || def.Codec == nil {
		return nil, false
	}
	e, err := r.specialize(t, def)
	if err != nil {
		r.logger.Warn("generic specialization failed",
			zap.String("type", t.String()), zap.Error(err))
		return nil, false
	}
	return e, true
}

// interfaceEntryFor scans the registered interface entries for one that t
// implements, first match wins. Key-only markers carry no codecs and are
// skipped; they exist to make interface keys resolvable, not to encode.
func (r *Registry) interfaceEntryFor(t reflect.Type) (*codecEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.interfaces {
		if e.serializer == nil && e.copier == nil {
			continue
		}
		if t != e.typ && t.Implements(e.typ) {
			return e, true
		}
	}
	return nil, false
}

// definitionFor maps a generic instance type to its open definition. Maps
// are the structural generic Go exposes through reflection.
func (r *Registry) definitionFor(t reflect.Type) (*GenericDefinition, bool) {
	if t.Kind() == reflect.Map {
		return r.genericDef("map<2>")
	}
	return nil, false
}

// specialize materializes the concrete codec for one instantiation. The
// singleflight group collapses duplicate specializations racing on the same
// type; the winner inserts under the write lock.
func (r *Registry) specialize(t reflect.Type, def *GenericDefinition) (*codecEntry, error) {
	key := r.KeyOf(t)
	v, err, _ := r.specializing.Do(key, func() (any, error) {
		r.mu.RLock()
		if e, ok := r.byType[t]; ok && e.serializer != nil {
			r.mu.RUnlock()
			return e, nil
		}
		r.mu.RUnlock()
		copier, ser, des, err := def.Codec(t)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.byType[t]; ok && e.serializer != nil {
			return e, nil
		}
		e := &codecEntry{typ: t, key: key, copier: copier, serializer: ser, deserializer: des}
		r.byType[t] = e
		r.byKey[key] = t
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*codecEntry), nil
}

// HasSerializer reports whether t can be encoded by the registry alone:
// primitives always, enums, registered codecs, and generic instances whose
// definition and all type arguments recursively pass.
func (r *Registry) HasSerializer(t reflect.Type) bool {
	if t == boolType {
		return true
	}
	if _, ok := typeToToken[t]; ok {
		return true
	}
	if _, ok := r.enumKind(t); ok {
		return true
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return r.HasSerializer(t.Elem())
	case reflect.Map:
		if _, ok := r.genericDef("map<2>"); !ok {
			return false
		}
		return r.HasSerializer(t.Key()) && r.HasSerializer(t.Elem())
	}
	r.mu.RLock()
	e, ok := r.byType[t]
	r.mu.RUnlock()
	if ok && e.serializer != nil {
		return true
	}
	if e, ok := r.interfaceEntryFor(t); ok {
		return e.serializer != nil
	}
	return false
}

// recordKey makes t's key resolvable after an external-serializer or
// fallback hit forces its registration. The read-lock fast path keeps
// repeated hits off the write lock.
func (r *Registry) recordKey(t reflect.Type) {
	r.mu.RLock()
	_, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.keyOfLocked(t)
	if _, ok := r.byType[t]; !ok {
		r.byType[t] = &codecEntry{typ: t, key: key}
	}
	r.byKey[key] = t
}

// ExternalFor returns the first external serializer supporting t, memoized
// per type including the negative result. An insert race is first writer
// wins; both readers observe the same entry.
func (r *Registry) ExternalFor(t reflect.Type) TypeCodec {
	if v, ok := r.externalMemo.Load(t); ok {
		if _, none := v.(noCodecSentinel); none {
			return nil
		}
		return v.(TypeCodec)
	}
	for _, c := range r.external {
		if c.SupportsType(t) {
			v, _ := r.externalMemo.LoadOrStore(t, c)
			if _, none := v.(noCodecSentinel); none {
				return nil
			}
			r.recordKey(t)
			return v.(TypeCodec)
		}
	}
	r.externalMemo.LoadOrStore(t, noCodecSentinel{})
	return nil
}

// KeyedFor returns the first keyed serializer supporting t, memoized per
// type including the negative result.
func (r *Registry) KeyedFor(t reflect.Type) KeyedCodec {
	if v, ok := r.keyedMemo.Load(t); ok {
		if _, none := v.(noCodecSentinel); none {
			return nil
		}
		return v.(KeyedCodec)
	}
	for _, c := range r.keyed {
		if c.SupportsType(t) {
			v, _ := r.keyedMemo.LoadOrStore(t, c)
			if _, none := v.(noCodecSentinel); none {
				return nil
			}
			return v.(KeyedCodec)
		}
	}
	r.keyedMemo.LoadOrStore(t, noCodecSentinel{})
	return nil
}

// KeyedByID resolves the 1-byte wire id of a keyed serializer.
func (r *Registry) KeyedByID(id byte) (KeyedCodec, bool) {
	c, ok := r.keyedByID[id]
	return c, ok
}

func (r *Registry) addExternal(c TypeCodec) {
	r.external = append(r.external, c)
}

func (r *Registry) addKeyed(c KeyedCodec) error {
	id := c.SerializerID()
	if _, dup := r.keyedByID[id]; dup {
		return fmt.Errorf("%w: duplicate keyed serializer id %d", ErrRegistrationInconsistency, id)
	}
	r.keyed = append(r.keyed, c)
	r.keyedByID[id] = c
	return nil
}
