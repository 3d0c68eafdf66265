package serialization

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

type testRecord struct {
	ID   int64
	Name string
}

func TestRegisterPairValidation(t *testing.T) {
	m := newTestManager(t, Options{})
	ser := func(obj any, ctx *SerializeContext, expected reflect.Type) error { return nil }
	des := func(expected reflect.Type, ctx *DeserializeContext) (any, error) { return nil, nil }

	if err := m.registry.Register(typeof[testRecord](), nil, ser, nil, false); !errors.Is(err, ErrRegistrationInconsistency) {
		t.Errorf("serializer without deserializer: got %v", err)
	}
	if err := m.registry.Register(typeof[testRecord](), nil, nil, des, false); !errors.Is(err, ErrRegistrationInconsistency) {
		t.Errorf("deserializer without serializer: got %v", err)
	}
	if err := m.registry.Register(typeof[testRecord](), nil, ser, des, false); err != nil {
		t.Errorf("paired registration failed: %v", err)
	}
	copierOnly := func(obj any, ctx *CopyContext) (any, error) { return obj, nil }
	if err := m.registry.Register(typeof[int16](), copierOnly, nil, nil, false); err != nil {
		t.Errorf("copier-only registration failed: %v", err)
	}
}

func TestRegistrationAtConstruction(t *testing.T) {
	ser := func(obj any, ctx *SerializeContext, expected reflect.Type) error { return nil }
	_, err := NewManager(Options{
		Registrations: []Registration{{Type: typeof[testRecord](), Serializer: ser}},
	})
	if !errors.Is(err, ErrRegistrationInconsistency) {
		t.Errorf("construction should abort on bad registration, got %v", err)
	}
}

type noMethodsSerializer struct{}

func TestBindingCapabilityDiscovery(t *testing.T) {
	_, err := NewManager(Options{
		SerializerBindings: []SerializerBinding{
			{Target: typeof[testRecord](), Serializer: noMethodsSerializer{}},
		},
	})
	if !errors.Is(err, ErrRegistrationInconsistency) {
		t.Errorf("expected ErrRegistrationInconsistency for methodless serializer, got %v", err)
	}
}

type enumColor uint8

type badEnum float64

func TestRegisterEnum(t *testing.T) {
	m := newTestManager(t, Options{})
	if err := m.registry.RegisterEnum(typeof[enumColor]()); err != nil {
		t.Fatal(err)
	}
	if err := m.registry.RegisterEnum(typeof[badEnum]()); !errors.Is(err, ErrRegistrationInconsistency) {
		t.Errorf("non-integer enum should be rejected, got %v", err)
	}
}

func TestRegisterMarkerResolvesKey(t *testing.T) {
	m := newTestManager(t, Options{})
	if err := m.registry.RegisterMarker(typeof[error](), "error"); err != nil {
		t.Fatal(err)
	}
	got, err := m.ResolveTypeName("error")
	if err != nil {
		t.Fatal(err)
	}
	if got != typeof[error]() {
		t.Errorf("got %s", got)
	}
}

func TestHasSerializer(t *testing.T) {
	m := newTestManager(t, Options{})
	if err := m.RegisterStruct(typeof[testRecord](), false); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		typ  reflect.Type
		want bool
	}{
		{typeof[int32](), true},
		{typeof[string](), true},
		{typeof[bool](), true},
		{typeof[[]int32](), true},
		{typeof[[][]string](), true},
		{typeof[map[string]int32](), true},
		{typeof[map[string]map[int32]string](), true},
		{typeof[testRecord](), true},
		{typeof[*testRecord](), true},
		{typeof[chan int](), false},
		{typeof[map[string]chan int](), false},
	}
	for _, tc := range cases {
		if got := m.registry.HasSerializer(tc.typ); got != tc.want {
			t.Errorf("HasSerializer(%s) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestGenericSpecializationCaches(t *testing.T) {
	m := newTestManager(t, Options{})
	mt := typeof[map[string]int32]()

	ser, ok := m.registry.SerializerOf(mt)
	if !ok || ser == nil {
		t.Fatal("map serializer not specialized")
	}
	m.registry.mu.RLock()
	entry := m.registry.byType[mt]
	m.registry.mu.RUnlock()
	if entry == nil || entry.serializer == nil {
		t.Fatal("specialization was not cached in the concrete table")
	}

	// Concurrent lookups of a map type not yet specialized all succeed.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.registry.SerializerOf(typeof[map[int32][]string]()); !ok {
				t.Error("concurrent specialization failed")
			}
		}()
	}
	wg.Wait()
}

func TestRegisterConcreteOfGeneric(t *testing.T) {
	m := newTestManager(t, Options{})
	if err := m.registry.RegisterConcreteOfGeneric(typeof[map[GUID]string](), "map<2>"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.registry.DeserializerOf(typeof[map[GUID]string]()); !ok {
		t.Error("concrete generic not registered")
	}
}

func TestDuplicateKeyedIDRejected(t *testing.T) {
	_, err := NewManager(Options{
		Keyed: []KeyedCodec{
			&tempKeyedCodec{id: 9},
			&tempKeyedCodec{id: 9},
		},
	})
	if !errors.Is(err, ErrRegistrationInconsistency) {
		t.Errorf("duplicate keyed id should be rejected, got %v", err)
	}
}

func TestExternalMemoizationSentinel(t *testing.T) {
	ext := &countingExternal{target: typeof[*testRecord]()}
	m := newTestManager(t, Options{External: []TypeCodec{ext}})

	if got := m.registry.ExternalFor(typeof[*testRecord]()); got == nil {
		t.Fatal("external serializer not found")
	}
	if got := m.registry.ExternalFor(typeof[int32]()); got != nil {
		t.Fatal("unexpected external hit")
	}
	before := ext.calls
	m.registry.ExternalFor(typeof[*testRecord]())
	m.registry.ExternalFor(typeof[int32]())
	if ext.calls != before {
		t.Errorf("SupportsType called after memoization: %d -> %d", before, ext.calls)
	}
}
