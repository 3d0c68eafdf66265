package serialization

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type node struct {
	Label string
	Next  *node
}

type blob struct {
	Data []byte
}

type temperature struct {
	Celsius float64
}

// tempKeyedCodec encodes temperature values under a 1-byte wire id.
type tempKeyedCodec struct {
	id byte
}

func (c *tempKeyedCodec) SerializerID() byte { return c.id }

func (c *tempKeyedCodec) SupportsType(t reflect.Type) bool {
	return t == typeof[temperature]()
}

func (c *tempKeyedCodec) Copy(obj any, ctx *CopyContext) (any, error) {
	return obj, nil
}

func (c *tempKeyedCodec) Serialize(obj any, ctx *SerializeContext, expected reflect.Type) error {
	ctx.Writer.WriteFloat64(obj.(temperature).Celsius)
	return nil
}

func (c *tempKeyedCodec) Deserialize(expected reflect.Type, ctx *DeserializeContext) (any, error) {
	v, err := ctx.Reader.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return temperature{Celsius: v}, nil
}

// countingExternal supports a single type and counts predicate calls to
// observe memoization.
type countingExternal struct {
	target reflect.Type
	calls  int
	hits   int
}

func (c *countingExternal) SupportsType(t reflect.Type) bool {
	c.calls++
	return t == c.target
}

func (c *countingExternal) Copy(obj any, ctx *CopyContext) (any, error) {
	r := *(obj.(*testRecord))
	return &r, nil
}

func (c *countingExternal) Serialize(obj any, ctx *SerializeContext, expected reflect.Type) error {
	c.hits++
	rec := obj.(*testRecord)
	ctx.Writer.WriteInt64(rec.ID)
	ctx.Writer.WriteString(rec.Name)
	return nil
}

func (c *countingExternal) Deserialize(expected reflect.Type, ctx *DeserializeContext) (any, error) {
	id, err := ctx.Reader.ReadInt64()
	if err != nil {
		return nil, err
	}
	name, err := ctx.Reader.ReadString()
	if err != nil {
		return nil, err
	}
	return &testRecord{ID: id, Name: name}, nil
}

func registeredManager(t *testing.T) *Manager {
	t.Helper()
	m := newTestManager(t, Options{})
	if err := m.RegisterStruct(typeof[node](), false); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterStruct(typeof[blob](), false); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterStruct(typeof[testRecord](), false); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	m := registeredManager(t)
	if err := m.registry.RegisterEnum(typeof[enumColor]()); err != nil {
		t.Fatal(err)
	}

	cases := []any{
		nil,
		true,
		false,
		int8(-8),
		uint8(8),
		int16(-9),
		uint16(9),
		int32(-10),
		uint32(10),
		int64(-11),
		uint64(11),
		int(42),
		uint(42),
		float32(3.5),
		float64(-2.25),
		"foo",
		"",
		Char('λ'),
		GUID{0xde, 0xad, 0xbe, 0xef},
		Decimal{Flags: 3 << 16, Hi: 0, Lo: 314159},
		3 * time.Second,
		struct{}{},
		enumColor(3),
		[]byte{1, 2, 3},
		[]int8{-1, 0, 1},
		[]bool{true, false, true},
		[]Char{'a', 'λ'},
		[]int16{-2, 2},
		[]uint16{2, 4},
		[]int32{-3, 3},
		[]uint32{3, 6},
		[]int64{-4, 4},
		[]uint64{4, 8},
		[]float32{0.5, -0.5},
		[]float64{1.5, -1.5},
		[]int{1, 2, 3},
		[]string{"a", "", "c"},
		[]any{nil, int32(1), "x"},
		[][]string{{"a", "b"}, {"c", "d"}},
		[4]int32{1, 2, 3, 4},
		map[string]int32{"one": 1, "two": 2},
		map[int32][]string{1: {"a"}, 2: {"b", "c"}},
		testRecord{ID: 7, Name: "rec"},
		&testRecord{ID: 8, Name: "ptr"},
		blob{Data: []byte{9, 9}},
	}
	for _, tc := range cases {
		name := "nil"
		if tc != nil {
			name = reflect.TypeOf(tc).String()
		}
		t.Run(name, func(t *testing.T) {
			data, err := m.Serialize(tc)
			if err != nil {
				t.Fatal(err)
			}
			got, err := m.Deserialize(nil, data)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTripTime(t *testing.T) {
	m := newTestManager(t, Options{})
	in := time.Unix(1722800000, 424242).UTC()
	out, err := RoundTrip(m, in)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(in) {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestByteExactPrefixes(t *testing.T) {
	m := registeredManager(t)

	t.Run("null", func(t *testing.T) {
		data, err := m.Serialize(nil)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, []byte{byte(TokenNull)}) {
			t.Errorf("got % x", data)
		}
	})

	t.Run("int32", func(t *testing.T) {
		data, err := m.Serialize(int32(42))
		if err != nil {
			t.Fatal(err)
		}
		want := []byte{byte(TokenInt), 0x2a, 0, 0, 0}
		if !bytes.Equal(data, want) {
			t.Errorf("got % x, want % x", data, want)
		}
	})

	t.Run("string", func(t *testing.T) {
		data, err := m.Serialize("hello")
		if err != nil {
			t.Fatal(err)
		}
		want := append([]byte{byte(TokenString), 5, 0, 0, 0}, "hello"...)
		if !bytes.Equal(data, want) {
			t.Errorf("got % x, want % x", data, want)
		}
	})

	t.Run("byte array", func(t *testing.T) {
		data, err := m.Serialize([]byte{1, 2, 3})
		if err != nil {
			t.Fatal(err)
		}
		want := []byte{byte(TokenSpecifiedType), byte(TokenByteArray), 3, 0, 0, 0, 1, 2, 3}
		if !bytes.Equal(data, want) {
			t.Errorf("got % x, want % x", data, want)
		}
	})
}

func TestExpectedTypeCollapse(t *testing.T) {
	m := registeredManager(t)

	data, err := m.Serialize(blob{Data: []byte{1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	// The field's static type equals its runtime type, so its header must be
	// the single ExpectedType byte rather than SpecifiedType + ByteArray.
	tail := []byte{byte(TokenExpectedType), 3, 0, 0, 0, 1, 2, 3}
	if !bytes.HasSuffix(data, tail) {
		t.Errorf("stream does not end with collapsed header: % x", data)
	}
	if bytes.Contains(data, []byte{byte(TokenSpecifiedType), byte(TokenByteArray)}) {
		t.Error("field emitted a full type header despite matching expected type")
	}

	got, err := DeserializeAs[blob](m, data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(blob{Data: []byte{1, 2, 3}}, got); diff != "" {
		t.Errorf("decode mismatch:\n%s", diff)
	}
}

func TestExpectedTypeWithoutExpectation(t *testing.T) {
	m := registeredManager(t)
	w := NewWriter(0)
	w.WriteToken(TokenExpectedType)
	if _, err := m.Deserialize(nil, w.Bytes()); !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrStreamFormat, got %v", err)
	}
}

func TestCyclePreservation(t *testing.T) {
	m := registeredManager(t)

	n := &node{Label: "self"}
	n.Next = n

	data, err := m.Serialize(n)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DeserializeAs[*node](m, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "self" {
		t.Errorf("label: %q", got.Label)
	}
	if got.Next != got {
		t.Error("cycle was not preserved")
	}
}

func TestSharingPreservation(t *testing.T) {
	m := registeredManager(t)

	a := &testRecord{ID: 1, Name: "a"}
	b := &testRecord{ID: 2, Name: "b"}
	graph := []any{a, a, b}

	data, err := m.Serialize(graph)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DeserializeAs[[]any](m, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("length %d", len(got))
	}
	if got[0] != got[1] {
		t.Error("shared reference was duplicated")
	}
	if got[0] == got[2] {
		t.Error("distinct references were merged")
	}
}

func TestReferenceTokenOnSecondOccurrence(t *testing.T) {
	m := registeredManager(t)
	a := &testRecord{ID: 1, Name: "a"}
	data, err := m.Serialize([]any{a, a})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte{byte(TokenReference)}) {
		t.Errorf("no Reference token in % x", data)
	}
}

func TestMapSelfReference(t *testing.T) {
	m := newTestManager(t, Options{})
	mp := map[string]any{}
	mp["self"] = mp

	data, err := m.Serialize(mp)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DeserializeAs[map[string]any](m, data)
	if err != nil {
		t.Fatal(err)
	}
	inner, ok := got["self"].(map[string]any)
	if !ok {
		t.Fatalf("self entry has type %T", got["self"])
	}
	if reflect.ValueOf(inner).Pointer() != reflect.ValueOf(got).Pointer() {
		t.Error("map self-reference was not preserved")
	}
}

type shape interface {
	Area() float64
}

type circle struct {
	Radius float64
}

func (c circle) Area() float64 { return 3.14159 * c.Radius * c.Radius }

func TestInterfaceCodecCoversImplementers(t *testing.T) {
	m := newTestManager(t, Options{})
	ser := func(obj any, ctx *SerializeContext, expected reflect.Type) error {
		ctx.Writer.WriteFloat64(obj.(circle).Radius)
		return nil
	}
	des := func(expected reflect.Type, ctx *DeserializeContext) (any, error) {
		r, err := ctx.Reader.ReadFloat64()
		if err != nil {
			return nil, err
		}
		return circle{Radius: r}, nil
	}
	copier := func(obj any, ctx *CopyContext) (any, error) { return obj, nil }
	if err := m.registry.Register(typeof[shape](), copier, ser, des, false); err != nil {
		t.Fatal(err)
	}

	// circle was never registered directly; the interface entry must cover it.
	if !m.registry.HasSerializer(typeof[circle]()) {
		t.Error("HasSerializer does not see the interface codec")
	}
	if _, ok := m.registry.SerializerOf(typeof[circle]()); !ok {
		t.Fatal("SerializerOf does not see the interface codec")
	}

	got, err := RoundTrip(m, circle{Radius: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got.Radius != 2 {
		t.Errorf("got %+v", got)
	}

	copied, err := m.DeepCopy(circle{Radius: 3})
	if err != nil {
		t.Fatal(err)
	}
	if copied.(circle).Radius != 3 {
		t.Errorf("copy %+v", copied)
	}
}

func TestInterfaceMarkerDoesNotClaimCodecs(t *testing.T) {
	m := newTestManager(t, Options{})
	if err := m.registry.RegisterMarker(typeof[shape](), "shape"); err != nil {
		t.Fatal(err)
	}
	// The marker resolves the key but carries no codecs.
	if typ, err := m.ResolveTypeName("shape"); err != nil || typ != typeof[shape]() {
		t.Errorf("marker key did not resolve: %v %v", typ, err)
	}
	if m.registry.HasSerializer(typeof[circle]()) {
		t.Error("a key-only marker must not make implementers serializable")
	}
	if _, ok := m.registry.SerializerOf(typeof[circle]()); ok {
		t.Error("marker produced a serializer")
	}
}

func TestKeyedSerializer(t *testing.T) {
	m := newTestManager(t, Options{Keyed: []KeyedCodec{&tempKeyedCodec{id: 7}}})

	data, err := m.Serialize(temperature{Celsius: 21.5})
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != byte(TokenKeyedSerializer) || data[1] != 7 {
		t.Errorf("prefix % x", data[:2])
	}
	got, err := DeserializeAs[temperature](m, data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Celsius != 21.5 {
		t.Errorf("got %v", got)
	}
}

func TestUnknownKeyedID(t *testing.T) {
	m := newTestManager(t, Options{})
	w := NewWriter(0)
	w.WriteToken(TokenKeyedSerializer)
	w.WriteUint8(250)
	if _, err := m.Deserialize(nil, w.Bytes()); !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrStreamFormat, got %v", err)
	}
}

func TestExternalSerializerWins(t *testing.T) {
	ext := &countingExternal{target: typeof[*testRecord]()}
	m := newTestManager(t, Options{External: []TypeCodec{ext}})
	// Registered codec exists too; the external one must win the tie-break.
	if err := m.RegisterStruct(typeof[testRecord](), false); err != nil {
		t.Fatal(err)
	}

	in := &testRecord{ID: 3, Name: "ext"}
	out, err := RoundTrip(m, in)
	if err != nil {
		t.Fatal(err)
	}
	if ext.hits == 0 {
		t.Error("external serializer was not used")
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("mismatch:\n%s", diff)
	}
}

func TestFallbackForUnregisteredStruct(t *testing.T) {
	type plain struct {
		A int32
		B string
	}
	m := newTestManager(t, Options{})
	in := plain{A: 5, B: "plain"}
	data, err := m.Serialize(in)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != byte(TokenFallback) {
		t.Errorf("prefix %x, want Fallback", data[0])
	}
	got, err := m.Deserialize(nil, data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, got.(plain)); diff != "" {
		t.Errorf("mismatch:\n%s", diff)
	}
}

func TestNoCodecFound(t *testing.T) {
	m := newTestManager(t, Options{})
	_, err := m.Serialize(make(chan int))
	if !errors.Is(err, ErrNoCodecFound) {
		t.Errorf("expected ErrNoCodecFound, got %v", err)
	}
}

func TestNonSerializableErrorSubstitution(t *testing.T) {
	m := newTestManager(t, Options{})
	original := errors.New("grain blew up")

	data, err := m.Serialize(original)
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Deserialize(nil, data)
	if err != nil {
		t.Fatal(err)
	}
	sub, ok := got.(*SerializedError)
	if !ok {
		t.Fatalf("decoded %T", got)
	}
	if !strings.Contains(sub.TypeName, "errorString") {
		t.Errorf("type name %q does not carry the original type", sub.TypeName)
	}
	if sub.Message != "grain blew up" {
		t.Errorf("message %q", sub.Message)
	}
	if sub.Stack == "" {
		t.Error("stack text is empty")
	}
	if msg := sub.Error(); !strings.Contains(msg, "grain blew up") || !strings.Contains(msg, sub.TypeName) {
		t.Errorf("rendered error %q", msg)
	}
}

func TestDeserializeWrongExpectedType(t *testing.T) {
	m := newTestManager(t, Options{})
	data, err := m.Serialize("not an int")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Deserialize(typeof[int32](), data); !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrStreamFormat, got %v", err)
	}
}

func TestStatisticsCounters(t *testing.T) {
	statistics := NewAtomicStatistics(true)
	m := newTestManager(t, Options{Statistics: statistics})

	data, err := m.Serialize(int32(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Deserialize(nil, data); err != nil {
		t.Fatal(err)
	}
	if _, err := m.DeepCopy("x"); err != nil {
		t.Fatal(err)
	}
	if statistics.Serializations() != 1 || statistics.Deserializations() != 1 || statistics.Copies() != 1 {
		t.Errorf("counters: ser=%d deser=%d copy=%d",
			statistics.Serializations(), statistics.Deserializations(), statistics.Copies())
	}

	disabled := NewAtomicStatistics(false)
	m2 := newTestManager(t, Options{Statistics: disabled})
	if _, err := m2.Serialize(int32(1)); err != nil {
		t.Fatal(err)
	}
	if disabled.Serializations() != 0 {
		t.Error("disabled sink still counted")
	}
}

func TestDumpTokens(t *testing.T) {
	m := newTestManager(t, Options{})
	data, err := m.Serialize([]byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	dump := DumpTokens(data)
	if !strings.Contains(dump, "SpecifiedType") || !strings.Contains(dump, "ByteArray") {
		t.Errorf("dump:\n%s", dump)
	}
}
