package serialization

import (
	"errors"
	"testing"
	"time"
)

func TestWriterReaderPrimitives(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(0xab)
	w.WriteInt8(-5)
	w.WriteUint16(0xbeef)
	w.WriteInt16(-1234)
	w.WriteUint32(0xdeadbeef)
	w.WriteInt32(-123456)
	w.WriteUint64(0x0123456789abcdef)
	w.WriteInt64(-1234567890123)
	w.WriteFloat32(3.5)
	w.WriteFloat64(-2.25)
	w.WriteString("héllo")
	w.WriteGUID(GUID{1, 2, 3})
	w.WriteDecimal(Decimal{Flags: 1 << 31, Hi: 7, Lo: 42})
	w.WriteDuration(3 * time.Second)

	r := NewReader(w.Bytes())
	if x, _ := r.ReadUint8(); x != 0xab {
		t.Errorf("uint8: got %x", x)
	}
	if x, _ := r.ReadInt8(); x != -5 {
		t.Errorf("int8: got %d", x)
	}
	if x, _ := r.ReadUint16(); x != 0xbeef {
		t.Errorf("uint16: got %x", x)
	}
	if x, _ := r.ReadInt16(); x != -1234 {
		t.Errorf("int16: got %d", x)
	}
	if x, _ := r.ReadUint32(); x != 0xdeadbeef {
		t.Errorf("uint32: got %x", x)
	}
	if x, _ := r.ReadInt32(); x != -123456 {
		t.Errorf("int32: got %d", x)
	}
	if x, _ := r.ReadUint64(); x != 0x0123456789abcdef {
		t.Errorf("uint64: got %x", x)
	}
	if x, _ := r.ReadInt64(); x != -1234567890123 {
		t.Errorf("int64: got %d", x)
	}
	if x, _ := r.ReadFloat32(); x != 3.5 {
		t.Errorf("float32: got %v", x)
	}
	if x, _ := r.ReadFloat64(); x != -2.25 {
		t.Errorf("float64: got %v", x)
	}
	if s, _ := r.ReadString(); s != "héllo" {
		t.Errorf("string: got %q", s)
	}
	if g, _ := r.ReadGUID(); g != (GUID{1, 2, 3}) {
		t.Errorf("guid: got %v", g)
	}
	if d, _ := r.ReadDecimal(); d != (Decimal{Flags: 1 << 31, Hi: 7, Lo: 42}) {
		t.Errorf("decimal: got %v", d)
	}
	if d, _ := r.ReadDuration(); d != 3*time.Second {
		t.Errorf("duration: got %v", d)
	}
	if r.Remaining() != 0 {
		t.Errorf("trailing bytes: %d", r.Remaining())
	}
}

func TestWriterReaderTime(t *testing.T) {
	for _, tc := range []time.Time{
		time.Unix(1722800000, 123456789).UTC(),
		time.Unix(1722800000, 123456789),
	} {
		w := NewWriter(0)
		w.WriteTime(tc)
		got, err := NewReader(w.Bytes()).ReadTime()
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(tc) {
			t.Errorf("expected %v, got %v", tc, got)
		}
	}
}

func TestStringLengthPrefix(t *testing.T) {
	w := NewWriter(0)
	w.WriteString("hello")
	b := w.Bytes()
	want := []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'}
	if len(b) != len(want) {
		t.Fatalf("length: got %d, want %d", len(b), len(want))
	}
	for i := range want {
		if b[i] != want[i] {
			t.Errorf("byte %d: got %x, want %x", i, b[i], want[i])
		}
	}
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrStreamFormat) {
		t.Errorf("expected ErrStreamFormat, got %v", err)
	}
	if r.Position() != 0 {
		t.Errorf("cursor moved on failed read: %d", r.Position())
	}
}

func TestTryReadSimpleNonDestructive(t *testing.T) {
	w := NewWriter(0)
	w.WriteToken(TokenSpecifiedType)
	w.WriteToken(TokenByteArray)
	r := NewReader(w.Bytes())

	obj, ok, err := tryReadSimple(r)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("consumed a structural token as simple: %v", obj)
	}
	if r.Position() != 0 {
		t.Errorf("cursor left at %d, want 0", r.Position())
	}
	tok, _ := r.ReadToken()
	if tok != TokenSpecifiedType {
		t.Errorf("next token %s, want SpecifiedType", tok)
	}
}

func TestTokenStringNames(t *testing.T) {
	if TokenNull.String() != "Null" || TokenKeyedSerializer.String() != "KeyedSerializer" {
		t.Error("token names are wrong")
	}
}
