package serialization

import (
	"encoding/binary"
	"math"
	"time"
)

// Writer appends the token stream to an in-memory buffer. All multi-byte
// payloads are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	if capacity <= 0 {
		capacity = 128
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded stream. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Position is the offset at which the next byte will be written.
func (w *Writer) Position() int { return len(w.buf) }

func (w *Writer) WriteToken(t Token) { w.buf = append(w.buf, byte(t)) }

func (w *Writer) WriteBool(x bool) {
	if x {
		w.WriteToken(TokenTrue)
	} else {
		w.WriteToken(TokenFalse)
	}
}

func (w *Writer) WriteUint8(x uint8)   { w.buf = append(w.buf, x) }
func (w *Writer) WriteInt8(x int8)     { w.buf = append(w.buf, byte(x)) }
func (w *Writer) WriteUint16(x uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, x) }
func (w *Writer) WriteInt16(x int16)   { w.WriteUint16(uint16(x)) }
func (w *Writer) WriteUint32(x uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, x) }
func (w *Writer) WriteInt32(x int32)   { w.WriteUint32(uint32(x)) }
func (w *Writer) WriteUint64(x uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, x) }
func (w *Writer) WriteInt64(x int64)   { w.WriteUint64(uint64(x)) }

func (w *Writer) WriteFloat32(x float32) { w.WriteUint32(math.Float32bits(x)) }
func (w *Writer) WriteFloat64(x float64) { w.WriteUint64(math.Float64bits(x)) }

// WriteString writes a 4-byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteRaw appends bytes without a length prefix.
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteGUID(g GUID) { w.buf = append(w.buf, g[:]...) }

func (w *Writer) WriteDecimal(d Decimal) {
	w.WriteUint32(d.Flags)
	w.WriteUint32(d.Hi)
	w.WriteUint64(d.Lo)
}

const (
	timeKindUTC   = 0
	timeKindLocal = 1
)

// WriteTime writes a 64-bit tick count (nanoseconds since the Unix epoch)
// followed by a kind byte. Monotonic clock readings are dropped.
func (w *Writer) WriteTime(t time.Time) {
	kind := byte(timeKindLocal)
	if t.Location() == time.UTC {
		kind = timeKindUTC
	}
	w.WriteInt64(t.UnixNano())
	w.WriteUint8(kind)
}

func (w *Writer) WriteDuration(d time.Duration) { w.WriteInt64(int64(d)) }
