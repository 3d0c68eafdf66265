package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Reader consumes a token stream. All reads fail with ErrStreamFormat when
// the buffer is exhausted. A failed fixed-width read leaves the cursor where
// it was; the multi-field reads (ReadString, ReadDecimal, ReadTime) keep the
// leading fields they consumed before the failure.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Position is the offset of the next unread byte.
func (r *Reader) Position() int { return r.pos }

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrStreamFormat, n, r.pos, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// PeekToken returns the next token without consuming it.
func (r *Reader) PeekToken() (Token, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("%w: truncated at offset %d", ErrStreamFormat, r.pos)
	}
	return Token(r.buf[r.pos]), nil
}

func (r *Reader) ReadToken() (Token, error) {
	t, err := r.PeekToken()
	if err == nil {
		r.pos++
	}
	return t, err
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	x, err := r.ReadUint8()
	return int8(x), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	x, err := r.ReadUint16()
	return int16(x), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	x, err := r.ReadUint32()
	return int32(x), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	x, err := r.ReadUint64()
	return int64(x), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	x, err := r.ReadUint32()
	return math.Float32frombits(x), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	x, err := r.ReadUint64()
	return math.Float64frombits(x), err
}

// ReadString reads a 4-byte length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadRaw reads n bytes without a length prefix.
func (r *Reader) ReadRaw(n int) ([]byte, error) { return r.take(n) }

func (r *Reader) ReadGUID() (GUID, error) {
	var g GUID
	b, err := r.take(16)
	if err != nil {
		return g, err
	}
	copy(g[:], b)
	return g, nil
}

func (r *Reader) ReadDecimal() (Decimal, error) {
	var d Decimal
	var err error
	if d.Flags, err = r.ReadUint32(); err != nil {
		return d, err
	}
	if d.Hi, err = r.ReadUint32(); err != nil {
		return d, err
	}
	d.Lo, err = r.ReadUint64()
	return d, err
}

func (r *Reader) ReadTime() (time.Time, error) {
	ticks, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	kind, err := r.ReadUint8()
	if err != nil {
		return time.Time{}, err
	}
	t := time.Unix(0, ticks)
	if kind == timeKindUTC {
		return t.UTC(), nil
	}
	return t, nil
}

func (r *Reader) ReadDuration() (time.Duration, error) {
	ticks, err := r.ReadInt64()
	return time.Duration(ticks), err
}
