package serialization

import (
	"reflect"
	"time"
)

// tryWriteSimple handles the primitive fastpath: nil, booleans, the fixed
// set of primitive and small well-known types. It reports whether the value
// was consumed. Named types whose underlying kind is primitive do not match
// and flow on to the enum and codec paths.
func tryWriteSimple(w *Writer, obj any) bool {
	if obj == nil {
		w.WriteToken(TokenNull)
		return true
	}
	switch x := obj.(type) {
	case bool:
		w.WriteBool(x)
	case uint8:
		w.WriteToken(TokenByte)
		w.WriteUint8(x)
	case int8:
		w.WriteToken(TokenSByte)
		w.WriteInt8(x)
	case int16:
		w.WriteToken(TokenShort)
		w.WriteInt16(x)
	case uint16:
		w.WriteToken(TokenUShort)
		w.WriteUint16(x)
	case int32:
		w.WriteToken(TokenInt)
		w.WriteInt32(x)
	case uint32:
		w.WriteToken(TokenUInt)
		w.WriteUint32(x)
	case int64:
		w.WriteToken(TokenLong)
		w.WriteInt64(x)
	case uint64:
		w.WriteToken(TokenULong)
		w.WriteUint64(x)
	case int:
		w.WriteToken(TokenNativeInt)
		w.WriteInt64(int64(x))
	case uint:
		w.WriteToken(TokenNativeUint)
		w.WriteUint64(uint64(x))
	case float32:
		w.WriteToken(TokenFloat)
		w.WriteFloat32(x)
	case float64:
		w.WriteToken(TokenDouble)
		w.WriteFloat64(x)
	case Decimal:
		w.WriteToken(TokenDecimal)
		w.WriteDecimal(x)
	case Char:
		w.WriteToken(TokenChar)
		w.WriteInt32(int32(x))
	case string:
		w.WriteToken(TokenString)
		w.WriteString(x)
	case GUID:
		w.WriteToken(TokenGuid)
		w.WriteGUID(x)
	case time.Time:
		w.WriteToken(TokenDate)
		w.WriteTime(x)
	case time.Duration:
		w.WriteToken(TokenTimeSpan)
		w.WriteDuration(x)
	default:
		// Typed nil references collapse to Null like the untyped one.
		v := reflect.ValueOf(obj)
		switch v.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			if v.IsNil() {
				w.WriteToken(TokenNull)
				return true
			}
		}
		return false
	}
	return true
}

// tryReadSimple mirrors tryWriteSimple. It is non-destructive: on a
// non-simple token the cursor is left positioned at the token byte.
func tryReadSimple(r *Reader) (any, bool, error) {
	tok, err := r.PeekToken()
	if err != nil {
		return nil, false, err
	}
	switch tok {
	case TokenNull:
		r.pos++
		return nil, true, nil
	case TokenTrue:
		r.pos++
		return true, true, nil
	case TokenFalse:
		r.pos++
		return false, true, nil
	case TokenByte:
		r.pos++
		x, err := r.ReadUint8()
		return x, true, err
	case TokenSByte:
		r.pos++
		x, err := r.ReadInt8()
		return x, true, err
	case TokenShort:
		r.pos++
		x, err := r.ReadInt16()
		return x, true, err
	case TokenUShort:
		r.pos++
		x, err := r.ReadUint16()
		return x, true, err
	case TokenInt:
		r.pos++
		x, err := r.ReadInt32()
		return x, true, err
	case TokenUInt:
		r.pos++
		x, err := r.ReadUint32()
		return x, true, err
	case TokenLong:
		r.pos++
		x, err := r.ReadInt64()
		return x, true, err
	case TokenULong:
		r.pos++
		x, err := r.ReadUint64()
		return x, true, err
	case TokenNativeInt:
		r.pos++
		x, err := r.ReadInt64()
		return int(x), true, err
	case TokenNativeUint:
		r.pos++
		x, err := r.ReadUint64()
		return uint(x), true, err
	case TokenFloat:
		r.pos++
		x, err := r.ReadFloat32()
		return x, true, err
	case TokenDouble:
		r.pos++
		x, err := r.ReadFloat64()
		return x, true, err
	case TokenDecimal:
		r.pos++
		x, err := r.ReadDecimal()
		return x, true, err
	case TokenChar:
		r.pos++
		x, err := r.ReadInt32()
		return Char(x), true, err
	case TokenString:
		r.pos++
		x, err := r.ReadString()
		return x, true, err
	case TokenGuid:
		r.pos++
		x, err := r.ReadGUID()
		return x, true, err
	case TokenDate:
		r.pos++
		x, err := r.ReadTime()
		return x, true, err
	case TokenTimeSpan:
		r.pos++
		x, err := r.ReadDuration()
		return x, true, err
	}
	return nil, false, nil
}
