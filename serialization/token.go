package serialization

import (
	"reflect"
	"strconv"
	"time"
)

// Token is the single-byte tag that precedes every value or structural
// element on the wire.
type Token byte

const (
	// Primitive value tokens carry their payload inline.
	TokenNull Token = iota
	TokenTrue
	TokenFalse
	TokenByte
	TokenSByte
	TokenShort
	TokenUShort
	TokenInt
	TokenUInt
	TokenLong
	TokenULong
	TokenNativeInt
	TokenNativeUint
	TokenFloat
	TokenDouble
	TokenDecimal
	TokenChar
	TokenString
	TokenGuid
	TokenDate
	TokenTimeSpan
	TokenObject

	// Array-of-primitive tokens are followed by a 4-byte length and the raw
	// little-endian element payload.
	TokenByteArray
	TokenSByteArray
	TokenBoolArray
	TokenCharArray
	TokenShortArray
	TokenUShortArray
	TokenIntArray
	TokenUIntArray
	TokenLongArray
	TokenULongArray
	TokenFloatArray
	TokenDoubleArray

	// Structural tokens.
	TokenSpecifiedType
	TokenExpectedType
	TokenNamedType
	TokenArray
	TokenReference
	TokenFallback
	TokenKeyedSerializer
)

var tokenNames = map[Token]string{
	TokenNull: "Null", TokenTrue: "True", TokenFalse: "False",
	TokenByte: "Byte", TokenSByte: "SByte", TokenShort: "Short",
	TokenUShort: "UShort", TokenInt: "Int", TokenUInt: "UInt",
	TokenLong: "Long", TokenULong: "ULong",
	TokenNativeInt: "NativeInt", TokenNativeUint: "NativeUint",
	TokenFloat: "Float", TokenDouble: "Double", TokenDecimal: "Decimal",
	TokenChar: "Char", TokenString: "String", TokenGuid: "Guid",
	TokenDate: "Date", TokenTimeSpan: "TimeSpan", TokenObject: "Object",
	TokenByteArray: "ByteArray", TokenSByteArray: "SByteArray",
	TokenBoolArray: "BoolArray", TokenCharArray: "CharArray",
	TokenShortArray: "ShortArray", TokenUShortArray: "UShortArray",
	TokenIntArray: "IntArray", TokenUIntArray: "UIntArray",
	TokenLongArray: "LongArray", TokenULongArray: "ULongArray",
	TokenFloatArray: "FloatArray", TokenDoubleArray: "DoubleArray",
	TokenSpecifiedType: "SpecifiedType", TokenExpectedType: "ExpectedType",
	TokenNamedType: "NamedType", TokenArray: "Array",
	TokenReference: "Reference", TokenFallback: "Fallback",
	TokenKeyedSerializer: "KeyedSerializer",
}

func (t Token) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "Token(" + strconv.Itoa(int(t)) + ")"
}

func typeof[X any]() reflect.Type {
	return reflect.TypeOf((*X)(nil)).Elem()
}

var (
	boolType     = typeof[bool]()
	uint8Type    = typeof[uint8]()
	int8Type     = typeof[int8]()
	int16Type    = typeof[int16]()
	uint16Type   = typeof[uint16]()
	int32Type    = typeof[int32]()
	uint32Type   = typeof[uint32]()
	int64Type    = typeof[int64]()
	uint64Type   = typeof[uint64]()
	intType      = typeof[int]()
	uintType     = typeof[uint]()
	float32Type  = typeof[float32]()
	float64Type  = typeof[float64]()
	stringType   = typeof[string]()
	charType     = typeof[Char]()
	guidType     = typeof[GUID]()
	decimalType  = typeof[Decimal]()
	timeType     = typeof[time.Time]()
	durationType = typeof[time.Duration]()
	objectType   = typeof[struct{}]()
	anyType      = typeof[any]()
	errorType    = typeof[error]()
)

// typeToToken maps well-known runtime types to the token used in a type
// header. The reverse table drives header decoding.
var typeToToken = map[reflect.Type]Token{
	uint8Type:    TokenByte,
	int8Type:     TokenSByte,
	int16Type:    TokenShort,
	uint16Type:   TokenUShort,
	int32Type:    TokenInt,
	uint32Type:   TokenUInt,
	int64Type:    TokenLong,
	uint64Type:   TokenULong,
	intType:      TokenNativeInt,
	uintType:     TokenNativeUint,
	float32Type:  TokenFloat,
	float64Type:  TokenDouble,
	decimalType:  TokenDecimal,
	charType:     TokenChar,
	stringType:   TokenString,
	guidType:     TokenGuid,
	timeType:     TokenDate,
	durationType: TokenTimeSpan,
	objectType:   TokenObject,
}

var tokenToType = map[Token]reflect.Type{
	TokenByte:       uint8Type,
	TokenSByte:      int8Type,
	TokenShort:      int16Type,
	TokenUShort:     uint16Type,
	TokenInt:        int32Type,
	TokenUInt:       uint32Type,
	TokenLong:       int64Type,
	TokenULong:      uint64Type,
	TokenNativeInt:  intType,
	TokenNativeUint: uintType,
	TokenFloat:      float32Type,
	TokenDouble:     float64Type,
	TokenDecimal:    decimalType,
	TokenChar:       charType,
	TokenString:     stringType,
	TokenGuid:       guidType,
	TokenDate:       timeType,
	TokenTimeSpan:   durationType,
	TokenObject:     objectType,
}

// elemToArrayToken maps the twelve blittable element types to their bulk
// array tokens.
var elemToArrayToken = map[reflect.Type]Token{
	uint8Type:   TokenByteArray,
	int8Type:    TokenSByteArray,
	boolType:    TokenBoolArray,
	charType:    TokenCharArray,
	int16Type:   TokenShortArray,
	uint16Type:  TokenUShortArray,
	int32Type:   TokenIntArray,
	uint32Type:  TokenUIntArray,
	int64Type:   TokenLongArray,
	uint64Type:  TokenULongArray,
	float32Type: TokenFloatArray,
	float64Type: TokenDoubleArray,
}

var arrayTokenToElem = map[Token]reflect.Type{
	TokenByteArray:   uint8Type,
	TokenSByteArray:  int8Type,
	TokenBoolArray:   boolType,
	TokenCharArray:   charType,
	TokenShortArray:  int16Type,
	TokenUShortArray: uint16Type,
	TokenIntArray:    int32Type,
	TokenUIntArray:   uint32Type,
	TokenLongArray:   int64Type,
	TokenULongArray:  uint64Type,
	TokenFloatArray:  float32Type,
	TokenDoubleArray: float64Type,
}
