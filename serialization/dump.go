package serialization

import (
	"fmt"
	"strings"
)

// DumpTokens renders the token skeleton of a stream, one line per token.
// Payloads owned by registered or keyed codecs are not self-describing, so
// the walk stops with an "opaque payload" marker when it reaches one.
func DumpTokens(data []byte) string {
	r := NewReader(data)
	var b strings.Builder
	for r.Remaining() > 0 {
		pos := r.Position()
		if !dumpOne(r, &b, pos) {
			break
		}
	}
	return b.String()
}

func dumpOne(r *Reader, b *strings.Builder, pos int) bool {
	line := func(format string, args ...any) {
		fmt.Fprintf(b, "%6d  ", pos)
		fmt.Fprintf(b, format, args...)
		b.WriteByte('\n')
	}
	if obj, ok, err := tryReadSimple(r); err != nil {
		line("!! %v", err)
		return false
	} else if ok {
		if obj == nil {
			line("Null")
		} else {
			line("%T %v", obj, obj)
		}
		return true
	}
	tok, err := r.ReadToken()
	if err != nil {
		line("!! %v", err)
		return false
	}
	switch tok {
	case TokenReference:
		off, err := r.ReadUint32()
		if err != nil {
			line("!! %v", err)
			return false
		}
		line("Reference -> %d", off)
		return true
	case TokenSpecifiedType, TokenExpectedType:
		line("%s", tok)
		if tok == TokenSpecifiedType {
			return dumpTypeInfo(r, b)
		}
		line("<payload of statically-known type>")
		return false
	case TokenFallback:
		key, err := r.ReadString()
		if err != nil {
			line("!! %v", err)
			return false
		}
		n, err := r.ReadUint32()
		if err != nil {
			line("!! %v", err)
			return false
		}
		if _, err := r.ReadRaw(int(n)); err != nil {
			line("!! %v", err)
			return false
		}
		line("Fallback %s (%d bytes)", key, n)
		return true
	case TokenKeyedSerializer:
		id, err := r.ReadUint8()
		if err != nil {
			line("!! %v", err)
			return false
		}
		line("KeyedSerializer id=%d <opaque payload>", id)
		return false
	}
	line("%s <opaque payload>", tok)
	return false
}

func dumpTypeInfo(r *Reader, b *strings.Builder) bool {
	pos := r.Position()
	tok, err := r.ReadToken()
	if err != nil {
		fmt.Fprintf(b, "%6d  !! %v\n", pos, err)
		return false
	}
	switch {
	case tokenToType[tok] != nil:
		fmt.Fprintf(b, "%6d  type %s\n", pos, tok)
		if tok == TokenObject {
			return true
		}
	case arrayTokenToElem[tok] != nil:
		n, err := r.ReadUint32()
		if err != nil {
			fmt.Fprintf(b, "%6d  !! %v\n", pos, err)
			return false
		}
		elem := arrayTokenToElem[tok]
		if _, err := r.ReadRaw(int(n) * int(elem.Size())); err != nil {
			fmt.Fprintf(b, "%6d  !! %v\n", pos, err)
			return false
		}
		fmt.Fprintf(b, "%6d  %s len=%d\n", pos, tok, n)
		return true
	case tok == TokenNamedType:
		key, err := r.ReadString()
		if err != nil {
			fmt.Fprintf(b, "%6d  !! %v\n", pos, err)
			return false
		}
		fmt.Fprintf(b, "%6d  type %q <opaque payload>\n", pos, key)
	default:
		fmt.Fprintf(b, "%6d  %s <opaque payload>\n", pos, tok)
	}
	return false
}
