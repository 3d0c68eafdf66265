package serialization

import "errors"

// The engine's error taxonomy. Every failure surfaced to a caller wraps one
// of these sentinels so callers can branch with errors.Is. Errors raised by
// user codecs propagate unchanged.
var (
	// ErrRegistrationInconsistency reports a serializer registered without
	// its deserializer (or vice versa), a serializer type exposing none of
	// the known capability methods, or an enum registration with a
	// non-integer underlying type.
	ErrRegistrationInconsistency = errors.New("serialization: inconsistent registration")

	// ErrNoCodecFound reports that encode or decode exhausted the codec
	// tie-break order without a match.
	ErrNoCodecFound = errors.New("serialization: no codec found")

	// ErrUnresolvableTypeName reports a type key the resolver could not map
	// to a runtime type.
	ErrUnresolvableTypeName = errors.New("serialization: unresolvable type name")

	// ErrStreamFormat reports an unexpected token at a structural position,
	// an unknown keyed-serializer id, or a truncated buffer.
	ErrStreamFormat = errors.New("serialization: malformed stream")
)
