package serialization

import (
	"fmt"
	"runtime/debug"
)

// SerializedError is the synthetic error substituted when an error value has
// no codec of its own and the fallback refuses it. It carries the original
// type name, message, and stack text so exceptions are never
// un-transmittable.
type SerializedError struct {
	TypeName string
	Message  string
	Stack    string
}

func (e *SerializedError) Error() string {
	return fmt.Sprintf("%s: %s\n%s", e.TypeName, e.Message, e.Stack)
}

func substituteError(typeKey string, original error) *SerializedError {
	return &SerializedError{
		TypeName: typeKey,
		Message:  original.Error(),
		Stack:    fmt.Sprintf("%+v\n%s", original, debug.Stack()),
	}
}
