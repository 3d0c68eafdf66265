// Package serialization is a polymorphic binary serialization engine for a
// distributed actor runtime. It losslessly encodes heterogeneous, possibly
// cyclic object graphs into a compact token stream, reconstructs them in a
// different address space, and deep-copies them in-process without going
// through the wire format.
//
// The engine is an explicitly-constructed value: build one with [NewManager],
// feeding it the codec registrations, external and keyed serializers, known
// type names, and statistics sink of the host runtime. Object identity and
// cycles are preserved per operation through back-references into the
// stream; value types are never deduplicated.
package serialization
