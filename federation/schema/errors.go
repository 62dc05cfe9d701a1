package schema

import "fmt"

// Error is the error type returned by Build. Construction is the only
// fallible phase of a Store's life; every lookup on a successfully-built
// Store is infallible for ids obtained from that same Store.
type Error struct {
	Kind   ErrorKind
	Detail string
}

// ErrorKind enumerates SchemaError variants per spec.md §4.1.
type ErrorKind uint8

const (
	// Undefined means a name referenced by the schema (a type condition, an
	// implemented interface, a union member) has no definition.
	Undefined ErrorKind = iota
	// DuplicateDefinition means a named type was defined more than once in a
	// way composition could not reconcile (spec.md invariant: every named
	// type is defined exactly once).
	DuplicateDefinition
	// InvalidJoinMetadata means @key/@requires/@provides metadata could not
	// be parsed or is internally inconsistent (e.g. a @key field set naming a
	// field the type does not declare).
	InvalidJoinMetadata
)

func (e *Error) Error() string {
	var kind string
	switch e.Kind {
	case Undefined:
		kind = "undefined"
	case DuplicateDefinition:
		kind = "duplicate definition"
	case InvalidJoinMetadata:
		kind = "invalid join metadata"
	default:
		kind = "schema error"
	}
	return fmt.Sprintf("schema: %s: %s", kind, e.Detail)
}

func errUndefined(name string) error {
	return &Error{Kind: Undefined, Detail: name}
}

func errDuplicate(name string) error {
	return &Error{Kind: DuplicateDefinition, Detail: name}
}

func errInvalidJoin(detail string) error {
	return &Error{Kind: InvalidJoinMetadata, Detail: detail}
}
