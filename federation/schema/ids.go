// Package schema builds the immutable, id-indexed catalog ("SchemaStore") that
// every later stage of the gateway pipeline queries: type and field lookups,
// per-subgraph field availability, and entity key metadata. It is constructed
// once per supergraph version from the composed schema already produced by
// federation/graph (SuperGraphV2's deep-merge + ownership map), and is
// infallible to query afterwards.
package schema

// StringID identifies an interned string. Two equal StringIDs from the same
// Store refer to byte-identical content; no ordering is implied across runs.
type StringID int32

// TypeID identifies a named type in a Store. Dense, 0-based, stable for the
// lifetime of the Store.
type TypeID int32

// FieldID identifies a field definition in a Store.
type FieldID int32

// SubgraphID identifies a subgraph. Densely numbered from 0, matching
// graph.SubGraphV2.ID.
type SubgraphID int32

// TypeKind discriminates the variants of TypeDefinition.
type TypeKind uint8

const (
	KindScalar TypeKind = iota
	KindObject
	KindInterface
	KindUnion
	KindEnum
	KindInputObject
)

func (k TypeKind) String() string {
	switch k {
	case KindScalar:
		return "SCALAR"
	case KindObject:
		return "OBJECT"
	case KindInterface:
		return "INTERFACE"
	case KindUnion:
		return "UNION"
	case KindEnum:
		return "ENUM"
	case KindInputObject:
		return "INPUT_OBJECT"
	default:
		return "UNKNOWN"
	}
}
