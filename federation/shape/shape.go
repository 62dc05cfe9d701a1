// Package shape implements the ShapeBuilder: for each partition it derives a
// Shape describing how to read the subgraph's response, with each object's
// fields in PositionedResponseKey order (named keys by query position,
// extras last). Grounded on spec.md §4.5. federation/ingest uses a Shape to
// drop extra fields; response serialisation (federation/assemble) does not
// consult it, so the client response's object keys are not emitted in query
// order.
package shape

import (
	"sort"

	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/graphql-parser/ast"
)

// PositionedResponseKey orders fields within an object shape: named fields
// sort by Position ascending, extras (Position == -1) sort after all named
// fields, in the order they were appended.
type PositionedResponseKey struct {
	ResponseKey string
	Position    int // -1 means "extra" (no query position)
	extraSeq    int
}

// Less reports whether a sorts before b under PositionedResponseKey order.
func (a PositionedResponseKey) Less(b PositionedResponseKey) bool {
	aExtra := a.Position < 0
	bExtra := b.Position < 0
	if aExtra != bExtra {
		return !aExtra // named fields sort before extras
	}
	if aExtra {
		return a.extraSeq < b.extraSeq
	}
	return a.Position < b.Position
}

// WireType is the scalar wire type a leaf field is expected to carry.
type WireType uint8

const (
	WireAny WireType = iota
	WireString
	WireNumber
	WireBool
	WireNull
	WireObject
	WireList
)

// FieldShape is one entry of an ObjectShape.
type FieldShape struct {
	Key       PositionedResponseKey
	FieldName string // the underlying field name (may differ from ResponseKey when aliased)
	IsList    bool
	NonNull   bool
	Wire      WireType
	Object    *ObjectShape // non-nil when the field's value is itself an object/list-of-object
}

// ObjectShape describes one selection set, with fields sorted in
// PositionedResponseKey order.
type ObjectShape struct {
	Fields []FieldShape
	// TypeConditionBranches holds, for polymorphic parents, the extra
	// fields selected under `... on T { }` for each concrete type named T.
	// Looked up by concrete typename at ingestion time.
	TypeConditionBranches map[string][]FieldShape
}

// Build computes the Shape for one partition's own (top-level) selection
// set, recursing into nested object selections.
func Build(part *partition.Partition) *ObjectShape {
	return buildSelectionSet(part.Selections, part.Extras, nil)
}

func buildSelectionSet(selections []ast.Selection, extras map[string][]string, path []string) *ObjectShape {
	shape := &ObjectShape{}
	pathKey := joinPath(path)
	extraNames := make(map[string]bool)
	for _, n := range extras[pathKey] {
		extraNames[n] = true
	}

	position := 0
	extraSeq := 0
	for _, sel := range selections {
		switch f := sel.(type) {
		case *ast.Field:
			name := f.Name.String()
			responseKey := name
			if f.Alias != nil && f.Alias.String() != "" {
				responseKey = f.Alias.String()
			}

			var key PositionedResponseKey
			if extraNames[name] {
				key = PositionedResponseKey{ResponseKey: responseKey, Position: -1, extraSeq: extraSeq}
				extraSeq++
			} else {
				key = PositionedResponseKey{ResponseKey: responseKey, Position: position}
				position++
			}

			fs := FieldShape{Key: key, FieldName: name, Wire: WireAny}
			if len(f.SelectionSet) > 0 {
				childPath := append(append([]string(nil), path...), responseKey)
				fs.Object = buildSelectionSet(f.SelectionSet, extras, childPath)
				fs.Wire = WireObject
			}
			shape.Fields = append(shape.Fields, fs)

		case *ast.InlineFragment:
			typeName := ""
			if f.TypeCondition != nil {
				typeName = f.TypeCondition.Name.String()
			}
			branch := buildSelectionSet(f.SelectionSet, extras, path)
			if shape.TypeConditionBranches == nil {
				shape.TypeConditionBranches = make(map[string][]FieldShape)
			}
			shape.TypeConditionBranches[typeName] = append(shape.TypeConditionBranches[typeName], branch.Fields...)
		}
	}

	sort.SliceStable(shape.Fields, func(i, j int) bool { return shape.Fields[i].Key.Less(shape.Fields[j].Key) })
	return shape
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}
