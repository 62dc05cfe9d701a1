package schema

// Key is one entry of a TypeDefinition's ordered key list: a @key field set
// plus the subgraphs where it can be used as an entity entry point.
type Key struct {
	Fields            FieldSet
	ResolvableIn      []SubgraphID
}

// TypeDefinition describes one named type in the composed supergraph.
type TypeDefinition struct {
	Name StringID
	Kind TypeKind

	// Object/Interface
	fields        []FieldID
	fieldByName   map[string]FieldID
	implements    []TypeID // interfaces this object/interface implements
	possibleTypes []TypeID // by id order
	possibleByName []TypeID // same set, sorted by type name

	// Union
	members []TypeID

	// Entity metadata (Object/Interface only)
	keys []Key
}

// Fields returns the field ids of an Object/Interface type, in declaration
// order.
func (t *TypeDefinition) Fields() []FieldID { return t.fields }

// PossibleTypesByID returns possible_types sorted by id, for O(log n)
// membership checks.
func (t *TypeDefinition) PossibleTypesByID() []TypeID { return t.possibleTypes }

// PossibleTypesByName returns possible_types sorted by type name, for
// deterministic iteration (e.g. typename-discriminated union serialisation).
func (t *TypeDefinition) PossibleTypesByName() []TypeID { return t.possibleByName }

// Keys returns the entity's ordered @key list. Empty for non-entity types.
func (t *TypeDefinition) Keys() []Key { return t.keys }

// availability records, per subgraph, how a field can be used.
type availability struct {
	resolvable bool
	provides   FieldSet
	requires   FieldSet
}

// FieldDefinition describes one field of an Object/Interface/InputObject.
type FieldDefinition struct {
	Parent TypeID
	Name   StringID

	baseType   TypeID
	listDepth  int  // number of list wrapping layers
	nonNull    bool // innermost (named) type is non-null
	listNonNull []bool // per list layer, innermost-first: whether that layer is non-null

	existsIn map[SubgraphID]*availability
}

// OutputType returns the base named type id and wrapping information: the
// number of list layers and whether the named type itself is non-null.
func (f *FieldDefinition) OutputType() (base TypeID, listDepth int, nonNull bool) {
	return f.baseType, f.listDepth, f.nonNull
}

// ExistsIn reports whether the field is declared (possibly as @external) in
// subgraph sg.
func (f *FieldDefinition) ExistsIn(sg SubgraphID) bool {
	_, ok := f.existsIn[sg]
	return ok
}

// ResolvableIn reports whether the field can be resolved (not @external) in
// subgraph sg.
func (f *FieldDefinition) ResolvableIn(sg SubgraphID) bool {
	a, ok := f.existsIn[sg]
	return ok && a.resolvable
}

// Provides returns the @provides field set for the field in subgraph sg.
func (f *FieldDefinition) Provides(sg SubgraphID) FieldSet {
	if a, ok := f.existsIn[sg]; ok {
		return a.provides
	}
	return FieldSet{}
}

// Requires returns the @requires field set for the field in subgraph sg.
func (f *FieldDefinition) Requires(sg SubgraphID) FieldSet {
	if a, ok := f.existsIn[sg]; ok {
		return a.requires
	}
	return FieldSet{}
}

// ResolvableSubgraphs returns every subgraph id that can resolve the field,
// in ascending id order.
func (f *FieldDefinition) ResolvableSubgraphs() []SubgraphID {
	out := make([]SubgraphID, 0, len(f.existsIn))
	for sg, a := range f.existsIn {
		if a.resolvable {
			out = append(out, sg)
		}
	}
	sortSubgraphIDs(out)
	return out
}

func sortSubgraphIDs(ids []SubgraphID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
