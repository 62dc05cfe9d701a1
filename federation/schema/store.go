package schema

import (
	"sort"

	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// Store is the immutable, id-indexed catalog produced by Build. It is read
// only: built once per supergraph version and shared across every request.
type Store struct {
	strings *interner

	types      []*TypeDefinition
	typeByName map[string]TypeID

	fields []*FieldDefinition

	subgraphs   []*graph.SubGraphV2
	subgraphIdx map[string]SubgraphID

	// SuperGraph is kept for components that still need the raw AST/ownership
	// map (query rendering, directive introspection not yet hoisted into the
	// typed model).
	SuperGraph *graph.SuperGraphV2
}

// Build ingests a composed SuperGraphV2 (already deep-merged by
// federation/graph) and produces an indexed, queryable Store.
func Build(sg *graph.SuperGraphV2) (*Store, error) {
	if sg == nil || sg.Schema == nil {
		return nil, errInvalidJoin("nil supergraph")
	}

	s := &Store{
		strings:     newInterner(),
		typeByName:  make(map[string]TypeID),
		subgraphIdx: make(map[string]SubgraphID),
		subgraphs:   sg.SubGraphs,
		SuperGraph:  sg,
	}

	for _, sub := range sg.SubGraphs {
		s.subgraphIdx[sub.Name] = SubgraphID(sub.ID)
	}

	// Pass 1: register every named type so forward references resolve.
	for _, def := range sg.Schema.Definitions {
		if err := s.registerType(def); err != nil {
			return nil, err
		}
	}

	// Pass 2: fill in fields, possible_types, keys — requires every type to
	// already have a TypeID (interfaces/unions referencing objects defined
	// later in the document).
	for _, def := range sg.Schema.Definitions {
		if err := s.populateType(def); err != nil {
			return nil, err
		}
	}

	s.computePossibleTypes()

	return s, nil
}

func (s *Store) internType(name string) TypeID {
	if id, ok := s.typeByName[name]; ok {
		return id
	}
	td := &TypeDefinition{Name: s.strings.intern(name)}
	id := TypeID(len(s.types))
	s.types = append(s.types, td)
	s.typeByName[name] = id
	return id
}

func (s *Store) registerType(def ast.Definition) error {
	switch d := def.(type) {
	case *ast.ObjectTypeDefinition:
		id := s.internType(d.Name.String())
		s.types[id].Kind = KindObject
	case *ast.ObjectTypeExtension:
		s.internType(d.Name.String())
	case *ast.InterfaceTypeDefinition:
		id := s.internType(d.Name.String())
		s.types[id].Kind = KindInterface
	case *ast.UnionTypeDefinition:
		id := s.internType(d.Name.String())
		s.types[id].Kind = KindUnion
	case *ast.EnumTypeDefinition:
		id := s.internType(d.Name.String())
		s.types[id].Kind = KindEnum
	case *ast.InputObjectTypeDefinition:
		id := s.internType(d.Name.String())
		s.types[id].Kind = KindInputObject
	case *ast.ScalarTypeDefinition:
		id := s.internType(d.Name.String())
		s.types[id].Kind = KindScalar
	}
	return nil
}

// LookupType resolves a type name to its TypeID.
func (s *Store) LookupType(name string) (TypeID, bool) {
	id, ok := s.typeByName[name]
	return id, ok
}

// MustLookupType resolves a type name and panics if undefined; used where the
// caller has already validated the name exists (e.g. against the same Store
// that produced it).
func (s *Store) MustLookupType(name string) TypeID {
	id, ok := s.typeByName[name]
	if !ok {
		panic(errUndefined(name))
	}
	return id
}

// Type returns the TypeDefinition for id. Infallible for ids obtained from
// this Store.
func (s *Store) Type(id TypeID) *TypeDefinition { return s.types[id] }

// TypeName returns the string name of a type id.
func (s *Store) TypeName(id TypeID) string { return s.strings.string(s.types[id].Name) }

// Field looks up a field by (type, name).
func (s *Store) Field(typeID TypeID, name string) (FieldID, bool) {
	td := s.types[typeID]
	if td.fieldByName == nil {
		return 0, false
	}
	id, ok := td.fieldByName[name]
	return id, ok
}

// FieldDef returns the FieldDefinition for id.
func (s *Store) FieldDef(id FieldID) *FieldDefinition { return s.fields[id] }

// FieldName returns the response/selection name of a field id.
func (s *Store) FieldName(id FieldID) string { return s.strings.string(s.fields[id].Name) }

// SubgraphID resolves a subgraph name to its id.
func (s *Store) SubgraphID(name string) (SubgraphID, bool) {
	id, ok := s.subgraphIdx[name]
	return id, ok
}

// Subgraph returns the underlying graph.SubGraphV2 for id.
func (s *Store) Subgraph(id SubgraphID) *graph.SubGraphV2 { return s.subgraphs[id] }

// Subgraphs returns every subgraph, in ascending id order.
func (s *Store) Subgraphs() []*graph.SubGraphV2 { return s.subgraphs }

// KeysFor returns the @key field sets usable as entry points for typeID in
// subgraph sg.
func (s *Store) KeysFor(typeID TypeID, sg SubgraphID) []Key {
	var out []Key
	for _, k := range s.types[typeID].keys {
		for _, r := range k.ResolvableIn {
			if r == sg {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// AllKeys returns every @key declared for typeID, across all subgraphs.
func (s *Store) AllKeys(typeID TypeID) []Key { return s.types[typeID].keys }

// IsSubtype reports whether candidate is a member of abstractType's
// possible_types (interface/union membership), in O(log n).
func (s *Store) IsSubtype(candidate, abstractType TypeID) bool {
	possible := s.types[abstractType].possibleTypes
	i := sort.Search(len(possible), func(i int) bool { return possible[i] >= candidate })
	return i < len(possible) && possible[i] == candidate
}

func (s *Store) populateType(def ast.Definition) error {
	switch d := def.(type) {
	case *ast.ObjectTypeDefinition:
		return s.populateObjectFields(d.Name.String(), d.Fields, d.Interfaces)
	case *ast.ObjectTypeExtension:
		return s.populateObjectFields(d.Name.String(), d.Fields, nil)
	case *ast.UnionTypeDefinition:
		id := s.typeByName[d.Name.String()]
		for _, m := range d.Types {
			s.types[id].members = append(s.types[id].members, s.internType(m.Name.String()))
		}
	}
	return nil
}

func (s *Store) populateObjectFields(typeName string, astFields []*ast.FieldDefinition, interfaces []*ast.NamedType) error {
	typeID, ok := s.typeByName[typeName]
	if !ok {
		return errUndefined(typeName)
	}
	td := s.types[typeID]
	if td.fieldByName == nil {
		td.fieldByName = make(map[string]FieldID)
	}
	for _, i := range interfaces {
		td.implements = append(td.implements, s.internType(i.Name.String()))
	}

	entityOwner := s.SuperGraph.GetEntityOwnerSubGraph(typeName)
	isEntity := entityOwner != nil

	for _, af := range astFields {
		name := af.Name.String()
		var fieldID FieldID
		if existing, ok := td.fieldByName[name]; ok {
			fieldID = existing
		} else {
			fd := &FieldDefinition{
				Parent:   typeID,
				Name:     s.strings.intern(name),
				existsIn: make(map[SubgraphID]*availability),
			}
			fd.baseType, fd.listDepth, fd.nonNull = s.resolveOutputType(af.Type)
			fieldID = FieldID(len(s.fields))
			s.fields = append(s.fields, fd)
			td.fields = append(td.fields, fieldID)
			td.fieldByName[name] = fieldID
		}
		fd := s.fields[fieldID]

		for _, sub := range s.subgraphs {
			exists, resolvable, provides, requires := subgraphFieldAvailability(sub, typeName, name)
			if !exists {
				continue
			}
			fd.existsIn[SubgraphID(sub.ID)] = &availability{
				resolvable: resolvable,
				provides:   ParseFieldSet(joinFields(provides)),
				requires:   ParseFieldSet(joinFields(requires)),
			}
		}
	}

	if isEntity {
		s.populateKeys(typeID, typeName)
	}
	return nil
}

func (s *Store) populateKeys(typeID TypeID, typeName string) {
	byFieldSet := make(map[string]*Key)
	var order []string
	for _, sub := range s.subgraphs {
		entity, ok := sub.GetEntity(typeName)
		if !ok {
			continue
		}
		for _, ek := range entity.Keys {
			fs := ParseFieldSet(ek.FieldSet)
			k := fs.String()
			if _, seen := byFieldSet[k]; !seen {
				byFieldSet[k] = &Key{Fields: fs}
				order = append(order, k)
			}
			if ek.Resolvable {
				byFieldSet[k].ResolvableIn = append(byFieldSet[k].ResolvableIn, SubgraphID(sub.ID))
			}
		}
	}
	// Shortest field set first (fewest fields), lexicographic tie-break, per
	// spec.md §4.4 ("shortest key wins; tie-break by field-name lexicographic
	// order").
	sort.Slice(order, func(i, j int) bool {
		a, b := byFieldSet[order[i]], byFieldSet[order[j]]
		if a.Fields.Len() != b.Fields.Len() {
			return a.Fields.Len() < b.Fields.Len()
		}
		return a.Fields.String() < b.Fields.String()
	})
	for _, k := range order {
		key := byFieldSet[k]
		sortSubgraphIDs(key.ResolvableIn)
		s.types[typeID].keys = append(s.types[typeID].keys, *key)
	}
}

func (s *Store) computePossibleTypes() {
	for typeID, td := range s.types {
		if td.Kind != KindInterface && td.Kind != KindUnion {
			continue
		}
		var members []TypeID
		if td.Kind == KindUnion {
			members = td.members
		} else {
			for candidateID, candidate := range s.types {
				if candidate.Kind != KindObject {
					continue
				}
				for _, iface := range candidate.implements {
					if int(iface) == typeID {
						members = append(members, TypeID(candidateID))
						break
					}
				}
			}
		}

		byID := append([]TypeID(nil), members...)
		sort.Slice(byID, func(i, j int) bool { return byID[i] < byID[j] })
		td.possibleTypes = byID

		byName := append([]TypeID(nil), members...)
		sort.Slice(byName, func(i, j int) bool {
			return s.TypeName(byName[i]) < s.TypeName(byName[j])
		})
		td.possibleByName = byName
	}
}

func (s *Store) resolveOutputType(t ast.Type) (base TypeID, listDepth int, nonNull bool) {
	switch typ := t.(type) {
	case *ast.NonNullType:
		b, depth, nn := s.resolveOutputType(typ.Type)
		return b, depth, nn || depth == 0
	case *ast.ListType:
		b, depth, nn := s.resolveOutputType(typ.Type)
		return b, depth + 1, nn
	case *ast.NamedType:
		return s.internType(typ.Name.String()), 0, false
	default:
		return s.internType("String"), 0, false
	}
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}

// subgraphFieldAvailability scans sub's own schema AST for typeName.fieldName
// (definition or extension) and reports whether it exists, whether it is
// resolvable (no @external), and its @provides/@requires field lists.
// Grounded on graph.SuperGraphV2.canResolveField, generalised to also report
// existence (not just resolvability) and the provides/requires lists.
func subgraphFieldAvailability(sub *graph.SubGraphV2, typeName, fieldName string) (exists, resolvable bool, provides, requires []string) {
	if entity, ok := sub.GetEntity(typeName); ok {
		if f, ok := entity.Fields[fieldName]; ok {
			return true, !f.IsExternal(), f.Provides, f.Requires
		}
	}

	for _, def := range sub.Schema.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if d.Name.String() != typeName {
				continue
			}
			for _, f := range d.Fields {
				if f.Name.String() == fieldName {
					return true, !hasDirective(f.Directives, "external"), nil, nil
				}
			}
		case *ast.ObjectTypeExtension:
			if d.Name.String() != typeName {
				continue
			}
			for _, f := range d.Fields {
				if f.Name.String() == fieldName {
					return true, !hasDirective(f.Directives, "external"), nil, nil
				}
			}
		}
	}
	return false, false, nil, nil
}

func hasDirective(directives []*ast.Directive, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}
