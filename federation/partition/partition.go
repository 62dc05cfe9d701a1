// Package partition implements the QueryPartitioner: it walks a compiled
// operation's selection set and splits it into per-subgraph partitions,
// inserting the boundary fields (entity steps) and @key fields needed to
// stitch results back together. It generalizes the teacher's
// federation/planner package (field-ownership grouping keyed by subgraph
// name) to operate on the typed federation/schema.Store instead of raw
// ownership-map string lookups.
//
// @skip/@include are evaluated against the operation's bound variables
// before any ownership analysis runs (pruneSkipInclude): an excluded field
// is removed from the selection tree entirely, at every depth, so it never
// influences entity-boundary detection and is never sent to a subgraph.
// A field that survives keeps its directives, @skip/@include included, and
// federation/subgraphcall's renderer forwards them verbatim.
package partition

import (
	"fmt"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"
)

// Partition is one subgraph-bound unit of work: either a set of root fields
// (Kind == Root) or an entity-resolution step reached via a parent
// partition's boundary field (Kind == Entity).
type Partition struct {
	ID            int
	Kind          Kind
	Subgraph      schema.SubgraphID
	ParentType    schema.TypeID
	EntityTypeName string // set for Kind == Entity: the type name the _entities query targets
	Selections    []ast.Selection
	Path          []string // response-key path from the operation root
	InsertionPath []string // where, in the parent partition's response, representations are built from
	DependsOn     []int    // filled in by federation/solve; left empty here

	// MutationSeq is the 1-based position of this partition among root
	// mutation partitions, in original query field order; 0 for query
	// operations and entity partitions. federation/solve chains consecutive
	// MutationSeq values with a MutationExecutedAfter edge so mutation root
	// fields keep executing in query order even when they alternate between
	// subgraphs.
	MutationSeq int

	// Extras maps a "."-joined selection-set path (relative to this
	// partition's own selections) to the field names the partitioner
	// injected into it (always "__typename" plus a @key's fields). The
	// ShapeBuilder marks these PositionedResponseKey-less so they sort last
	// and are dropped from the final serialisation (spec.md §4.5).
	Extras map[string][]string
}

// Kind distinguishes root-field partitions from entity partitions.
type Kind uint8

const (
	Root Kind = iota
	Entity
)

// Error reports a partitioning failure, e.g. a field with no subgraph able
// to resolve it (should not happen for a validated operation, but a
// composition bug could still produce one).
type Error struct {
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("partition: %s", e.Detail) }

// Partitioner splits compiled operations into per-subgraph partitions.
type Partitioner struct {
	Store *schema.Store
}

// New builds a Partitioner over store.
func New(store *schema.Store) *Partitioner {
	return &Partitioner{Store: store}
}

// Partition splits op's selection set into root and entity partitions. It
// first expands fragment spreads against fragments and prunes fields
// excluded by @skip/@include against variables.
func (p *Partitioner) Partition(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition, rootType schema.TypeID, variables map[string]any) ([]*Partition, error) {
	nextID := 0
	var partitions []*Partition

	expanded := expandFragments(op.SelectionSet, fragments)
	expanded = pruneSkipInclude(expanded, variables)
	rootTypeName := p.Store.TypeName(rootType)

	var roots []*Partition
	if string(op.Operation) == "mutation" {
		var err error
		roots, err = p.partitionMutationRoots(expanded, rootType, rootTypeName, &nextID)
		if err != nil {
			return nil, err
		}
	} else {
		bySubgraph := make(map[schema.SubgraphID][]ast.Selection)
		var subgraphOrder []schema.SubgraphID
		seen := make(map[schema.SubgraphID]bool)

		for _, sel := range expanded {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			fieldName := field.Name.String()
			if fieldName == "__typename" {
				continue
			}
			subs := p.Store.SuperGraph.GetSubGraphsForField(rootTypeName, fieldName)
			if len(subs) == 0 {
				return nil, &Error{Detail: fmt.Sprintf("no subgraph can resolve %s.%s", rootTypeName, fieldName)}
			}
			sg := schema.SubgraphID(subs[0].ID)
			if !seen[sg] {
				seen[sg] = true
				subgraphOrder = append(subgraphOrder, sg)
			}
			bySubgraph[sg] = append(bySubgraph[sg], field)
		}

		for _, sg := range subgraphOrder {
			part := &Partition{
				ID:         nextID,
				Kind:       Root,
				Subgraph:   sg,
				ParentType: rootType,
				Selections: bySubgraph[sg],
			}
			nextID++
			roots = append(roots, part)
		}
	}

	for _, part := range roots {
		partitions = append(partitions, part)
		children, err := p.findEntitySteps(part, rootType, part.Selections, nil, &nextID)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, children...)
	}

	return partitions, nil
}

// partitionMutationRoots walks root mutation fields in original query
// position order and gives each one its own Partition, numbered with
// MutationSeq so federation/solve can chain them with a
// MutationExecutedAfter edge regardless of which subgraph resolves them.
// Grounded on grafbase's ensure_mutation_execution_order (see
// original_source/crates/engine/query-solver/src/post_process/mutation_order.rs),
// whose invariant is that the observed order of subgraph side-effects on
// root mutation fields matches their textual order. Two fields sharing a
// subgraph still get separate Partitions/HTTP calls — each mutation field
// may have its own side effect, and collapsing a same-subgraph run into one
// call would reorder those side effects relative to any mutation field from
// a different subgraph interleaved between them.
func (p *Partitioner) partitionMutationRoots(selections []ast.Selection, rootType schema.TypeID, rootTypeName string, nextID *int) ([]*Partition, error) {
	var out []*Partition
	seq := 0

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		fieldName := field.Name.String()
		if fieldName == "__typename" {
			continue
		}
		subs := p.Store.SuperGraph.GetSubGraphsForField(rootTypeName, fieldName)
		if len(subs) == 0 {
			return nil, &Error{Detail: fmt.Sprintf("no subgraph can resolve %s.%s", rootTypeName, fieldName)}
		}
		sg := schema.SubgraphID(subs[0].ID)

		seq++
		out = append(out, &Partition{
			ID:          *nextID,
			Kind:        Root,
			Subgraph:    sg,
			ParentType:  rootType,
			Selections:  []ast.Selection{field},
			MutationSeq: seq,
		})
		*nextID++
	}

	return out, nil
}

// findEntitySteps walks selections (all resolvable, at this point, in
// parent.Subgraph against parentType) looking for boundary fields: object
// fields whose own sub-selections contain names parent.Subgraph cannot
// resolve. It mutates each *ast.Field's SelectionSet in place, stripping out
// foreign-subgraph fields (replaced by @key + __typename, injected via
// injectKeyFields) and recurses into whatever remains local so deeper
// boundaries (a subgraph-A -> subgraph-B -> subgraph-C chain) are also
// found. It returns the Entity partitions it carved out.
func (p *Partitioner) findEntitySteps(parent *Partition, parentType schema.TypeID, selections []ast.Selection, path []string, nextID *int) ([]*Partition, error) {
	var out []*Partition

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok || len(field.SelectionSet) == 0 {
			continue
		}
		fieldName := field.Name.String()
		if fieldName == "__typename" {
			continue
		}
		fieldID, ok := p.Store.Field(parentType, fieldName)
		if !ok {
			continue
		}
		childType, _, _ := p.Store.FieldDef(fieldID).OutputType()
		childPath := append(append([]string(nil), path...), responseKey(field))

		injectedFrom := len(field.SelectionSet)
		retained, boundary, err := p.splitByOwnership(parent, childType, field.SelectionSet, childPath, nextID)
		if err != nil {
			return nil, err
		}
		// Keep the __typename/@key fields injectKeyFields appended to field.
		field.SelectionSet = append(retained, field.SelectionSet[injectedFrom:]...)
		out = append(out, boundary...)

		nested, err := p.findEntitySteps(parent, childType, retained, childPath, nextID)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}

	return out, nil
}

// splitByOwnership splits selections (under childType) into the subset
// parent.Subgraph can resolve (retained) and the rest, grouped by the
// subgraph that can resolve each (carved into new Entity partitions, with
// the parent's shortest usable @key injected at insertionPath).
func (p *Partitioner) splitByOwnership(parent *Partition, childType schema.TypeID, selections []ast.Selection, insertionPath []string, nextID *int) (retained []ast.Selection, partitions []*Partition, err error) {
	foreign := make(map[schema.SubgraphID][]ast.Selection)
	var foreignOrder []schema.SubgraphID
	seen := make(map[schema.SubgraphID]bool)

	for _, sel := range selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			retained = append(retained, sel)
			continue
		}
		name := field.Name.String()
		if name == "__typename" {
			retained = append(retained, sel)
			continue
		}
		fieldID, ok := p.Store.Field(childType, name)
		if !ok {
			retained = append(retained, sel)
			continue
		}
		fd := p.Store.FieldDef(fieldID)
		if fd.ResolvableIn(parent.Subgraph) {
			retained = append(retained, sel)
			continue
		}
		resolvable := fd.ResolvableSubgraphs()
		if len(resolvable) == 0 {
			return nil, nil, &Error{Detail: fmt.Sprintf("no subgraph can resolve %s.%s", p.Store.TypeName(childType), name)}
		}
		sg := resolvable[0]
		if !seen[sg] {
			seen[sg] = true
			foreignOrder = append(foreignOrder, sg)
		}
		foreign[sg] = append(foreign[sg], field)
	}

	for _, sg := range foreignOrder {
		keys := p.Store.KeysFor(childType, sg)
		if len(keys) == 0 {
			return nil, nil, &Error{Detail: fmt.Sprintf("%s has no usable @key resolvable in subgraph %d", p.Store.TypeName(childType), sg)}
		}
		key := keys[0] // shortest-key-first order is established by schema.Store.populateKeys
		injectKeyFields(parent, insertionPath, key)

		part := &Partition{
			ID:             *nextID,
			Kind:           Entity,
			Subgraph:       sg,
			ParentType:     childType,
			EntityTypeName: p.Store.TypeName(childType),
			Selections:     foreign[sg],
			Path:           insertionPath,
			InsertionPath:  insertionPath,
		}
		*nextID++
		partitions = append(partitions, part)

		nested, err := p.findEntitySteps(part, childType, foreign[sg], insertionPath, nextID)
		if err != nil {
			return nil, nil, err
		}
		partitions = append(partitions, nested...)
	}

	return retained, partitions, nil
}

func responseKey(field *ast.Field) string {
	if field.Alias != nil && field.Alias.String() != "" {
		return field.Alias.String()
	}
	return field.Name.String()
}

// injectKeyFields walks parent.Selections along path and appends the key's
// fields (plus __typename) to the field found at the end of the path,
// creating any missing intermediate fields. Grounded on
// federation/planner/planner_v2.go's ensureAndInjectKeyFields, generalised
// to take a schema.Key instead of a []string.
func injectKeyFields(parent *Partition, path []string, key schema.Key) {
	if len(path) == 0 {
		return
	}
	if parent.Extras == nil {
		parent.Extras = make(map[string][]string)
	}
	pathKey := joinPath(path)
	injected := append([]string{"__typename"}, key.Fields.Fields()...)
	parent.Extras[pathKey] = append(parent.Extras[pathKey], injected...)
	parent.Selections = ensureAndInject(parent.Selections, path, key.Fields.Fields())
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

func ensureAndInject(selections []ast.Selection, path []string, keyFields []string) []ast.Selection {
	target := path[0]
	var targetField *ast.Field
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok && responseKey(f) == target {
			targetField = f
			break
		}
	}
	if targetField == nil {
		targetField = &ast.Field{
			Name: &ast.Name{
				Token: token.Token{Type: token.IDENT, Literal: target},
				Value: target,
			},
			SelectionSet: make([]ast.Selection, 0),
		}
		selections = append(selections, targetField)
	}

	if len(path) == 1 {
		existing := make(map[string]bool)
		hasTypename := false
		for _, sel := range targetField.SelectionSet {
			if f, ok := sel.(*ast.Field); ok {
				existing[f.Name.String()] = true
				if f.Name.String() == "__typename" {
					hasTypename = true
				}
			}
		}
		if !hasTypename {
			targetField.SelectionSet = append(targetField.SelectionSet, &ast.Field{
				Name: &ast.Name{Token: token.Token{Type: token.IDENT, Literal: "__typename"}, Value: "__typename"},
			})
		}
		for _, kf := range keyFields {
			if !existing[kf] {
				targetField.SelectionSet = append(targetField.SelectionSet, &ast.Field{
					Name: &ast.Name{Token: token.Token{Type: token.IDENT, Literal: kf}, Value: kf},
				})
			}
		}
	} else {
		targetField.SelectionSet = ensureAndInject(targetField.SelectionSet, path[1:], keyFields)
	}
	return selections
}

// pruneSkipInclude walks selections recursively, dropping any field excluded
// by an @skip(if:)/@include(if:) directive evaluated against variables, and
// recursing into the selection sets of fields that survive. Evaluated once,
// up front, before ownership analysis, so an excluded field never reaches
// entity-boundary detection or a subgraph request. Grounded on grafbase's
// gateway-side skip/include evaluation (original_source's
// crates/integration-tests/tests/gateway/composite/derive/skip_include.rs
// exercises exactly this: the gateway itself decides inclusion from request
// variables rather than leaving it purely to each subgraph).
func pruneSkipInclude(selections []ast.Selection, variables map[string]any) []ast.Selection {
	var out []ast.Selection
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			if !isIncluded(s.Directives, variables) {
				continue
			}
			if len(s.SelectionSet) > 0 {
				s.SelectionSet = pruneSkipInclude(s.SelectionSet, variables)
			}
			out = append(out, s)
		case *ast.InlineFragment:
			s.SelectionSet = pruneSkipInclude(s.SelectionSet, variables)
			out = append(out, s)
		default:
			out = append(out, sel)
		}
	}
	return out
}

// isIncluded reports whether a field carrying directives should survive
// pruning: false if any @skip evaluates true, or any @include evaluates
// false. A directive argument that isn't a boolean literal or a bound
// boolean variable defaults to the directive's base GraphQL semantics (skip
// defaults to not skipping, include defaults to including).
func isIncluded(directives []*ast.Directive, variables map[string]any) bool {
	for _, d := range directives {
		switch d.Name {
		case "skip":
			if directiveIfArg(d, variables, false) {
				return false
			}
		case "include":
			if !directiveIfArg(d, variables, true) {
				return false
			}
		}
	}
	return true
}

// directiveIfArg evaluates a @skip/@include directive's "if" argument,
// falling back to def when the argument is neither a boolean literal nor a
// variable bound to a boolean.
func directiveIfArg(d *ast.Directive, variables map[string]any, def bool) bool {
	for _, arg := range d.Arguments {
		if arg.Name.String() != "if" {
			continue
		}
		switch v := arg.Value.(type) {
		case *ast.BooleanValue:
			return v.Value
		case *ast.Variable:
			if b, ok := variables[v.Name].(bool); ok {
				return b
			}
		}
	}
	return def
}

// expandFragments inlines fragment spreads and keeps inline fragments as-is
// (the scheduler/ingester resolve type conditions against the runtime
// __typename). Grounded on planner_v2.go's expandFragmentsInSelections.
func expandFragments(selections []ast.Selection, fragments map[string]*ast.FragmentDefinition) []ast.Selection {
	var out []ast.Selection
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.FragmentSpread:
			if def, ok := fragments[s.Name.String()]; ok {
				out = append(out, expandFragments(def.SelectionSet, fragments)...)
			}
		case *ast.InlineFragment:
			s.SelectionSet = expandFragments(s.SelectionSet, fragments)
			out = append(out, s)
		default:
			out = append(out, sel)
		}
	}
	return out
}
