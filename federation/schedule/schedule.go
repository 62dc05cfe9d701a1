// Package schedule implements the Scheduler: it drives a solved DAG of
// partitions to completion, respecting dependency edges (including mutation
// linearization, already encoded as DependsOn edges by federation/solve),
// bounded by a per-subgraph concurrency semaphore owned by
// federation/subgraphcall. Grounded on
// federation/executor/executor_v2.go's level-by-level errgroup execution
// (Execute/executeSteps/findReadySteps) and merger.go's path-based deep
// merge, generalized to operate on federation/partition.Partition and
// federation/ingest results instead of planner.StepV2.
package schedule

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/n9te9/go-graphql-federation-gateway/federation/ingest"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/shape"
	"github.com/n9te9/go-graphql-federation-gateway/federation/solve"
	"github.com/n9te9/go-graphql-federation-gateway/federation/subgraphcall"
	"golang.org/x/sync/errgroup"
)

// Scheduler drives a solve.Plan to completion.
type Scheduler struct {
	Caller *subgraphcall.Caller
}

// New builds a Scheduler over caller.
func New(caller *subgraphcall.Caller) *Scheduler {
	return &Scheduler{Caller: caller}
}

type runState struct {
	mu        sync.Mutex
	results   map[int]*ingest.Result
	completed map[int]bool
	data      map[string]any // merged, pruned response tree rooted at "data"
	errors    []ingest.GraphQLError
}

// Run executes plan's partitions to completion and returns the merged
// response data plus the accumulated error list.
func (s *Scheduler) Run(ctx context.Context, plan *solve.Plan, operationType string, variables map[string]any, headers http.Header) (map[string]any, []ingest.GraphQLError, error) {
	st := &runState{
		results:   make(map[int]*ingest.Result),
		completed: make(map[int]bool),
		data:      make(map[string]any),
	}

	byID := make(map[int]*partition.Partition, len(plan.Partitions))
	shapes := make(map[int]*shape.ObjectShape, len(plan.Partitions))
	for _, p := range plan.Partitions {
		byID[p.ID] = p
		shapes[p.ID] = shape.Build(p)
	}

	remaining := append([]*partition.Partition(nil), plan.Partitions...)
	for len(remaining) > 0 {
		ready, rest := splitReady(remaining, st)
		if len(ready) == 0 {
			return nil, nil, fmt.Errorf("schedule: no partitions ready, %d left (dependency deadlock)", len(remaining))
		}
		remaining = rest

		eg, egCtx := errgroup.WithContext(ctx)
		for _, p := range ready {
			p := p
			eg.Go(func() error {
				return s.runOne(egCtx, st, byID, shapes, p, operationType, variables, headers)
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, nil, err
		}
	}

	return st.data, st.errors, nil
}

func splitReady(pending []*partition.Partition, st *runState) (ready, rest []*partition.Partition) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, p := range pending {
		allDone := true
		for _, dep := range p.DependsOn {
			if !st.completed[dep] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, p)
		} else {
			rest = append(rest, p)
		}
	}
	return ready, rest
}

func (s *Scheduler) runOne(ctx context.Context, st *runState, byID map[int]*partition.Partition, shapes map[int]*shape.ObjectShape, p *partition.Partition, operationType string, variables map[string]any, headers http.Header) error {
	var representations []map[string]any

	if p.Kind == partition.Entity {
		st.mu.Lock()
		var parentRaw any
		var keyFields []string
		for _, dep := range p.DependsOn {
			if r, ok := st.results[dep]; ok {
				parentRaw = r.Raw
				keyFields = byID[dep].Extras[strings.Join(p.InsertionPath, ".")]
			}
		}
		st.mu.Unlock()
		representations = buildRepresentations(parentRaw, p.InsertionPath, p.EntityTypeName, keyFields)
		if len(representations) == 0 {
			st.mu.Lock()
			st.results[p.ID] = &ingest.Result{}
			st.completed[p.ID] = true
			st.mu.Unlock()
			return nil
		}
	}

	raw, err := s.Caller.Call(ctx, p, operationType, variables, representations, headers)
	if err != nil {
		st.mu.Lock()
		st.errors = append(st.errors, ingest.GraphQLError{Message: err.Error(), Path: pathToAny(p.InsertionPath)})
		st.completed[p.ID] = true
		st.mu.Unlock()
		return nil
	}

	result, err := ingest.Ingest(p, shapes[p.ID], raw, representations)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.results[p.ID] = result
	st.completed[p.ID] = true
	st.errors = append(st.errors, result.Errors...)
	if p.Kind == partition.Root {
		if obj, ok := result.Data.(map[string]any); ok {
			for k, v := range obj {
				st.data[k] = v
			}
		}
	} else {
		mergeAtPath(st.data, p.InsertionPath, result.Data)
	}
	st.mu.Unlock()

	return nil
}

// buildRepresentations navigates raw along path (a sequence of field names)
// and collects every object found at the end of the path (flattening
// through list layers), emitting a _entities representation
// (__typename + the key fields named in keyFields) for each. Grounded on
// federation/executor/executor_v2.go's navigatePathWithArrays/buildRepresentation.
func buildRepresentations(raw any, path []string, typeName string, keyFields []string) []map[string]any {
	var reps []map[string]any
	for _, n := range navigate(raw, path) {
		obj, ok := n.(map[string]any)
		if !ok || obj == nil {
			continue
		}
		rep := map[string]any{"__typename": typeName}
		for _, k := range keyFields {
			if v, ok := obj[k]; ok && k != "__typename" {
				rep[k] = v
			}
		}
		reps = append(reps, rep)
	}
	return reps
}

// navigate walks raw along path (a sequence of field names), flattening
// through any list layers, and returns every node found at the end of the
// path in encounter order. Used both to collect representations for an
// entity fetch and, symmetrically, to find the leaves its response must be
// merged back into — so both directions of an entity fetch see the same
// flattening regardless of whether the path crosses a list field.
func navigate(raw any, path []string) []any {
	nodes := []any{raw}
	for _, segment := range path {
		var next []any
		for _, n := range nodes {
			next = append(next, descend(n, segment)...)
		}
		nodes = next
	}
	return nodes
}

func descend(n any, field string) []any {
	switch v := n.(type) {
	case map[string]any:
		if child, ok := v[field]; ok {
			return flatten(child)
		}
		return nil
	case []any:
		var out []any
		for _, e := range v {
			out = append(out, descend(e, field)...)
		}
		return out
	default:
		return nil
	}
}

func flatten(v any) []any {
	if list, ok := v.([]any); ok {
		var out []any
		for _, e := range list {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []any{v}
}

// mergeAtPath splices value (one entry per representation, in the same
// order navigate produced them) into the leaves navigate(target, path)
// finds, merging object fields rather than overwriting them (an entity
// fetch only ever adds fields to an object already placed by its parent
// partition). This mirrors buildRepresentations' traversal exactly, so a
// parent field's list-ness at any point along path — including the common
// case where the field the entity hangs off is itself singular, not a list
// — never desyncs the two directions of an entity fetch. Grounded on
// federation/executor/merger.go's path-based deep merge, generalized to
// walk list layers with navigate instead of assuming path points straight
// at a single map or a single list.
func mergeAtPath(target map[string]any, path []string, value any) {
	values, ok := value.([]any)
	if !ok {
		return
	}
	leaves := navigate(any(target), path)
	for i, leaf := range leaves {
		if i >= len(values) {
			return
		}
		dstObj, ok := leaf.(map[string]any)
		if !ok {
			continue
		}
		srcObj, ok := values[i].(map[string]any)
		if !ok {
			continue
		}
		for k, v := range srcObj {
			dstObj[k] = v
		}
	}
}

func pathToAny(path []string) []any {
	out := make([]any, len(path))
	for i, p := range path {
		out[i] = p
	}
	return out
}
