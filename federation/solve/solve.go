// Package solve implements the DependencySolver: it turns the flat list of
// partitions produced by federation/partition into a DAG (entity partitions
// depend on the partition whose response they were carved out of) and
// linearizes mutation root partitions so they keep executing in original
// query-field order, per spec.md §4.4. Grounded on the teacher's
// federation/executor/executor_v2.go Kahn's-algorithm DAG validation
// (reused here for cycle detection) and on grafbase's
// ensure_mutation_execution_order (original_source/.../mutation_order.rs)
// for the mutation-serialization edges.
package solve

import (
	"fmt"
	"sort"

	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
)

// Plan is the solved, ready-to-schedule DAG: partitions plus their resolved
// DependsOn edges, in an order where every dependency already precedes its
// dependents (topological order).
type Plan struct {
	Partitions []*partition.Partition
}

// Error reports that the partitions could not be linearized into a DAG, e.g.
// because dependency edges form a cycle (spec.md: PlanError::UnresolvableDependencies).
type Error struct {
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("solve: %s", e.Detail) }

// Solve assigns DependsOn edges and returns partitions in topological order.
func Solve(parts []*partition.Partition) (*Plan, error) {
	byID := make(map[int]*partition.Partition, len(parts))
	for _, p := range parts {
		byID[p.ID] = p
	}

	// Structural edges: an Entity partition depends on whichever partition
	// owns its InsertionPath. Since federation/partition emits parents
	// before the children carved out of them, the nearest preceding
	// partition with a path that is a strict prefix of this one's
	// InsertionPath is its parent.
	for i, p := range parts {
		if p.Kind != partition.Entity {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if len(parts[j].Path) < len(p.InsertionPath) && isPrefix(parts[j].Path, p.InsertionPath) {
				p.DependsOn = append(p.DependsOn, parts[j].ID)
				break
			}
		}
	}

	// Mutation linearization: chain consecutive MutationSeq partitions so a
	// later mutation root field never starts before an earlier one
	// completes, even across subgraphs.
	var mutationRoots []*partition.Partition
	for _, p := range parts {
		if p.MutationSeq > 0 {
			mutationRoots = append(mutationRoots, p)
		}
	}
	sort.Slice(mutationRoots, func(i, j int) bool { return mutationRoots[i].MutationSeq < mutationRoots[j].MutationSeq })
	for i := 1; i < len(mutationRoots); i++ {
		mutationRoots[i].DependsOn = append(mutationRoots[i].DependsOn, mutationRoots[i-1].ID)
	}

	ordered, err := topoSort(parts, byID)
	if err != nil {
		return nil, err
	}

	return &Plan{Partitions: ordered}, nil
}

func isPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, v := range prefix {
		if path[i] != v {
			return false
		}
	}
	return true
}

// topoSort orders partitions via Kahn's algorithm, grounded on
// federation/executor/executor_v2.go's validateDAG.
func topoSort(parts []*partition.Partition, byID map[int]*partition.Partition) ([]*partition.Partition, error) {
	inDegree := make(map[int]int, len(parts))
	dependents := make(map[int][]int, len(parts))
	for _, p := range parts {
		inDegree[p.ID] = len(p.DependsOn)
		for _, dep := range p.DependsOn {
			dependents[dep] = append(dependents[dep], p.ID)
		}
	}

	var queue []int
	for _, p := range parts {
		if inDegree[p.ID] == 0 {
			queue = append(queue, p.ID)
		}
	}
	sort.Ints(queue)

	var ordered []*partition.Partition
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])
		next := append([]int(nil), dependents[id]...)
		sort.Ints(next)
		for _, depID := range next {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
				sort.Ints(queue)
			}
		}
	}

	if len(ordered) != len(parts) {
		return nil, &Error{Detail: "dependency graph contains a cycle (unresolvable dependencies)"}
	}
	return ordered, nil
}
