package solve_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/compiler"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/solve"
)

func buildTestStore(t *testing.T) *schema.Store {
	t.Helper()

	productSchema := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
		}

		type Query {
			product(id: ID!): Product
		}

		type Mutation {
			rename(id: ID!, name: String!): Product
			touch(id: ID!): Product
		}
	`

	reviewSchema := `
		extend type Product @key(fields: "id") {
			id: ID! @external
			reviews: [Review!]!
		}

		type Review {
			id: ID!
			rating: Int!
		}

		extend type Mutation {
			rate(id: ID!, rating: Int!): Review
		}
	`

	productSG, err := graph.NewSubGraphV2("product", []byte(productSchema), "http://product.example.com")
	if err != nil {
		t.Fatalf("NewSubGraphV2(product) failed: %v", err)
	}
	reviewSG, err := graph.NewSubGraphV2("review", []byte(reviewSchema), "http://review.example.com")
	if err != nil {
		t.Fatalf("NewSubGraphV2(review) failed: %v", err)
	}

	sg, err := graph.NewSuperGraphV2([]*graph.SubGraphV2{productSG, reviewSG})
	if err != nil {
		t.Fatalf("NewSuperGraphV2 failed: %v", err)
	}

	store, err := schema.Build(sg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return store
}

func plan(t *testing.T, store *schema.Store, query string) *solve.Plan {
	t.Helper()

	compiled, err := compiler.Compile(store, query, "", nil, compiler.Limits{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	parts, err := partition.New(store).Partition(compiled.Operation, compiled.Fragments, compiled.RootType, compiled.Variables)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	p, err := solve.Solve(parts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	return p
}

func TestSolve_EntityDependsOnParent(t *testing.T) {
	store := buildTestStore(t)
	p := plan(t, store, `{ product(id: "1") { name reviews { rating } } }`)

	if len(p.Partitions) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(p.Partitions))
	}

	root := p.Partitions[0]
	entity := p.Partitions[1]

	if len(entity.DependsOn) != 1 || entity.DependsOn[0] != root.ID {
		t.Errorf("expected the entity step to depend on the root partition, got DependsOn=%v", entity.DependsOn)
	}
}

func TestSolve_MutationLinearization(t *testing.T) {
	store := buildTestStore(t)
	p := plan(t, store, `mutation { rename(id: "1", name: "x") { id } rate(id: "1", rating: 5) { id } }`)

	var mutationRoots []int
	for _, part := range p.Partitions {
		if part.MutationSeq > 0 {
			mutationRoots = append(mutationRoots, part.ID)
		}
	}
	if len(mutationRoots) != 2 {
		t.Fatalf("expected 2 mutation root partitions, got %d", len(mutationRoots))
	}

	byID := make(map[int]int)
	for _, part := range p.Partitions {
		byID[part.ID] = part.MutationSeq
	}

	var second int
	for _, part := range p.Partitions {
		if part.MutationSeq == 2 {
			second = part.ID
		}
	}
	var firstPartitionID int
	for _, part := range p.Partitions {
		if part.MutationSeq == 1 {
			firstPartitionID = part.ID
		}
	}

	var found bool
	for _, part := range p.Partitions {
		if part.ID == second {
			for _, dep := range part.DependsOn {
				if dep == firstPartitionID {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected the second mutation root to depend on the first")
	}
}

// TestSolve_MutationLinearizationSameSubgraph covers spec.md §8 scenario 4:
// consecutive root mutation fields resolved by the *same* subgraph must
// still become separate, DependsOn-chained partitions, not one merged call.
func TestSolve_MutationLinearizationSameSubgraph(t *testing.T) {
	store := buildTestStore(t)
	p := plan(t, store, `mutation { rename(id: "1", name: "x") { id } touch(id: "1") { id } }`)

	var mutationRoots []*partitionRef
	for _, part := range p.Partitions {
		if part.MutationSeq > 0 {
			mutationRoots = append(mutationRoots, &partitionRef{id: part.ID, seq: part.MutationSeq, dependsOn: part.DependsOn, subgraph: part.Subgraph})
		}
	}
	if len(mutationRoots) != 2 {
		t.Fatalf("expected 2 separate mutation partitions even though both fields share a subgraph, got %d", len(mutationRoots))
	}

	var first, second *partitionRef
	for _, r := range mutationRoots {
		if r.seq == 1 {
			first = r
		}
		if r.seq == 2 {
			second = r
		}
	}
	if first == nil || second == nil {
		t.Fatalf("expected MutationSeq 1 and 2, got %+v", mutationRoots)
	}
	if first.subgraph != second.subgraph {
		t.Fatalf("expected both mutation fields to resolve to the same subgraph for this test, got %v and %v", first.subgraph, second.subgraph)
	}

	var dependsOnFirst bool
	for _, dep := range second.dependsOn {
		if dep == first.id {
			dependsOnFirst = true
		}
	}
	if !dependsOnFirst {
		t.Errorf("expected the second same-subgraph mutation field to depend on the first, got DependsOn=%v", second.dependsOn)
	}
}

type partitionRef struct {
	id        int
	seq       int
	dependsOn []int
	subgraph  schema.SubgraphID
}

func TestSolve_TopologicalOrder(t *testing.T) {
	store := buildTestStore(t)
	p := plan(t, store, `{ product(id: "1") { name reviews { rating } } }`)

	seen := make(map[int]bool)
	for _, part := range p.Partitions {
		for _, dep := range part.DependsOn {
			if !seen[dep] {
				t.Fatalf("partition %d depends on %d which has not appeared yet in the plan order", part.ID, dep)
			}
		}
		seen[part.ID] = true
	}
}
