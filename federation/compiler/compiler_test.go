package compiler_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/compiler"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

func buildTestStore(t *testing.T) *schema.Store {
	t.Helper()

	productSchema := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
			price: Float!
		}

		type Query {
			product(id: ID!): Product
		}

		type Mutation {
			setPrice(id: ID!, price: Float!): Product
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

func TestCompile_Query(t *testing.T) {
	store := buildTestStore(t)

	query := `query GetProduct($id: ID!) {
		product(id: $id) {
			name
			reviews {
				rating
			}
		}
	}`

	compiled, err := compiler.Compile(store, query, "", map[string]any{"id": "1"}, compiler.Limits{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if compiled.OperationType != "query" {
		t.Errorf("expected operation type query, got %s", compiled.OperationType)
	}
	if compiled.Depth == 0 {
		t.Error("expected non-zero depth")
	}
}

func TestCompile_UnknownField(t *testing.T) {
	store := buildTestStore(t)

	query := `{ product(id: "1") { doesNotExist } }`

	_, err := compiler.Compile(store, query, "", nil, compiler.Limits{})
	if err == nil {
		t.Fatal("expected an error for an unknown field")
	}
	cerr, ok := err.(*compiler.Error)
	if !ok {
		t.Fatalf("expected *compiler.Error, got %T", err)
	}
	if cerr.Kind != compiler.ValidationError {
		t.Errorf("expected ValidationError, got %v", cerr.Kind)
	}
}

func TestCompile_AmbiguousOperationName(t *testing.T) {
	store := buildTestStore(t)

	query := `
		query One { product(id: "1") { name } }
		query Two { product(id: "2") { name } }
	`

	_, err := compiler.Compile(store, query, "", nil, compiler.Limits{})
	if err == nil {
		t.Fatal("expected an error when operationName is required but omitted")
	}

	compiled, err := compiler.Compile(store, query, "Two", nil, compiler.Limits{})
	if err != nil {
		t.Fatalf("Compile with explicit operationName failed: %v", err)
	}
	if compiled.Operation.Name.String() != "Two" {
		t.Errorf("expected operation Two to be selected, got %s", compiled.Operation.Name.String())
	}
}

func TestCompile_DepthLimitExceeded(t *testing.T) {
	store := buildTestStore(t)

	query := `{ product(id: "1") { reviews { rating } } }`

	_, err := compiler.Compile(store, query, "", nil, compiler.Limits{MaxDepth: 1})
	if err == nil {
		t.Fatal("expected a depth limit error")
	}
	cerr, ok := err.(*compiler.Error)
	if !ok || cerr.Kind != compiler.LimitExceeded {
		t.Fatalf("expected LimitExceeded, got %v", err)
	}
}

func TestCompile_Mutation(t *testing.T) {
	store := buildTestStore(t)

	query := `mutation { setPrice(id: "1", price: 9.99) { id } }`

	compiled, err := compiler.Compile(store, query, "", nil, compiler.Limits{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if compiled.OperationType != "mutation" {
		t.Errorf("expected mutation, got %s", compiled.OperationType)
	}
}
