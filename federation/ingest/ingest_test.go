package ingest_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/compiler"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/ingest"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/shape"
	"github.com/n9te9/go-graphql-federation-gateway/federation/subgraphcall"
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
	`

	sg, err := graph.NewSubGraphV2("product", []byte(productSchema), "http://product.example.com")
	if err != nil {
		t.Fatalf("NewSubGraphV2 failed: %v", err)
	}
	superGraph, err := graph.NewSuperGraphV2([]*graph.SubGraphV2{sg})
	if err != nil {
		t.Fatalf("NewSuperGraphV2 failed: %v", err)
	}
	store, err := schema.Build(superGraph)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return store
}

func rootPartition(t *testing.T, store *schema.Store, query string) *partition.Partition {
	t.Helper()
	compiled, err := compiler.Compile(store, query, "", nil, compiler.Limits{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	parts, err := partition.New(store).Partition(compiled.Operation, compiled.Fragments, compiled.RootType, compiled.Variables)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	return parts[0]
}

func TestIngest_RootQuery(t *testing.T) {
	store := buildTestStore(t)
	part := rootPartition(t, store, `{ product(id: "1") { name } }`)
	sh := shape.Build(part)

	raw := &subgraphcall.Result{Status: 200, Body: []byte(`{"data":{"product":{"name":"widget"}}}`)}

	result, err := ingest.Ingest(part, sh, raw, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}

	data, ok := result.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", result.Data)
	}
	product, ok := data["product"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested product map, got %T", data["product"])
	}
	if product["name"] != "widget" {
		t.Errorf("expected name widget, got %v", product["name"])
	}
}

func TestIngest_SubgraphErrorsRebased(t *testing.T) {
	store := buildTestStore(t)
	part := rootPartition(t, store, `{ product(id: "1") { name } }`)
	sh := shape.Build(part)

	raw := &subgraphcall.Result{Status: 200, Body: []byte(`{"data":null,"errors":[{"message":"boom","path":["product","name"]}]}`)}

	result, err := ingest.Ingest(part, sh, raw, nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
	if result.Errors[0].Message != "boom" {
		t.Errorf("expected message boom, got %s", result.Errors[0].Message)
	}
	if path := result.Errors[0].Path; len(path) != 2 || path[0] != "product" || path[1] != "name" {
		t.Errorf("expected path [product name], got %v", path)
	}
}

func TestIngest_EntityArrayShortReportsError(t *testing.T) {
	store := buildTestStore(t)
	compiled, err := compiler.Compile(store, `{ product(id: "1") { name } }`, "", nil, compiler.Limits{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	parts, err := partition.New(store).Partition(compiled.Operation, compiled.Fragments, compiled.RootType, compiled.Variables)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	entityPart := &partition.Partition{
		Kind:           partition.Entity,
		EntityTypeName: "Product",
		Selections:     parts[0].Selections,
		InsertionPath:  []string{"product"},
	}
	sh := shape.Build(entityPart)

	raw := &subgraphcall.Result{Status: 200, Body: []byte(`{"data":{"_entities":[]}}`)}
	representations := []map[string]any{{"__typename": "Product", "id": "1"}}

	result, err := ingest.Ingest(entityPart, sh, raw, representations)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 'expected more entities' error, got %d", len(result.Errors))
	}
}
