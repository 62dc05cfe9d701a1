package shape_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/compiler"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/shape"
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
	`

	productSG, err := graph.NewSubGraphV2("product", []byte(productSchema), "http://product.example.com")
	if err != nil {
		t.Fatalf("NewSubGraphV2 failed: %v", err)
	}
	sg, err := graph.NewSuperGraphV2([]*graph.SubGraphV2{productSG})
	if err != nil {
		t.Fatalf("NewSuperGraphV2 failed: %v", err)
	}
	store, err := schema.Build(sg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return store
}

func firstPartition(t *testing.T, store *schema.Store, query string) *partition.Partition {
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

func TestBuild_OrdersFieldsByQueryPosition(t *testing.T) {
	store := buildTestStore(t)
	part := firstPartition(t, store, `{ product(id: "1") { price name } }`)

	s := shape.Build(part)
	if len(s.Fields) != 1 {
		t.Fatalf("expected 1 top-level field (product), got %d", len(s.Fields))
	}

	productFields := s.Fields[0].Object.Fields
	if len(productFields) != 2 {
		t.Fatalf("expected 2 nested fields, got %d", len(productFields))
	}
	if productFields[0].Key.ResponseKey != "price" || productFields[1].Key.ResponseKey != "name" {
		t.Errorf("expected fields ordered [price, name] matching query order, got [%s, %s]",
			productFields[0].Key.ResponseKey, productFields[1].Key.ResponseKey)
	}
}

func TestBuild_AliasedResponseKey(t *testing.T) {
	store := buildTestStore(t)
	part := firstPartition(t, store, `{ product(id: "1") { label: name } }`)

	s := shape.Build(part)
	nested := s.Fields[0].Object.Fields
	if len(nested) != 1 {
		t.Fatalf("expected 1 field, got %d", len(nested))
	}
	if nested[0].Key.ResponseKey != "label" {
		t.Errorf("expected aliased response key 'label', got %q", nested[0].Key.ResponseKey)
	}
	if nested[0].FieldName != "name" {
		t.Errorf("expected underlying field name 'name', got %q", nested[0].FieldName)
	}
}

func TestPositionedResponseKey_ExtrasSortLast(t *testing.T) {
	named := shape.PositionedResponseKey{ResponseKey: "name", Position: 0}
	extra := shape.PositionedResponseKey{ResponseKey: "__typename", Position: -1}

	if !named.Less(extra) {
		t.Error("expected a named field to sort before an extra")
	}
	if extra.Less(named) {
		t.Error("expected an extra not to sort before a named field")
	}
}
