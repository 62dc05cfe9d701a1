package schema_test

import (
	"testing"

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
	`

	reviewSchema := `
		extend type Product @key(fields: "id") {
			id: ID! @external
			reviews: [Review!]!
		}

		type Review {
			id: ID!
			rating: Int!
			comment: String!
		}

		extend type Query {
			review(id: ID!): Review
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

func TestBuild_LookupTypeAndFields(t *testing.T) {
	store := buildTestStore(t)

	productType, ok := store.LookupType("Product")
	if !ok {
		t.Fatal("expected Product type to be registered")
	}
	if store.TypeName(productType) != "Product" {
		t.Errorf("expected type name Product, got %s", store.TypeName(productType))
	}

	if _, ok := store.Field(productType, "reviews"); !ok {
		t.Error("expected Product.reviews to be merged in from the review subgraph")
	}
	if _, ok := store.Field(productType, "name"); !ok {
		t.Error("expected Product.name from the product subgraph")
	}
}

func TestBuild_FieldResolvability(t *testing.T) {
	store := buildTestStore(t)

	productType, ok := store.LookupType("Product")
	if !ok {
		t.Fatal("expected Product type")
	}
	reviewsField, ok := store.Field(productType, "reviews")
	if !ok {
		t.Fatal("expected Product.reviews field")
	}

	reviewSubgraph, ok := store.SubgraphID("review")
	if !ok {
		t.Fatal("expected review subgraph to be registered")
	}
	productSubgraph, ok := store.SubgraphID("product")
	if !ok {
		t.Fatal("expected product subgraph to be registered")
	}

	fd := store.FieldDef(reviewsField)
	if !fd.ResolvableIn(reviewSubgraph) {
		t.Error("expected Product.reviews to be resolvable in the review subgraph")
	}
	if fd.ResolvableIn(productSubgraph) {
		t.Error("expected Product.reviews not to be resolvable in the product subgraph")
	}
}

func TestBuild_KeysFor(t *testing.T) {
	store := buildTestStore(t)

	productType, ok := store.LookupType("Product")
	if !ok {
		t.Fatal("expected Product type")
	}
	productSubgraph, ok := store.SubgraphID("product")
	if !ok {
		t.Fatal("expected product subgraph")
	}

	keys := store.KeysFor(productType, productSubgraph)
	if len(keys) != 1 {
		t.Fatalf("expected 1 key for Product in product subgraph, got %d", len(keys))
	}
	fields := keys[0].Fields.Fields()
	if len(fields) != 1 || fields[0] != "id" {
		t.Errorf("expected key fields [id], got %v", fields)
	}
}

func TestBuild_NilSuperGraph(t *testing.T) {
	if _, err := schema.Build(nil); err == nil {
		t.Error("expected error building from a nil supergraph")
	}
}
