package subgraphcall_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/subgraphcall"
)

func buildTestStore(t *testing.T, host string) *schema.Store {
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

	sg, err := graph.NewSubGraphV2("product", []byte(productSchema), host)
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

func TestCall_SuccessfulRootQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"product":{"name":"widget"}}}`))
	}))
	defer srv.Close()

	store := buildTestStore(t, srv.URL)
	productType, _ := store.LookupType("Product")
	productSubgraph, _ := store.SubgraphID("product")

	caller := subgraphcall.New(store, subgraphcall.Options{})

	part := &partition.Partition{
		Kind:       partition.Root,
		Subgraph:   productSubgraph,
		ParentType: productType,
	}

	res, err := caller.Call(context.Background(), part, "query", nil, nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", res.Status)
	}
}

func TestCall_HttpErrorOnNonGraphQLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	store := buildTestStore(t, srv.URL)
	productSubgraph, _ := store.SubgraphID("product")

	caller := subgraphcall.New(store, subgraphcall.Options{})
	part := &partition.Partition{Kind: partition.Root, Subgraph: productSubgraph}

	_, err := caller.Call(context.Background(), part, "query", nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error for a non-GraphQL 500 response")
	}
	httpErr, ok := err.(*subgraphcall.HttpError)
	if !ok {
		t.Fatalf("expected *subgraphcall.HttpError, got %T", err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", httpErr.Status)
	}
}

func TestCall_HeaderRules(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	store := buildTestStore(t, srv.URL)
	productSubgraph, _ := store.SubgraphID("product")

	caller := subgraphcall.New(store, subgraphcall.Options{
		HeaderRules: map[schema.SubgraphID][]subgraphcall.HeaderRule{
			productSubgraph: {
				{Action: subgraphcall.Rename, Name: "Authorization", Rename: "X-Upstream-Auth"},
				{Action: subgraphcall.Set, Name: "X-Gateway", Value: "federation-gateway"},
			},
		},
	})

	incoming := http.Header{}
	incoming.Set("Authorization", "Bearer token")

	part := &partition.Partition{Kind: partition.Root, Subgraph: productSubgraph}
	if _, err := caller.Call(context.Background(), part, "query", nil, nil, incoming); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if gotHeaders.Get("X-Upstream-Auth") != "Bearer token" {
		t.Errorf("expected renamed auth header to be forwarded, got %q", gotHeaders.Get("X-Upstream-Auth"))
	}
	if gotHeaders.Get("Authorization") != "" {
		t.Errorf("expected original Authorization header not to be forwarded, got %q", gotHeaders.Get("Authorization"))
	}
	if gotHeaders.Get("X-Gateway") != "federation-gateway" {
		t.Errorf("expected X-Gateway header to be set, got %q", gotHeaders.Get("X-Gateway"))
	}
}
