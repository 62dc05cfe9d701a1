package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/federation/compiler"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/subgraphcall"
)

// executionEngine bundles all read-only components required to serve GraphQL requests.
type executionEngine struct {
	store      *schema.Store
	caller     *subgraphcall.Caller
	superGraph *graph.SuperGraphV2
	limits     compiler.Limits
}

// schemaStore holds the current set of raw SDLs, host URLs, and the pre-built engine.
// No code in this package constructs or stores a schemaStore.
type schemaStore struct {
	sdls   map[string]string // subgraph name → SDL string
	hosts  map[string]string // subgraph name → base URL
	engine *executionEngine
}

// buildEngine composes a new SuperGraph from the given SDLs and host map, builds the
// SchemaStore over it, and wraps both in an executionEngine together with a
// SubgraphCaller configured per opts.
// Subgraphs are processed in name order: NewSuperGraphV2 assigns SubGraphV2.ID
// (the ownership tie-break) from slice position, so sorting the names keeps
// those ids independent of the sdls map's iteration order.
func buildEngine(sdls, hosts map[string]string, httpClient *http.Client, opts GatewayOption) (*executionEngine, error) {
	names := make([]string, 0, len(sdls))
	for name := range sdls {
		names = append(names, name)
	}
	sort.Strings(names)
	subGraphs := make([]*graph.SubGraphV2, 0, len(sdls))
	for _, name := range names {
		sg, err := graph.NewSubGraphV2(name, []byte(sdls[name]), hosts[name])
		if err != nil {
			return nil, fmt.Errorf("failed to build subgraph %q: %w", name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraphV2(subGraphs)
	if err != nil {
		return nil, fmt.Errorf("composition failed: %w", err)
	}

	store, err := schema.Build(superGraph)
	if err != nil {
		return nil, fmt.Errorf("schema store build failed: %w", err)
	}

	requestTimeout := 2 * time.Second
	if opts.SubgraphRequestTimeout != "" {
		if d, err := time.ParseDuration(opts.SubgraphRequestTimeout); err == nil {
			requestTimeout = d
		}
	}
	callerClient := &http.Client{Timeout: requestTimeout, Transport: httpClient.Transport}

	caller := subgraphcall.New(store, subgraphcall.Options{
		HTTPClient:          callerClient,
		SubgraphConcurrency: int64(opts.SubgraphConcurrencyLimit),
		RetryAttempts:       opts.SubgraphRetry.Attempts(),
		HeaderRules:         buildHeaderRules(store, opts.Services),
	})

	return &executionEngine{
		store:      store,
		caller:     caller,
		superGraph: superGraph,
		limits: compiler.Limits{
			MaxComplexity: opts.OperationLimits.Complexity,
			MaxDepth:      opts.OperationLimits.Depth,
		},
	}, nil
}

// buildHeaderRules resolves each service's declarative header rules against the
// freshly built store's SubgraphID space.
func buildHeaderRules(store *schema.Store, services []GatewayService) map[schema.SubgraphID][]subgraphcall.HeaderRule {
	out := make(map[schema.SubgraphID][]subgraphcall.HeaderRule)
	for _, svc := range services {
		sgID, ok := store.SubgraphID(svc.Name)
		if !ok || len(svc.HeaderRules) == 0 {
			continue
		}
		var rules []subgraphcall.HeaderRule
		for _, r := range svc.HeaderRules {
			rules = append(rules, subgraphcall.HeaderRule{
				Action: headerActionFromString(r.Action),
				Name:   r.Name,
				Rename: r.Rename,
				Value:  r.Value,
			})
		}
		out[sgID] = rules
	}
	return out
}

func headerActionFromString(s string) subgraphcall.Action {
	switch s {
	case "rename":
		return subgraphcall.Rename
	case "set":
		return subgraphcall.Set
	case "remove":
		return subgraphcall.Remove
	default:
		return subgraphcall.Forward
	}
}

// copyMap returns a shallow copy of a string map.
func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
