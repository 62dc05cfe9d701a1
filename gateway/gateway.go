package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/federation/assemble"
	"github.com/n9te9/go-graphql-federation-gateway/federation/compiler"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schedule"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/solve"
	"github.com/n9te9/go-graphql-federation-gateway/federation/subgraphcall"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HeaderRuleConfig is one declarative header-forwarding rule for a service,
// evaluated by federation/subgraphcall on every request to that subgraph.
type HeaderRuleConfig struct {
	Action string `yaml:"action"` // "forward" (default) | "rename" | "set" | "remove"
	Name   string `yaml:"name"`
	Rename string `yaml:"rename"`
	Value  string `yaml:"value"`
}

type GatewayService struct {
	Name        string             `yaml:"name"`
	Host        string             `yaml:"host"`
	SchemaFiles []string           `yaml:"schema_files"`
	HeaderRules []HeaderRuleConfig `yaml:"header_rules"`
}

// RetrySetting configures the subgraph call retry budget (spec.md §4.7).
// min_per_sec/retry_percent describe a token-bucket retry budget;
// federation/subgraphcall's backoff.Retry only takes a maximum attempt
// count, so Attempts derives one from retry_percent; min_per_sec and ttl
// are not used.
type RetrySetting struct {
	MinPerSec    int     `yaml:"min_per_sec"`
	TTL          string  `yaml:"ttl"`
	RetryPercent float64 `yaml:"retry_percent"`
}

// Attempts derives a fixed retry attempt count from RetryPercent: 0 disables
// retries, otherwise at least 1 and roughly proportional to the configured
// percentage (capped at 5 so a misconfigured 100% doesn't retry forever).
func (r RetrySetting) Attempts() int {
	if r.RetryPercent <= 0 {
		return 0
	}
	n := int(r.RetryPercent * 10)
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	return n
}

// OperationLimitsSetting bounds what a compiled operation may cost
// (spec.md §4.2, operation_limits). Depth and Complexity are enforced by
// federation/compiler; Height, Aliases and RootFields are accepted for
// config-surface compatibility and are not enforced.
type OperationLimitsSetting struct {
	Depth      int `yaml:"depth"`
	Height     int `yaml:"height"`
	Complexity int `yaml:"complexity"`
	Aliases    int `yaml:"aliases"`
	RootFields int `yaml:"root_fields"`
}

// EntityCachingSetting is a config-surface hook for per-entity response
// caching; entity caching itself is a non-goal of this gateway iteration
// (spec.md Non-goals) and Enabled is read but not acted on.
type EntityCachingSetting struct {
	Enabled bool   `yaml:"enabled"`
	TTL     string `yaml:"ttl"`
}

type GatewayOption struct {
	Endpoint                    string                 `yaml:"endpoint"`
	ServiceName                 string                 `yaml:"service_name"`
	Port                        int                    `yaml:"port"`
	TimeoutDuration             string                 `yaml:"timeout_duration" default:"5s"`
	EnableHangOverRequestHeader bool                   `yaml:"enable_hang_over_request_header" default:"true"`
	SubgraphConcurrencyLimit    int                    `yaml:"subgraph_concurrency_limit" default:"32"`
	SubgraphRequestTimeout      string                 `yaml:"subgraph_request_timeout" default:"2s"`
	SubgraphRetry               RetrySetting           `yaml:"subgraph_retry"`
	IntrospectionEnabled        bool                   `yaml:"introspection_enabled" default:"true"`
	OperationLimits             OperationLimitsSetting `yaml:"operation_limits"`
	EntityCaching               EntityCachingSetting   `yaml:"entity_caching"`
	Services                    []GatewayService       `yaml:"services"`
	Opentelemetry               OpentelemetrySetting   `yaml:"opentelemetry"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

type gateway struct {
	graphQLEndpoint string
	serviceName     string
	store           *schema.Store
	caller          *subgraphcall.Caller
	superGraph      *graph.SuperGraphV2
	limits          compiler.Limits
	introspection   bool

	enableComplementRequestId   bool
	enableHangOverRequestHeader bool
	enableOpentelemetryTracing  bool
}

var _ http.Handler = (*gateway)(nil)

func NewGateway(settings GatewayOption) (*gateway, error) {
	var subGraphs []*graph.SubGraphV2
	for _, s := range settings.Services {
		var schemaBytes []byte
		for _, f := range s.SchemaFiles {
			src, err := os.ReadFile(f)
			if err != nil {
				return nil, err
			}
			schemaBytes = append(schemaBytes, src...)
		}

		subGraph, err := graph.NewSubGraphV2(s.Name, schemaBytes, s.Host)
		if err != nil {
			return nil, err
		}

		subGraphs = append(subGraphs, subGraph)
	}

	superGraph, err := graph.NewSuperGraphV2(subGraphs)
	if err != nil {
		return nil, err
	}

	store, err := schema.Build(superGraph)
	if err != nil {
		return nil, err
	}

	requestTimeout := 2 * time.Second
	if settings.SubgraphRequestTimeout != "" {
		if d, err := time.ParseDuration(settings.SubgraphRequestTimeout); err == nil {
			requestTimeout = d
		}
	}

	// Create HTTP client with timeout for subgraph requests
	httpClient := &http.Client{
		Timeout: requestTimeout,
	}

	if settings.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	caller := subgraphcall.New(store, subgraphcall.Options{
		HTTPClient:          httpClient,
		SubgraphConcurrency: int64(settings.SubgraphConcurrencyLimit),
		RetryAttempts:       settings.SubgraphRetry.Attempts(),
		HeaderRules:         buildHeaderRules(store, settings.Services),
	})

	return &gateway{
		graphQLEndpoint: settings.Endpoint,
		serviceName:     settings.ServiceName,
		store:           store,
		caller:          caller,
		superGraph:      superGraph,
		limits: compiler.Limits{
			MaxComplexity: settings.OperationLimits.Complexity,
			MaxDepth:      settings.OperationLimits.Depth,
		},
		introspection:               settings.IntrospectionEnabled,
		enableComplementRequestId:   true,
		enableHangOverRequestHeader: settings.EnableHangOverRequestHeader,
		enableOpentelemetryTracing:  settings.Opentelemetry.TracingSetting.Enable,
	}, nil
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	forwardedHeaders := r.Header
	if !g.enableHangOverRequestHeader {
		forwardedHeaders = http.Header{}
	}

	l := lexer.New(req.Query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": p.Errors(),
		})
		return
	}

	if !g.introspection && requestsIntrospection(doc) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{
				{
					"message":    "introspection is disabled",
					"extensions": map[string]string{"code": "INTROSPECTION_DISABLED"},
				},
			},
		})
		return
	}

	// Validate @inaccessible fields
	if err := g.validateAccessibility(doc); err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{
				{
					"message":    err.Error(),
					"extensions": map[string]string{"code": "INACCESSIBLE_FIELD"},
				},
			},
		})
		return
	}

	compiled, err := compiler.Compile(g.store, req.Query, req.OperationName, req.Variables, g.limits)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []string{err.Error()},
		})
		return
	}

	parts, err := partition.New(g.store).Partition(compiled.Operation, compiled.Fragments, compiled.RootType, compiled.Variables)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []string{err.Error()},
		})
		return
	}

	plan, err := solve.Solve(parts)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []string{err.Error()},
		})
		return
	}

	sched := schedule.New(g.caller)
	data, errs, err := sched.Run(ctx, plan, compiled.OperationType, compiled.Variables, forwardedHeaders)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []string{err.Error()},
		})
		return
	}

	envelope, _ := assemble.Assemble(data, errs, nil)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope)
}

// Plan compiles and partitions query without executing it against any
// subgraph, for the "plan" debug CLI command (SPEC_FULL.md §1, CLI).
func (g *gateway) Plan(query, operationName string, variables map[string]any) (*solve.Plan, error) {
	compiled, err := compiler.Compile(g.store, query, operationName, variables, g.limits)
	if err != nil {
		return nil, err
	}
	parts, err := partition.New(g.store).Partition(compiled.Operation, compiled.Fragments, compiled.RootType, compiled.Variables)
	if err != nil {
		return nil, err
	}
	return solve.Solve(parts)
}

func (g *gateway) Start(port int) error {
	fmt.Printf("Gateway started on port %d\n", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), g)
}

// requestsIntrospection reports whether doc's operations select __schema or
// __type at any root field (a cheap top-level check; introspection queries
// never need boundary resolution, so this does not recurse into nested
// selections).
func requestsIntrospection(doc *ast.Document) bool {
	for _, def := range doc.Definitions {
		opDef, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		for _, sel := range opDef.SelectionSet {
			if f, ok := sel.(*ast.Field); ok {
				name := f.Name.String()
				if name == "__schema" || name == "__type" {
					return true
				}
			}
		}
	}
	return false
}

// validateAccessibility validates that no @inaccessible fields are queried.
func (g *gateway) validateAccessibility(doc *ast.Document) error {
	for _, def := range doc.Definitions {
		if opDef, ok := def.(*ast.OperationDefinition); ok {
			rootTypeName := "Query"
			switch opDef.Operation {
			case ast.Query:
				rootTypeName = "Query"
			case ast.Mutation:
				rootTypeName = "Mutation"
			case ast.Subscription:
				rootTypeName = "Subscription"
			}

			if err := g.validateSelectionSet(opDef.SelectionSet, rootTypeName); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateSelectionSet recursively validates selections.
func (g *gateway) validateSelectionSet(selSet []ast.Selection, parentTypeName string) error {
	if selSet == nil {
		return nil
	}

	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()

			// Skip introspection fields
			if fieldName == "__typename" || fieldName == "__schema" || fieldName == "__type" {
				continue
			}

			// Check if field is inaccessible
			if err := g.checkFieldAccessibility(parentTypeName, fieldName); err != nil {
				return err
			}

			// Get the field type for recursive validation
			nextTypeName := g.getFieldTypeName(parentTypeName, fieldName)
			if nextTypeName != "" {
				if err := g.validateSelectionSet(s.SelectionSet, nextTypeName); err != nil {
					return err
				}
			}

		case *ast.FragmentSpread:
			// Handle fragment spreads
			// For now, skip validation in fragments
			// TODO: Implement fragment validation

		case *ast.InlineFragment:
			// Handle inline fragments
			typeCondition := ""
			if s.TypeCondition != nil {
				typeCondition = s.TypeCondition.String()
			}
			if typeCondition == "" {
				typeCondition = parentTypeName
			}
			if err := g.validateSelectionSet(s.SelectionSet, typeCondition); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkFieldAccessibility checks if a field is inaccessible.
func (g *gateway) checkFieldAccessibility(typeName, fieldName string) error {
	for _, subGraph := range g.superGraph.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists {
			if field, ok := entity.Fields[fieldName]; ok {
				if field.IsInaccessible() {
					return fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, typeName)
				}
			}
		}

		// Also check non-entity types in the schema
		for _, def := range subGraph.Schema.Definitions {
			if objDef, ok := def.(*ast.ObjectTypeDefinition); ok {
				if objDef.Name.String() == typeName {
					for _, f := range objDef.Fields {
						if f.Name.String() == fieldName {
							// Check for @inaccessible directive
							for _, d := range f.Directives {
								if d.Name == "inaccessible" {
									return fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, typeName)
								}
							}
						}
					}
				}
			}
		}
	}

	return nil
}

// getFieldTypeName returns the type name of a field.
func (g *gateway) getFieldTypeName(typeName, fieldName string) string {
	for _, def := range g.superGraph.Schema.Definitions {
		if objDef, ok := def.(*ast.ObjectTypeDefinition); ok {
			if objDef.Name.String() == typeName {
				for _, field := range objDef.Fields {
					if field.Name.String() == fieldName {
						return g.unwrapTypeName(field.Type)
					}
				}
			}
		}
	}
	return ""
}

// unwrapTypeName extracts the base type name from a type.
func (g *gateway) unwrapTypeName(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return g.unwrapTypeName(typ.Type)
	case *ast.NonNullType:
		return g.unwrapTypeName(typ.Type)
	}
	return ""
}
