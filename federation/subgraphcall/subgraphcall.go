// Package subgraphcall implements the SubgraphCaller: given a partition it
// renders the GraphQL request text, applies header rules, and performs the
// HTTP call against the owning subgraph, bounded by a per-subgraph
// concurrency semaphore and retry budget. Grounded on
// federation/executor/executor_v2.go's sendRequest/buildEntityQuery, with
// goccy/go-json in place of encoding/json (the teacher already uses
// goccy/go-json in gateway/schema_fetcher.go; sendRequest was the one place
// it still used the standard library, an inconsistency this closes) and
// cenkalti/backoff/v5 (already an indirect go.mod dependency, unused until
// now) for the exponential-backoff retry budget spec.md §4.7 calls for.
package subgraphcall

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"golang.org/x/sync/semaphore"
)

// HeaderRule is one declarative operation-header policy, evaluated at call
// time against the incoming request's headers.
type HeaderRule struct {
	Action Action
	Name   string // header name this rule targets ("" for Forward-all)
	Rename string // new name, only for Action == Rename
	Value  string // literal value, only for Action == Set
}

// Action enumerates the header-rule kinds spec.md §4.7 names.
type Action uint8

const (
	Forward Action = iota
	Rename
	Set
	Remove
)

// Options configures one Caller.
type Options struct {
	HTTPClient             *http.Client
	SubgraphConcurrency    int64 // default per-subgraph semaphore weight
	RetryAttempts          int   // 0 disables retries
	HeaderRules            map[schema.SubgraphID][]HeaderRule
}

// Caller issues subgraph requests for partitions.
type Caller struct {
	store       *schema.Store
	httpClient  *http.Client
	semaphores  map[schema.SubgraphID]*semaphore.Weighted
	retryTries  uint
	headerRules map[schema.SubgraphID][]HeaderRule
}

// New builds a Caller over store, with one semaphore per subgraph.
func New(store *schema.Store, opts Options) *Caller {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.SubgraphConcurrency <= 0 {
		opts.SubgraphConcurrency = 32
	}
	sems := make(map[schema.SubgraphID]*semaphore.Weighted)
	for _, sub := range store.Subgraphs() {
		sems[schema.SubgraphID(sub.ID)] = semaphore.NewWeighted(opts.SubgraphConcurrency)
	}
	return &Caller{
		store:       store,
		httpClient:  opts.HTTPClient,
		semaphores:  sems,
		retryTries:  uint(opts.RetryAttempts),
		headerRules: opts.HeaderRules,
	}
}

// Result is the raw outcome of one subgraph call.
type Result struct {
	Status int
	Body   []byte
}

// HttpError reports a non-2xx response that carried no parseable GraphQL
// body (spec.md §4.7: SubgraphHttpError).
type HttpError struct {
	Status int
	Body   []byte
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("subgraph returned HTTP %d", e.Status)
}

// Call renders part's request, applies incomingHeaders through the
// subgraph's header rules, and executes it with retry/semaphore bounds.
func (c *Caller) Call(ctx context.Context, part *partition.Partition, operationType string, variables map[string]any, representations []map[string]any, incomingHeaders http.Header) (*Result, error) {
	sub := c.store.Subgraph(part.Subgraph)

	query, vars := c.buildRequest(part, operationType, variables, representations)
	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return nil, err
	}

	sem := c.semaphores[part.Subgraph]
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
	}

	headers := c.applyHeaderRules(part.Subgraph, incomingHeaders)

	if c.retryTries == 0 {
		return c.doCall(ctx, sub, payload, headers)
	}

	return backoff.Retry(ctx, func() (*Result, error) {
		res, err := c.doCall(ctx, sub, payload, headers)
		if err != nil && isRetryable(err) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return res, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.retryTries))
}

func isRetryable(err error) bool {
	httpErr, ok := err.(*HttpError)
	if !ok {
		return true // connection/timeout errors
	}
	return httpErr.Status >= 500
}

func (c *Caller) doCall(ctx context.Context, sub *graph.SubGraphV2, payload []byte, headers http.Header) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Host, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 && !looksLikeGraphQLBody(body) {
		return nil, &HttpError{Status: resp.StatusCode, Body: body}
	}

	return &Result{Status: resp.StatusCode, Body: body}, nil
}

func looksLikeGraphQLBody(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (c *Caller) applyHeaderRules(sg schema.SubgraphID, incoming http.Header) http.Header {
	out := make(http.Header)
	rules := c.headerRules[sg]
	if len(rules) == 0 {
		return out
	}
	for _, rule := range rules {
		switch rule.Action {
		case Forward:
			if rule.Name == "" {
				for k, v := range incoming {
					out[k] = v
				}
			} else if v := incoming.Get(rule.Name); v != "" {
				out.Set(rule.Name, v)
			}
		case Rename:
			if v := incoming.Get(rule.Name); v != "" {
				out.Set(rule.Rename, v)
			}
		case Set:
			out.Set(rule.Name, rule.Value)
		case Remove:
			out.Del(rule.Name)
		}
	}
	return out
}

// buildRequest renders either a root query/mutation or an _entities query
// for part, grounded on query_builder_v2.go's buildRootQuery/buildEntityQuery.
func (c *Caller) buildRequest(part *partition.Partition, operationType string, variables map[string]any, representations []map[string]any) (string, map[string]any) {
	if part.Kind == partition.Entity {
		return buildEntityQuery(part), mergeRepresentations(variables, representations)
	}
	return buildRootQuery(part, operationType), variables
}

func buildRootQuery(part *partition.Partition, operationType string) string {
	if operationType == "" {
		operationType = "query"
	}
	var sb strings.Builder
	sb.WriteString(operationType)
	sb.WriteString(" {\n")
	renderSelections(&sb, part.Selections, "  ")
	sb.WriteString("}")
	return sb.String()
}

func buildEntityQuery(part *partition.Partition) string {
	var sb strings.Builder
	sb.WriteString("query($representations: [_Any!]!) {\n")
	sb.WriteString("  _entities(representations: $representations) {\n")
	sb.WriteString("    ... on ")
	sb.WriteString(part.EntityTypeName)
	sb.WriteString(" {\n")
	renderSelections(&sb, part.Selections, "      ")
	sb.WriteString("    }\n  }\n}")
	return sb.String()
}

func mergeRepresentations(variables map[string]any, representations []map[string]any) map[string]any {
	out := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		out[k] = v
	}
	out["representations"] = representations
	return out
}
