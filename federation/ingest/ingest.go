// Package ingest implements the ResponseIngester: it deserialises one
// subgraph response into a Result, guided by the partition's Shape, and
// records any subgraph errors rebased onto the gateway's response path;
// federation/schedule merges that Result into the shared response tree.
// Grounded on federation/executor/executor_v2.go's
// mergeEntityResults/navigatePathWithArrays (representation zipping),
// extended with the entities-array-length check and shape-driven pruning of
// extra fields the teacher's executor does not perform.
package ingest

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-federation-gateway/federation/partition"
	"github.com/n9te9/go-graphql-federation-gateway/federation/shape"
	"github.com/n9te9/go-graphql-federation-gateway/federation/subgraphcall"
)

// GraphQLError mirrors the wire shape of one entry of a GraphQL response's
// "errors" array, plus the gateway-rebased path.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []any                  `json:"path,omitempty"`
	Extensions map[string]any         `json:"extensions,omitempty"`
}

// Result is one partition's ingested contribution: the data to splice into
// the response tree (keyed by insertion path for entity partitions, or
// merged directly at the root for root partitions) plus any errors.
type Result struct {
	Data   any
	Raw    any // unpruned (extras still present), used to build child representations
	Errors []GraphQLError
}

type rawResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string         `json:"message"`
		Path       []any          `json:"path"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
}

// Ingest parses a subgraph's raw body for part, guided by sh. For Entity
// partitions it zips the `_entities` array against representations and
// reports "expected more entities" when the array is short.
func Ingest(part *partition.Partition, sh *shape.ObjectShape, raw *subgraphcall.Result, representations []map[string]any) (*Result, error) {
	var parsed rawResponse
	if err := json.Unmarshal(raw.Body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid subgraph response: %w", err)
	}

	result := &Result{}
	for _, e := range parsed.Errors {
		result.Errors = append(result.Errors, GraphQLError{
			Message:    e.Message,
			Path:       rebasePath(part, e.Path),
			Extensions: e.Extensions,
		})
	}

	if part.Kind != partition.Entity {
		var data map[string]any
		if len(parsed.Data) > 0 {
			if err := json.Unmarshal(parsed.Data, &data); err != nil {
				return nil, fmt.Errorf("invalid subgraph data: %w", err)
			}
		}
		result.Raw = data
		result.Data = pruneExtras(data, sh)
		return result, nil
	}

	var entitiesWrapper struct {
		Entities []map[string]any `json:"_entities"`
	}
	if len(parsed.Data) > 0 {
		if err := json.Unmarshal(parsed.Data, &entitiesWrapper); err != nil {
			return nil, fmt.Errorf("invalid _entities response: %w", err)
		}
	}

	entities := make([]any, len(representations))
	rawEntities := make([]any, len(representations))
	for i := range representations {
		if i >= len(entitiesWrapper.Entities) {
			result.Errors = append(result.Errors, GraphQLError{
				Message: "expected more entities",
				Path:    append(append([]any{}, pathToAny(part.InsertionPath)...), i),
			})
			entities[i] = nil
			continue
		}
		rawEntities[i] = entitiesWrapper.Entities[i]
		entities[i] = pruneExtras(entitiesWrapper.Entities[i], sh)
	}

	result.Data = entities
	result.Raw = rawEntities
	return result, nil
}

// rebasePath maps a subgraph error's local response path onto the gateway's
// response path by prefixing the partition's InsertionPath. For an entity
// partition the leading "_entities", <index> segments are dropped first.
func rebasePath(part *partition.Partition, local []any) []any {
	if part.Kind == partition.Entity && len(local) >= 2 && local[0] == "_entities" {
		local = local[2:]
	}
	if len(local) == 0 {
		return pathToAny(part.InsertionPath)
	}
	out := append([]any{}, pathToAny(part.InsertionPath)...)
	out = append(out, local...)
	return out
}

func pathToAny(path []string) []any {
	out := make([]any, len(path))
	for i, p := range path {
		out[i] = p
	}
	return out
}

// pruneExtras strips the shape's "extra" fields (injected __typename/@key
// fields, Position == -1) from an ingested object before it is handed to
// the assembler, recursing into nested object shapes.
func pruneExtras(data map[string]any, sh *shape.ObjectShape) map[string]any {
	if data == nil || sh == nil {
		return data
	}
	out := make(map[string]any, len(data))
	for _, f := range sh.Fields {
		v, ok := data[f.Key.ResponseKey]
		if !ok {
			continue
		}
		if f.Key.Position < 0 {
			continue // extra: consumed for representation-building, not serialised
		}
		if f.Object != nil {
			v = pruneValue(v, f.Object)
		}
		out[f.Key.ResponseKey] = v
	}
	// Preserve __typename even when it was requested explicitly (Position >= 0
	// handles that case already); the unpruned copy with every extra is kept
	// in Result.Raw, which federation/schedule reads to build child
	// representations.
	return out
}

func pruneValue(v any, sh *shape.ObjectShape) any {
	switch val := v.(type) {
	case map[string]any:
		return pruneExtras(val, sh)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = pruneValue(e, sh)
		}
		return out
	default:
		return v
	}
}
