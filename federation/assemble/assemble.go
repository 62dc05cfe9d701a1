// Package assemble implements the ResponseAssembler: once the scheduler has
// drained (or been cancelled), it turns the accumulated response tree and
// error list into the final `{data, errors, extensions}` envelope. Grounded
// on gateway/gateway.go#ServeHTTP's response writing, split out into its own
// stage per spec.md §4.9 so the outer HTTP shell can pick buffered vs
// chunked framing independently.
package assemble

import (
	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-federation-gateway/federation/ingest"
)

// Envelope is the GraphQL-over-HTTP response body.
type Envelope struct {
	Data       map[string]any         `json:"data"`
	Errors     []ingest.GraphQLError  `json:"errors,omitempty"`
	Extensions map[string]any         `json:"extensions,omitempty"`
}

// Status summarises the outcome for the outer HTTP shell (spec.md §6,
// ExecuteResponse.graphql_status).
type Status uint8

const (
	Success Status = iota
	FieldError
	RequestError
)

// Assemble builds the Envelope from the merged response data and the
// accumulated, order-preserved error list, deduplicating on
// (message, path, extensions.code) and keeping first-seen order.
func Assemble(data map[string]any, errs []ingest.GraphQLError, extensions map[string]any) (*Envelope, Status) {
	deduped := dedupeErrors(errs)

	status := Success
	if len(deduped) > 0 {
		if data == nil {
			status = RequestError
		} else {
			status = FieldError
		}
	}

	return &Envelope{Data: data, Errors: deduped, Extensions: extensions}, status
}

func dedupeErrors(errs []ingest.GraphQLError) []ingest.GraphQLError {
	type key struct {
		message string
		path    string
		code    string
	}
	seen := make(map[key]bool, len(errs))
	var out []ingest.GraphQLError
	for _, e := range errs {
		code, _ := e.Extensions["code"].(string)
		k := key{message: e.Message, path: pathString(e.Path), code: code}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func pathString(path []any) string {
	b, _ := json.Marshal(path)
	return string(b)
}

// Marshal renders the envelope as the buffered JSON body (the buffered half
// of the "buffered + chunked" API spec.md §4.9 calls for; chunked/multipart
// framing is the outer HTTP shell's concern and is not implemented by this
// gateway iteration — see DESIGN.md).
func Marshal(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}
