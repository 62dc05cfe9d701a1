package assemble_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/assemble"
	"github.com/n9te9/go-graphql-federation-gateway/federation/ingest"
)

func TestAssemble_Success(t *testing.T) {
	data := map[string]any{"product": map[string]any{"name": "widget"}}
	envelope, status := assemble.Assemble(data, nil, nil)

	if status != assemble.Success {
		t.Errorf("expected Success, got %v", status)
	}
	if len(envelope.Errors) != 0 {
		t.Errorf("expected no errors, got %v", envelope.Errors)
	}
}

func TestAssemble_FieldErrorWithPartialData(t *testing.T) {
	data := map[string]any{"product": nil}
	errs := []ingest.GraphQLError{{Message: "boom", Path: []any{"product", "name"}}}

	envelope, status := assemble.Assemble(data, errs, nil)
	if status != assemble.FieldError {
		t.Errorf("expected FieldError when data is present alongside errors, got %v", status)
	}
	if len(envelope.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(envelope.Errors))
	}
}

func TestAssemble_RequestErrorWithNoData(t *testing.T) {
	errs := []ingest.GraphQLError{{Message: "boom"}}

	envelope, status := assemble.Assemble(nil, errs, nil)
	if status != assemble.RequestError {
		t.Errorf("expected RequestError when data is nil, got %v", status)
	}
	if envelope.Data != nil {
		t.Errorf("expected nil data, got %v", envelope.Data)
	}
}

func TestAssemble_DeduplicatesErrors(t *testing.T) {
	errs := []ingest.GraphQLError{
		{Message: "boom", Path: []any{"product"}},
		{Message: "boom", Path: []any{"product"}},
		{Message: "boom", Path: []any{"other"}},
	}

	envelope, _ := assemble.Assemble(map[string]any{}, errs, nil)
	if len(envelope.Errors) != 2 {
		t.Fatalf("expected duplicate (message, path) error to be dropped, got %d errors", len(envelope.Errors))
	}
}

func TestMarshal(t *testing.T) {
	envelope := &assemble.Envelope{Data: map[string]any{"ok": true}}
	b, err := assemble.Marshal(envelope)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if len(b) == 0 {
		t.Error("expected non-empty marshaled output")
	}
}
