package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/auth"
	"github.com/triage-ai/tcp/internal/descriptor"
	"github.com/triage-ai/tcp/internal/registry"
)

// boundAuthenticator accepts one key bound to one source.
type boundAuthenticator struct {
	key    string
	source string
}

func (a *boundAuthenticator) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	if token != a.key {
		return nil, auth.ErrUnauthenticated
	}
	return &auth.Principal{ClientID: "client-1", Source: a.source}, nil
}

func newAuthedRouter(t *testing.T) http.Handler {
	t.Helper()
	deps := &Dependencies{
		Registry: registry.New(registry.Config{Store: registry.NewMemoryStore(), Logger: zap.NewNop()}),
		Auth:     &boundAuthenticator{key: "tcp_expert_001", source: "expert_validation"},
		Logger:   zap.NewNop(),
	}
	return NewRouter(deps)
}

func doAuthed(t *testing.T, h http.Handler, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/descriptors", &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestRequiresAPIKey(t *testing.T) {
	router := newAuthedRouter(t)
	rec := doAuthed(t, router, "", IngestRequest{
		Command:    "ls",
		Descriptor: encodeDescriptor(t, "ls", descriptor.RiskLow, 0),
		Source:     "expert_validation",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}

	rec = doAuthed(t, router, "tcp_wrong_key", IngestRequest{
		Command:    "ls",
		Descriptor: encodeDescriptor(t, "ls", descriptor.RiskLow, 0),
		Source:     "expert_validation",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestIngestSourceBinding(t *testing.T) {
	router := newAuthedRouter(t)

	// Submitting as a different source than the key is bound to.
	rec := doAuthed(t, router, "tcp_expert_001", IngestRequest{
		Command:    "ls",
		Descriptor: encodeDescriptor(t, "ls", descriptor.RiskLow, 0),
		Source:     "proven_research",
		Confidence: 0.9,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403: %s", rec.Code, rec.Body.String())
	}

	// Omitting the source defaults to the key's binding.
	rec = doAuthed(t, router, "tcp_expert_001", IngestRequest{
		Command:    "ls",
		Descriptor: encodeDescriptor(t, "ls", descriptor.RiskLow, 0),
		Confidence: 0.9,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	rec2 := doJSON(t, router, http.MethodGet, "/v1/descriptors?command=ls", nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("query status %d", rec2.Code)
	}
	var entry EntryResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Source != "expert_validation" {
		t.Fatalf("source %q, want expert_validation", entry.Source)
	}
}

func TestQueryIsUnauthenticated(t *testing.T) {
	router := newAuthedRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/v1/descriptors?command=nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404 (not 401)", rec.Code)
	}
}
