package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func envelopeHandler(t *testing.T, status int, env map[string]any, check func(r *http.Request)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(env)
	}
}

func TestGetDecodesData(t *testing.T) {
	srv := httptest.NewServer(envelopeHandler(t, http.StatusOK, map[string]any{
		"code": "OK",
		"data": map[string]any{"ids": []string{"doc-a"}, "total": 1},
	}, nil))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")

	var out struct {
		IDs   []string `json:"ids"`
		Total int      `json:"total"`
	}
	if err := client.Get(context.Background(), "/v1/documents", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Total != 1 || len(out.IDs) != 1 || out.IDs[0] != "doc-a" {
		t.Errorf("decoded %+v, want one id doc-a", out)
	}
}

func TestBearerTokenSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(envelopeHandler(t, http.StatusOK, map[string]any{
		"code": "OK",
	}, func(r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "secret-token")
	if err := client.Get(context.Background(), "/health", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "Bearer secret-token" {
		t.Errorf("authorization = %q, want bearer token", got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(envelopeHandler(t, http.StatusNotFound, map[string]any{
		"code":    "DR-DOC-4040",
		"message": "document not found",
	}, nil))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")
	err := client.Get(context.Background(), "/v1/documents/missing", nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T, want *APIError", err)
	}
	if apiErr.Code != "DR-DOC-4040" {
		t.Errorf("code = %q, want DR-DOC-4040", apiErr.Code)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
}

func TestSchemelessServerGetsHTTPPrefix(t *testing.T) {
	client := NewAPIClient("localhost:7421", "")
	if got := client.BaseURL(); got != "http://localhost:7421" {
		t.Errorf("base url = %q, want http prefix", got)
	}

	client = NewAPIClient("https://relay.example.com/", "")
	if got := client.BaseURL(); got != "https://relay.example.com" {
		t.Errorf("base url = %q, want trimmed https url", got)
	}
}

func TestPostSendsJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(envelopeHandler(t, http.StatusOK, map[string]any{
		"code": "OK",
	}, func(r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer srv.Close()

	client := NewAPIClient(srv.URL, "")
	body := map[string]any{"set": map[string]any{"title": "hello"}}
	if err := client.Post(context.Background(), "/v1/documents/doc-a", body, nil); err != nil {
		t.Fatalf("post: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody["set"] == nil {
		t.Errorf("body = %v, want set field", gotBody)
	}
}
