package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chunkr/internal/config"
)

func TestHTTPEmbedder_SuccessPath(t *testing.T) {
	var gotReq embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	e := NewHTTP(config.EmbeddingConfig{BaseURL: srv.URL, Model: "nomic-embed-text", RequestTimeoutSeconds: 5})
	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %v", vec)
	}
	if gotReq.Model != "nomic-embed-text" || gotReq.Prompt != "hello world" {
		t.Fatalf("unexpected request sent: %+v", gotReq)
	}
}

func TestHTTPEmbedder_NonSuccessStatusIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	e := NewHTTP(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", RequestTimeoutSeconds: 5})
	_, err := e.Embed(context.Background(), "text")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "upstream") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestHTTPEmbedder_MissingEmbeddingFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e := NewHTTP(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", RequestTimeoutSeconds: 5})
	_, err := e.Embed(context.Background(), "text")
	if err == nil {
		t.Fatalf("expected error for missing embedding field")
	}
}

func TestHTTPEmbedder_CoercesInvalidEntriesToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.5,"not-a-number",null,1.5]}`))
	}))
	defer srv.Close()

	e := NewHTTP(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", RequestTimeoutSeconds: 5})
	vec, err := e.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{0.5, 0, 0, 1.5}
	if len(vec) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), vec)
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], vec[i])
		}
	}
}

func TestHTTPEmbedder_TruncatesOversizedInput(t *testing.T) {
	var gotReq embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	e := NewHTTP(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", RequestTimeoutSeconds: 5, MaxInputChars: 5})
	_, err := e.Embed(context.Background(), "0123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.Prompt != "01234" {
		t.Fatalf("expected truncated prompt '01234', got %q", gotReq.Prompt)
	}
}

func TestDeterministicEmbedder_StableAcrossCalls(t *testing.T) {
	e := NewDeterministic(16, true, 7)
	v1, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := e.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v1) != 16 || len(v2) != 16 {
		t.Fatalf("expected 16-dim vectors")
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic output, differed at index %d: %v vs %v", i, v1, v2)
		}
	}
}

func TestDeterministicEmbedder_EmptyTextYieldsZeroVector(t *testing.T) {
	e := NewDeterministic(8, false, 0)
	v, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected all-zero vector for empty text, got %v", v)
		}
	}
}
