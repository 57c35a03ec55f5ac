package ftsindex

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chunkr/internal/config"
)

func TestIndexer_Ingest_SendsNDJSONBody(t *testing.T) {
	var lines []map[string]any
	var gotPath, gotCommit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCommit = r.URL.Query().Get("commit")
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			var m map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
				t.Fatalf("bad ndjson line: %v", err)
			}
			lines = append(lines, m)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := New(config.FullTextConfig{URL: srv.URL, IndexID: "books", CommitMode: "force", CommitTimeoutSeconds: 5})
	err := idx.Ingest(context.Background(), []Document{
		{ID: "a", Text: "hello", Metadata: map[string]any{"k": "v"}},
		{ID: "b", Text: "world", Metadata: map[string]any{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/v1/books/ingest" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotCommit != "force" {
		t.Fatalf("expected commit=force, got %q", gotCommit)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", len(lines))
	}
	if lines[0]["id"] != "a" || lines[0]["text"] != "hello" {
		t.Fatalf("unexpected first line: %v", lines[0])
	}
}

func TestIndexer_Ingest_EmptyBatchIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	idx := New(config.FullTextConfig{URL: srv.URL, IndexID: "books"})
	if err := idx.Ingest(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected no request for empty batch")
	}
}

func TestIndexer_Ingest_NonSuccessStatusReturnsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("index not found"))
	}))
	defer srv.Close()

	idx := New(config.FullTextConfig{URL: srv.URL, IndexID: "books"})
	err := idx.Ingest(context.Background(), []Document{{ID: "a", Text: "x"}})
	if err == nil || !strings.Contains(err.Error(), "upstream") {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected error to carry status code, got %v", err)
	}
	if !strings.Contains(err.Error(), "index not found") {
		t.Fatalf("expected error to carry response body, got %v", err)
	}
}

func TestIndexer_Commit_NonSuccessStatusCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("commit in progress"))
	}))
	defer srv.Close()

	idx := New(config.FullTextConfig{URL: srv.URL, IndexID: "books"})
	err := idx.Commit(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "commit in progress") {
		t.Fatalf("expected error to carry status and body, got %v", err)
	}
}

func TestIndexer_Commit_PostsToCommitEndpoint(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := New(config.FullTextConfig{URL: srv.URL, IndexID: "books", CommitMode: "auto", CommitTimeoutSeconds: 5})
	if err := idx.Commit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %q", gotMethod)
	}
	if gotPath != "/api/v1/books/commit" {
		t.Fatalf("unexpected commit path: %q", gotPath)
	}
}
