package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"chunkr/internal/config"
	"chunkr/internal/embedder"
	"chunkr/internal/ftsindex"
	"chunkr/internal/obs"
	"chunkr/internal/vectorstore"
)

func writeJSONL(t *testing.T, dir, name string, records []ChunkRecord) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create jsonl: %v", err)
	}
	defer f.Close()
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal record: %v", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
	return path
}

func newTestBackends(t *testing.T) (*vectorstore.Store, *ftsindex.Indexer, *int32, *int32) {
	t.Helper()
	var vectorUpserts, ftsIngests int32

	vecSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&vectorUpserts, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(vecSrv.Close)

	ftsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ftsIngests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ftsSrv.Close)

	store := vectorstore.New(config.VectorConfig{URL: vecSrv.URL, Collection: "books", Wait: true})
	fts := ftsindex.New(config.FullTextConfig{URL: ftsSrv.URL, IndexID: "books", CommitMode: "auto"})
	return store, fts, &vectorUpserts, &ftsIngests
}

func TestCoordinator_Run_HappyPath(t *testing.T) {
	dir := t.TempDir()
	writeJSONL(t, dir, "book1.jsonl", []ChunkRecord{
		{ID: "11111111-1111-4111-8111-111111111111", Text: "first chunk", Metadata: map[string]any{"title": "x"}},
		{ID: "22222222-2222-4222-8222-222222222222", Text: "second chunk", Metadata: map[string]any{"title": "x"}},
	})

	store, fts, vecCount, ftsCount := newTestBackends(t)
	cfg := config.Config{Paths: config.PathsConfig{ChunkRoot: dir}, Insert: config.InsertConfig{BatchSize: 10, MaxParallelFiles: 2}, Embedding: config.EmbeddingConfig{GlobalMaxConcurrency: 4, CacheMaxEntries: 100}}

	coord := New(cfg, embedder.NewDeterministic(8, false, 1), store, fts, obs.NopLogger{}, obs.NewMockMetrics())
	files, chunks, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files != 1 || chunks != 2 {
		t.Fatalf("expected 1 file, 2 chunks, got %d files, %d chunks", files, chunks)
	}
	if atomic.LoadInt32(vecCount) != 1 || atomic.LoadInt32(ftsCount) != 1 {
		t.Fatalf("expected exactly one upsert call and one ingest call, got vec=%d fts=%d", *vecCount, *ftsCount)
	}
}

func TestCoordinator_Run_BackpressureWithSingleFileSlot(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeJSONL(t, dir, fmt.Sprintf("book%d.jsonl", i), []ChunkRecord{
			{ID: "11111111-1111-4111-8111-111111111111", Text: "chunk text", Metadata: map[string]any{}},
		})
	}

	store, fts, _, _ := newTestBackends(t)
	cfg := config.Config{Paths: config.PathsConfig{ChunkRoot: dir}, Insert: config.InsertConfig{BatchSize: 10, MaxParallelFiles: 1}, Embedding: config.EmbeddingConfig{GlobalMaxConcurrency: 1, CacheMaxEntries: 100}}

	coord := New(cfg, embedder.NewDeterministic(8, false, 1), store, fts, obs.NopLogger{}, obs.NewMockMetrics())
	files, chunks, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files != 5 || chunks != 5 {
		t.Fatalf("expected 5 files, 5 chunks, got %d files, %d chunks", files, chunks)
	}
}

func TestCoordinator_EmbedBatch_CacheHitAvoidsDuplicateEmbedCalls(t *testing.T) {
	var calls int32
	countingEmbedder := countingEmbedderFunc(func(text string) ([]float32, error) {
		atomic.AddInt32(&calls, 1)
		return []float32{1, 2, 3}, nil
	})

	store, fts, _, _ := newTestBackends(t)
	cfg := config.Config{Embedding: config.EmbeddingConfig{GlobalMaxConcurrency: 4, CacheMaxEntries: 100}, Insert: config.InsertConfig{MaxParallelFiles: 1}}
	coord := New(cfg, countingEmbedder, store, fts, obs.NopLogger{}, obs.NewMockMetrics())

	batch := []ChunkRecord{
		{ID: "a", Text: "duplicate text"},
		{ID: "b", Text: "duplicate text"},
		{ID: "c", Text: "unique text"},
	}
	vectors, err := coord.embedBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 embed calls (one per distinct text), got %d", calls)
	}
}

type countingEmbedderFunc func(text string) ([]float32, error)

func (f countingEmbedderFunc) Embed(_ context.Context, text string) ([]float32, error) {
	return f(text)
}
func (f countingEmbedderFunc) Name() string { return "counting" }

func TestCoordinator_Run_NoFilesIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	store, fts, _, _ := newTestBackends(t)
	cfg := config.Config{Paths: config.PathsConfig{ChunkRoot: dir}, Insert: config.InsertConfig{MaxParallelFiles: 1}, Embedding: config.EmbeddingConfig{GlobalMaxConcurrency: 1}}
	coord := New(cfg, embedder.NewDeterministic(4, false, 0), store, fts, obs.NopLogger{}, obs.NewMockMetrics())
	files, chunks, err := coord.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files != 0 || chunks != 0 {
		t.Fatalf("expected 0/0, got %d/%d", files, chunks)
	}
}
