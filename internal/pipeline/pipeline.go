// Package pipeline implements the Pipeline Coordinator (spec §4.9, §4.10,
// §5): it walks the chunk root for JSONL files, fans out across files
// under a file-level concurrency limit, batches records per file, and
// for each batch probes the embedding cache, embeds the misses under a
// global embedding-level concurrency limit, then concurrently upserts
// into the vector store and ingests into the full-text index. Grounded
// on original_source/src/insert.rs::{run,ingest_file,process_batch}.
package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"chunkr/internal/config"
	"chunkr/internal/embedcache"
	"chunkr/internal/embedder"
	"chunkr/internal/errs"
	"chunkr/internal/ftsindex"
	"chunkr/internal/obs"
	"chunkr/internal/vectorstore"
)

// ChunkRecord is a single JSONL line produced by internal/chunkwriter,
// matching original_source/src/insert.rs::ChunkRecord.
type ChunkRecord struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Coordinator wires together the embedder, cache, vector store, and
// full-text indexer into the insert phase.
type Coordinator struct {
	cfg       config.Config
	embedder  embedder.Embedder
	cache     *embedcache.Cache
	vectors   *vectorstore.Store
	fulltext  *ftsindex.Indexer
	logger    obs.Logger
	metrics   obs.Metrics
	fileSem   *semaphore.Weighted
	embedSem  *semaphore.Weighted
}

// New constructs a Coordinator. The file-level concurrency limit is
// cfg.Insert.MaxParallelFiles; the embedding-level limit is
// cfg.Embedding.GlobalMaxConcurrency, falling back to
// cfg.Embedding.MaxConcurrency when unset, per spec §4.9. Both floor at 1.
func New(cfg config.Config, emb embedder.Embedder, store *vectorstore.Store, fts *ftsindex.Indexer, logger obs.Logger, metrics obs.Metrics) *Coordinator {
	fileConcurrency := cfg.Insert.MaxParallelFiles
	if fileConcurrency < 1 {
		fileConcurrency = 1
	}
	embedConcurrency := cfg.Embedding.GlobalMaxConcurrency
	if embedConcurrency < 1 {
		embedConcurrency = cfg.Embedding.MaxConcurrency
	}
	if embedConcurrency < 1 {
		embedConcurrency = 1
	}
	return &Coordinator{
		cfg:      cfg,
		embedder: emb,
		cache:    embedcache.New(cfg.Embedding.CacheMaxEntries),
		vectors:  store,
		fulltext: fts,
		logger:   logger,
		metrics:  metrics,
		fileSem:  semaphore.NewWeighted(int64(fileConcurrency)),
		embedSem: semaphore.NewWeighted(int64(embedConcurrency)),
	}
}

// Run walks chunkRoot for ".jsonl" files and processes each under the
// file-level concurrency limit, matching
// original_source/src/insert.rs::run's WalkDir + Semaphore fan-out.
func (c *Coordinator) Run(ctx context.Context) (int, int, error) {
	var files []string
	err := filepath.WalkDir(c.cfg.Paths.ChunkRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".jsonl" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, 0, &errs.InputError{Path: c.cfg.Paths.ChunkRoot, Msg: "walk chunk root", Err: err}
	}
	if len(files) == 0 {
		c.logger.Info("no chunk files found for insert", nil)
		return 0, 0, nil
	}

	c.logger.Info("insert starting", map[string]any{
		"total_files":        len(files),
		"max_parallel_files": c.cfg.Insert.MaxParallelFiles,
	})

	g, gctx := errgroup.WithContext(ctx)
	totalChunks := 0
	for _, path := range files {
		path := path
		if err := c.fileSem.Acquire(gctx, 1); err != nil {
			return 0, 0, err
		}
		g.Go(func() error {
			defer c.fileSem.Release(1)
			c.logger.Info("insert file start", map[string]any{"path": path})
			count, err := c.ingestFile(gctx, path)
			if err != nil {
				return fmt.Errorf("insert file %s: %w", path, err)
			}
			c.logger.Info("insert file complete", map[string]any{"path": path, "count": count})
			totalChunks += count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(files), totalChunks, err
	}

	c.logger.Info("insert complete", map[string]any{"total_files": len(files), "total_chunks": totalChunks})
	return len(files), totalChunks, nil
}

// ingestFile streams path's JSONL records into batches of
// cfg.Insert.BatchSize and processes each as it fills, matching
// original_source/src/insert.rs::ingest_file's buffering.
func (c *Coordinator) ingestFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &errs.InputError{Path: path, Msg: "open chunk file", Err: err}
	}
	defer f.Close()

	batchSize := c.cfg.Insert.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	total := 0
	linesSeen := 0
	batchIdx := 0
	var buffer []ChunkRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		linesSeen++
		var rec ChunkRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return total, &errs.InputError{Path: path, Msg: "parse chunk record", Err: err}
		}
		buffer = append(buffer, rec)
		if len(buffer) >= batchSize {
			batchIdx++
			n, err := c.processBatch(ctx, path, batchIdx, linesSeen, buffer)
			if err != nil {
				return total, err
			}
			total += n
			buffer = buffer[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return total, &errs.InputError{Path: path, Msg: "scan chunk file", Err: err}
	}
	if len(buffer) > 0 {
		batchIdx++
		n, err := c.processBatch(ctx, path, batchIdx, linesSeen, buffer)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// processBatch embeds (via cache probe then misses), upserts, and
// indexes one batch, matching
// original_source/src/insert.rs::process_batch's logging shape
// (min/max/avg text length, first/last id).
func (c *Coordinator) processBatch(ctx context.Context, path string, batchIdx, linesSeen int, batch []ChunkRecord) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	start := time.Now()
	firstID, lastID := batch[0].ID, batch[len(batch)-1].ID
	minLen, maxLen, sumLen := len(batch[0].Text), 0, 0
	for _, r := range batch {
		l := len(r.Text)
		if l < minLen {
			minLen = l
		}
		if l > maxLen {
			maxLen = l
		}
		sumLen += l
	}
	avgLen := sumLen / len(batch)

	c.logger.Info("embedding batch start", map[string]any{
		"path": path, "batch_idx": batchIdx, "batch_len": len(batch), "lines_seen": linesSeen,
		"first_id": firstID, "last_id": lastID, "min_len": minLen, "max_len": maxLen, "avg_len": avgLen,
	})

	vectors, err := c.embedBatch(ctx, batch)
	if err != nil {
		return 0, err
	}

	vectorDim := 0
	if len(vectors) > 0 {
		vectorDim = len(vectors[0])
	}
	c.metrics.ObserveHistogram(obs.MetricStageDurationMS, float64(time.Since(start).Milliseconds()), map[string]string{"stage": "embed"})
	c.logger.Info("embedding batch complete", map[string]any{
		"path": path, "batch_idx": batchIdx, "batch_len": len(batch), "vector_dim": vectorDim,
	})

	if err := c.upsertAndIndex(ctx, path, batchIdx, batch, vectors); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// embedBatch resolves each record's vector from the cache when present,
// embeds each distinct missing text once (records repeating a text in the
// same batch share its vector), groups those cache misses into
// request_batch_size-sized
// sub-batches, and fans those sub-batches out under the global embedding
// semaphore — one permit held for the lifetime of each sub-batch's calls
// to the Embedder, matching spec §4.9's "group into request-sized
// sub-batches... and dispatch each sub-batch to the Embedder under a
// global embedding permit."
func (c *Coordinator) embedBatch(ctx context.Context, batch []ChunkRecord) ([][]float32, error) {
	vectors := make([][]float32, len(batch))

	var misses []int
	firstByText := map[string]int{}
	dupOf := map[int]int{}
	for i, rec := range batch {
		if cached, ok := c.cache.Get(rec.Text); ok {
			vectors[i] = cached
			c.metrics.IncCounter(obs.MetricEmbedCacheHits, nil)
			continue
		}
		c.metrics.IncCounter(obs.MetricEmbedCacheMisses, nil)
		if j, seen := firstByText[rec.Text]; seen {
			dupOf[i] = j
			continue
		}
		firstByText[rec.Text] = i
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return vectors, nil
	}

	requestBatchSize := c.cfg.Embedding.RequestBatchSize
	if requestBatchSize < 1 {
		requestBatchSize = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(misses); start += requestBatchSize {
		end := start + requestBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		sub := misses[start:end]

		if err := c.embedSem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer c.embedSem.Release(1)
			for _, i := range sub {
				text := batch[i].Text
				vec, err := c.embedder.Embed(gctx, text)
				if err != nil {
					return err
				}
				vectors[i] = vec
				c.cache.Insert(text, vec)
				c.metrics.IncCounter(obs.MetricEmbedRequests, nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, j := range dupOf {
		vectors[i] = vectors[j]
	}
	return vectors, nil
}

// upsertAndIndex writes the batch to the vector store and full-text
// index concurrently, matching original_source/src/insert.rs's
// sequential-but-independent upsert_qdrant/ingest_quickwit calls
// (run concurrently here since neither depends on the other's result).
func (c *Coordinator) upsertAndIndex(ctx context.Context, path string, batchIdx int, batch []ChunkRecord, vectors [][]float32) error {
	if len(batch) != len(vectors) {
		return &errs.InvariantError{Msg: fmt.Sprintf("embedding batch mismatch: %d records, %d vectors", len(batch), len(vectors))}
	}

	g, gctx := errgroup.WithContext(ctx)

	if c.vectors != nil {
		g.Go(func() error {
			start := time.Now()
			points := make([]vectorstore.Point, len(batch))
			for i, r := range batch {
				points[i] = vectorstore.Point{ID: r.ID, Vector: vectors[i], Metadata: r.Metadata}
			}
			if err := c.vectors.Upsert(gctx, points); err != nil {
				return err
			}
			c.metrics.IncCounter(obs.MetricVectorUpserts, nil)
			c.metrics.ObserveHistogram(obs.MetricStageDurationMS, float64(time.Since(start).Milliseconds()), map[string]string{"stage": "vector_upsert"})
			c.logger.Info("qdrant upsert complete", map[string]any{"path": path, "batch_idx": batchIdx, "batch_len": len(batch)})
			return nil
		})
	}

	if c.fulltext != nil {
		g.Go(func() error {
			start := time.Now()
			docs := make([]ftsindex.Document, len(batch))
			for i, r := range batch {
				docs[i] = ftsindex.Document{ID: r.ID, Text: r.Text, Metadata: r.Metadata}
			}
			if err := c.fulltext.Ingest(gctx, docs); err != nil {
				return err
			}
			c.metrics.IncCounter(obs.MetricFullTextDocuments, nil)
			c.metrics.ObserveHistogram(obs.MetricStageDurationMS, float64(time.Since(start).Milliseconds()), map[string]string{"stage": "fulltext_ingest"})
			c.logger.Info("quickwit ingest complete", map[string]any{"path": path, "batch_idx": batchIdx, "batch_len": len(batch)})
			return nil
		})
	}

	return g.Wait()
}
