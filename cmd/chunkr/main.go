// Command chunkr runs the chunking and insert phases of the ingestion
// pipeline: "chunk" walks a tree of plain-text files into path-mirrored
// JSONL chunk files (spec §4.1-§4.4); "insert" walks those chunk files
// and loads them into the vector store and full-text index under the
// three-level concurrency discipline (spec §4.9-§5). Grounded on
// original_source/src/main.rs's Commands enum (Extract and Dups are
// out of scope per spec.md §1) and manifold/cmd/embedctl/main.go's
// stdlib-flag subcommand style.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"chunkr/internal/chunker"
	"chunkr/internal/chunkwriter"
	"chunkr/internal/config"
	"chunkr/internal/embedder"
	"chunkr/internal/errs"
	"chunkr/internal/ftsindex"
	"chunkr/internal/obs"
	"chunkr/internal/observability"
	"chunkr/internal/paragraph"
	"chunkr/internal/pipeline"
	"chunkr/internal/textnorm"
	"chunkr/internal/vectorstore"
)

func main() {
	log.SetFlags(0)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <chunk|insert> [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	extractRoot := fs.String("extract-root", "", "override paths.extract_root")
	chunkRoot := fs.String("chunk-root", "", "override paths.chunk_root")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *extractRoot != "" {
		cfg.Paths.ExtractRoot = *extractRoot
	}
	if *chunkRoot != "" {
		cfg.Paths.ChunkRoot = *chunkRoot
	}

	logger := observability.Init(cfg.Logging)
	if msg, warn := config.WarnOnToleratedOrdering(cfg); warn {
		log.Printf("warning: %s", msg)
	}

	switch cmd {
	case "chunk":
		if err := runChunk(cfg, logger); err != nil {
			log.Fatalf("chunk: %v", err)
		}
	case "insert":
		if err := runInsert(cfg, logger); err != nil {
			log.Fatalf("insert: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runChunk implements the "chunk" subcommand (spec §2 stages 1-4): walk
// extract_root for ".txt" files and, for each, run
// Normalizer -> Paragraphizer -> Chunk Assembler -> Chunk Writer,
// mirroring original_source/src/chunk.rs::run/chunk_file.
func runChunk(cfg config.Config, logger obs.Logger) error {
	if cfg.Paths.ExtractRoot == "" {
		return &config.ConfigError{Field: "paths.extract_root", Msg: "required for the chunk phase"}
	}
	if cfg.Paths.ChunkRoot == "" {
		return &config.ConfigError{Field: "paths.chunk_root", Msg: "required for the chunk phase"}
	}

	totalFiles, totalChunks := 0, 0
	err := filepath.WalkDir(cfg.Paths.ExtractRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".txt" {
			return nil
		}
		totalFiles++
		n, err := chunkFile(path, cfg, logger)
		if err != nil {
			return fmt.Errorf("chunk file %s: %w", path, err)
		}
		totalChunks += n
		return nil
	})
	if err != nil {
		return &errs.InputError{Path: cfg.Paths.ExtractRoot, Msg: "walk extract root", Err: err}
	}

	logger.Info("chunk complete", map[string]any{"total_files": totalFiles, "total_chunks": totalChunks})
	return nil
}

// chunkFile runs the four chunking stages over a single source file and
// writes its JSONL output, returning the number of chunks written.
func chunkFile(path string, cfg config.Config, logger obs.Logger) (int, error) {
	rel, err := filepath.Rel(cfg.Paths.ExtractRoot, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	outPath, err := chunkwriter.OutputPath(cfg.Paths.ExtractRoot, cfg.Paths.ChunkRoot, path)
	if err != nil {
		return 0, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, &errs.InputError{Path: path, Msg: "read source file", Err: err}
	}

	normalized := textnorm.Normalize(string(raw), textnorm.Options{
		NormalizeUnicode:   cfg.Chunk.NormalizeUnicode,
		CollapseWhitespace: cfg.Chunk.CollapseWhitespace,
	})
	if strings.TrimSpace(normalized) == "" {
		logger.Warn("empty text after normalization", map[string]any{"path": path})
		return 0, nil
	}

	paragraphs := paragraph.Split(normalized, paragraph.Options{
		StripHeaders:      cfg.Chunk.StripHeaders,
		MinParagraphChars: cfg.Chunk.MinParagraphChars,
	})

	chunkTexts := chunker.Assemble(paragraphs, chunker.Options{
		MaxParagraphChars: cfg.Chunk.MaxParagraphChars,
		TargetChunkChars:  cfg.Chunk.TargetChunkChars,
		MaxChunkChars:     cfg.Chunk.MaxChunkChars,
		ChunkOverlapChars: cfg.Chunk.ChunkOverlapChars,
	})
	if len(chunkTexts) == 0 {
		logger.Warn("no chunks emitted", map[string]any{"path": path})
		return 0, nil
	}

	sidecar, err := chunkwriter.LoadSidecarMetadata(path)
	if err != nil {
		return 0, &errs.InputError{Path: path, Msg: "load sidecar metadata", Err: err}
	}

	n, err := chunkwriter.Write(outPath, path, rel, chunkTexts, sidecar, cfg)
	if err != nil {
		return n, &errs.InputError{Path: path, Msg: "write chunk file", Err: err}
	}
	logger.Debug("chunked file", map[string]any{"path": path, "chunks": n, "out": outPath})
	return n, nil
}

// runInsert implements the "insert" subcommand (spec §4.9): construct
// the embedder, vector store, and full-text indexer from cfg, optionally
// pre-create the vector collection, then run the Pipeline Coordinator
// over chunk_root.
func runInsert(cfg config.Config, logger obs.Logger) error {
	if cfg.Paths.ChunkRoot == "" {
		return &config.ConfigError{Field: "paths.chunk_root", Msg: "required for the insert phase"}
	}

	ctx := context.Background()
	metrics := obs.NewOtelMetrics()
	emb := embedder.NewHTTP(cfg.Embedding)

	var store *vectorstore.Store
	if cfg.Vector.URL != "" {
		store = vectorstore.New(cfg.Vector)
		if cfg.Vector.CreateCollection {
			if err := store.EnsureCollection(ctx); err != nil {
				logger.Warn("collection creation failed, continuing", map[string]any{"err": err.Error()})
			}
		}
	}

	var fts *ftsindex.Indexer
	if cfg.FullText.URL != "" {
		fts = ftsindex.New(cfg.FullText)
	}

	coord := pipeline.New(cfg, emb, store, fts, logger, metrics)
	totalFiles, totalChunks, err := coord.Run(ctx)
	if err != nil {
		return err
	}

	if fts != nil && cfg.FullText.CommitAtEnd {
		if err := fts.Commit(ctx); err != nil {
			return fmt.Errorf("terminal commit: %w", err)
		}
	}

	logger.Info("insert complete", map[string]any{"total_files": totalFiles, "total_chunks": totalChunks})
	return nil
}
