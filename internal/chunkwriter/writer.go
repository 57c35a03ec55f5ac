// Package chunkwriter implements the Chunk Writer (spec §4.4): it assigns
// stable ids to assembled chunks, merges sidecar metadata, and streams the
// result to a path-mirrored JSONL file under the chunk root.
package chunkwriter

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chunkr/internal/config"
)

// Record is a single emitted chunk line, matching
// original_source/src/chunk.rs::ChunkRecord's JSON shape.
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// OutputPath mirrors the relative path of srcPath (relative to
// extractRoot) into chunkRoot, swapping its extension for ".jsonl". It
// follows original_source/src/util.rs::replace_extension applied to the
// relocated path.
func OutputPath(extractRoot, chunkRoot, srcPath string) (string, error) {
	rel, err := filepath.Rel(extractRoot, srcPath)
	if err != nil {
		rel = filepath.Base(srcPath)
	}
	ext := filepath.Ext(rel)
	rel = strings.TrimSuffix(rel, ext) + ".jsonl"
	return filepath.Join(chunkRoot, rel), nil
}

// LoadSidecarMetadata reads the ".json" sidecar next to srcPath, if any,
// and returns its top-level object. A missing sidecar yields an empty,
// non-nil map rather than an error, mirroring
// original_source/src/chunk.rs::load_metadata.
func LoadSidecarMetadata(srcPath string) (map[string]any, error) {
	ext := filepath.Ext(srcPath)
	metaPath := strings.TrimSuffix(srcPath, ext) + ".json"
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// shouldIncludeMetadataKey gates a sidecar key by name per
// config.MetadataConfig, mirroring
// original_source/src/chunk.rs::should_include_metadata. Keys the
// config doesn't recognize pass through unconditionally.
func shouldIncludeMetadataKey(key string, cfg config.MetadataConfig) bool {
	switch key {
	case "calibre_id":
		return cfg.IncludeCalibreID
	case "title":
		return cfg.IncludeTitle
	case "authors":
		return cfg.IncludeAuthors
	case "published":
		return cfg.IncludePublished
	case "language":
		return cfg.IncludeLanguage
	default:
		return true
	}
}

// Write streams chunkTexts to outPath as newline-delimited JSON records,
// creating parent directories as needed. Each record gets a fresh UUIDv4
// id, positional chunk_index, byte-offset char_start/char_end (cursor
// advances by len(chunkText), not rune count, per
// original_source/src/chunk.rs::chunk_file), and source-path and sidecar
// metadata gated by cfg.Metadata. It returns the number of records
// written.
func Write(outPath, srcPath, relPath string, chunkTexts []string, sidecar map[string]any, cfg config.Config) (int, error) {
	if len(chunkTexts) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	cursor := 0
	for idx, text := range chunkTexts {
		meta := map[string]any{}
		if cfg.Metadata.IncludeSourcePath {
			meta["source_path"] = srcPath
			meta["source_rel"] = relPath
		}
		meta["chunk_index"] = idx
		meta["char_start"] = cursor
		meta["char_end"] = cursor + len(text)
		cursor += len(text)

		for k, v := range sidecar {
			if shouldIncludeMetadataKey(k, cfg.Metadata) {
				meta[k] = v
			}
		}

		rec := Record{ID: uuid.NewString(), Text: text, Metadata: meta}
		line, err := json.Marshal(rec)
		if err != nil {
			return idx, err
		}
		if _, err := w.Write(line); err != nil {
			return idx, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return idx, err
		}
	}
	if err := w.Flush(); err != nil {
		return len(chunkTexts), err
	}
	return len(chunkTexts), nil
}
