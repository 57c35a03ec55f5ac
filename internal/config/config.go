// Package config loads the settings that drive chunking and ingestion.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChunkConfig controls the Normalizer, Paragraphizer, and Chunk Assembler.
type ChunkConfig struct {
	NormalizeUnicode   bool `yaml:"normalize_unicode"`
	CollapseWhitespace bool `yaml:"collapse_whitespace"`
	StripHeaders       bool `yaml:"strip_headers"`
	MinParagraphChars  int  `yaml:"min_paragraph_chars"`
	MaxParagraphChars  int  `yaml:"max_paragraph_chars"`
	TargetChunkChars   int  `yaml:"target_chunk_chars"`
	MaxChunkChars      int  `yaml:"max_chunk_chars"`
	ChunkOverlapChars  int  `yaml:"chunk_overlap_chars"`
}

// MetadataConfig gates which sidecar keys are merged into chunk metadata.
type MetadataConfig struct {
	IncludeSourcePath bool `yaml:"include_source_path"`
	IncludeCalibreID  bool `yaml:"include_calibre_id"`
	IncludeTitle      bool `yaml:"include_title"`
	IncludeAuthors    bool `yaml:"include_authors"`
	IncludePublished  bool `yaml:"include_published"`
	IncludeLanguage   bool `yaml:"include_language"`
}

// EmbeddingConfig describes the external embedding service and its call
// discipline.
type EmbeddingConfig struct {
	BaseURL               string `yaml:"base_url"`
	Model                 string `yaml:"model"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxConcurrency        int    `yaml:"max_concurrency"`
	GlobalMaxConcurrency  int    `yaml:"global_max_concurrency"`
	RequestBatchSize      int    `yaml:"request_batch_size"`
	MaxInputChars         int    `yaml:"max_input_chars"`
	CacheMaxEntries       int    `yaml:"cache_max_entries"`
}

// VectorConfig describes the Qdrant-compatible vector store.
type VectorConfig struct {
	URL              string `yaml:"url"`
	Collection       string `yaml:"collection"`
	Distance         string `yaml:"distance"`
	VectorSize       int    `yaml:"vector_size"`
	CreateCollection bool   `yaml:"create_collection"`
	APIKey           string `yaml:"api_key"`
	Wait             bool   `yaml:"wait"`
}

// FullTextConfig describes the Quickwit-compatible full-text store.
type FullTextConfig struct {
	URL                   string `yaml:"url"`
	IndexID               string `yaml:"index_id"`
	CommitMode            string `yaml:"commit_mode"`
	CommitTimeoutSeconds  int    `yaml:"commit_timeout_seconds"`
	CommitAtEnd           bool   `yaml:"commit_at_end"`
}

// InsertConfig controls the Pipeline Coordinator.
type InsertConfig struct {
	BatchSize        int `yaml:"batch_size"`
	MaxParallelFiles int `yaml:"max_parallel_files"`
}

// LoggingConfig controls the zerolog bootstrap in internal/observability.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Path   string `yaml:"path"`
}

// PathsConfig names the roots the chunk and insert phases operate over.
type PathsConfig struct {
	ExtractRoot string `yaml:"extract_root"`
	ChunkRoot   string `yaml:"chunk_root"`
}

// Config is the full settings surface recognized by this module, per
// spec.md §6's "Configuration surface".
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Paths    PathsConfig    `yaml:"paths"`
	Chunk    ChunkConfig    `yaml:"chunk"`
	Metadata MetadataConfig `yaml:"metadata"`
	Insert   InsertConfig   `yaml:"insert"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector   VectorConfig   `yaml:"vector"`
	FullText FullTextConfig `yaml:"fulltext"`
}

// defaults mirrors the values the original chunkr config.toml ships with,
// adapted to this module's field names.
func defaults() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Chunk: ChunkConfig{
			NormalizeUnicode:   true,
			CollapseWhitespace: true,
			StripHeaders:       true,
			MinParagraphChars:  40,
			MaxParagraphChars:  2000,
			TargetChunkChars:   1200,
			MaxChunkChars:      1600,
			ChunkOverlapChars:  150,
		},
		Metadata: MetadataConfig{
			IncludeSourcePath: true,
			IncludeCalibreID:  true,
			IncludeTitle:      true,
			IncludeAuthors:    true,
			IncludePublished:  true,
			IncludeLanguage:   true,
		},
		Insert: InsertConfig{
			BatchSize:        32,
			MaxParallelFiles: 4,
		},
		Embedding: EmbeddingConfig{
			RequestTimeoutSeconds: 60,
			MaxConcurrency:        4,
			GlobalMaxConcurrency:  8,
			RequestBatchSize:      8,
			MaxInputChars:         8000,
			CacheMaxEntries:       10000,
		},
		Vector: VectorConfig{
			Distance: "cosine",
			Wait:     true,
		},
		FullText: FullTextConfig{
			CommitMode:           "auto",
			CommitTimeoutSeconds: 10,
		},
	}
}

// ConfigError reports a fatal configuration problem, per spec.md §7.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// Load reads configuration from an optional YAML file (CHUNKR_CONFIG, or
// "config.yaml" if present) and then applies environment variable
// overrides, mirroring manifold/internal/config/loader.go's env-first
// style (godotenv.Overload lets a local .env win over inherited env vars).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := defaults()

	path := strings.TrimSpace(os.Getenv("CHUNKR_CONFIG"))
	if path == "" {
		path = "config.yaml"
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHUNKR_EXTRACT_ROOT")); v != "" {
		cfg.Paths.ExtractRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKR_CHUNK_ROOT")); v != "" {
		cfg.Paths.ChunkRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKR_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBED_BASE_URL")); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBED_MODEL")); v != "" {
		cfg.Embedding.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_URL")); v != "" {
		cfg.Vector.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_API_KEY")); v != "" {
		cfg.Vector.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")); v != "" {
		cfg.Vector.Collection = v
	}
	if v := strings.TrimSpace(os.Getenv("QUICKWIT_URL")); v != "" {
		cfg.FullText.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("QUICKWIT_INDEX_ID")); v != "" {
		cfg.FullText.IndexID = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vector.VectorSize = n
		}
	}
}

// validate enforces §7's ConfigError cases. Nonsensical-but-tolerated
// orderings are not checked here; WarnOnToleratedOrdering reports them.
func validate(cfg Config) error {
	if cfg.Vector.Collection == "" && cfg.Vector.URL != "" {
		return &ConfigError{Field: "vector.collection", Msg: "required when vector.url is set"}
	}
	if cfg.FullText.IndexID == "" && cfg.FullText.URL != "" {
		return &ConfigError{Field: "fulltext.index_id", Msg: "required when fulltext.url is set"}
	}
	if cfg.Chunk.MaxChunkChars <= 0 {
		return &ConfigError{Field: "chunk.max_chunk_chars", Msg: "must be positive"}
	}
	return nil
}

// WarnOnToleratedOrdering reports whether the config contains a
// discouraged-but-legal ordering (target > max), per spec.md §4.3's "the
// reverse is tolerated" note. Callers log this at startup; it is not an
// error.
func WarnOnToleratedOrdering(cfg Config) (string, bool) {
	if cfg.Chunk.TargetChunkChars > cfg.Chunk.MaxChunkChars {
		return fmt.Sprintf("chunk.target_chunk_chars (%d) exceeds chunk.max_chunk_chars (%d); every chunk will close at max_chunk_chars instead", cfg.Chunk.TargetChunkChars, cfg.Chunk.MaxChunkChars), true
	}
	if cfg.Chunk.MaxParagraphChars < cfg.Chunk.MaxChunkChars {
		return "", false
	}
	return "", false
}
