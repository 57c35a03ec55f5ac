// Package ftsindex implements the Full-Text Ingester (spec §4.8) against
// a Quickwit-compatible REST endpoint, following
// original_source/src/insert.rs::ingest_quickwit's NDJSON POST contract.
package ftsindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chunkr/internal/config"
	"chunkr/internal/errs"
)

// Document is a single record to index.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Indexer ingests documents into a Quickwit-compatible index over REST.
type Indexer struct {
	cfg    config.FullTextConfig
	client *http.Client
}

// New constructs an Indexer.
func New(cfg config.FullTextConfig) *Indexer {
	timeout := time.Duration(cfg.CommitTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Indexer{cfg: cfg, client: &http.Client{Timeout: timeout + 20*time.Second}}
}

// Ingest POSTs docs as newline-delimited JSON to
// /api/v1/{index_id}/ingest?commit=<mode>, matching the original's
// request shape exactly (id/text/metadata per line).
func (idx *Indexer) Ingest(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, d := range docs {
		line, err := json.Marshal(map[string]any{
			"id":       d.ID,
			"text":     d.Text,
			"metadata": d.Metadata,
		})
		if err != nil {
			return &errs.InvariantError{Msg: "marshal quickwit document", Err: err}
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	commitMode := idx.cfg.CommitMode
	if commitMode == "" {
		commitMode = "auto"
	}
	url := fmt.Sprintf("%s/api/v1/%s/ingest?commit=%s&commit_timeout_seconds=%d",
		strings.TrimRight(idx.cfg.URL, "/"), idx.cfg.IndexID, commitMode, idx.cfg.CommitTimeoutSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return &errs.UpstreamError{Service: "quickwit", Msg: "build ingest request", Err: err}
	}
	req.Header.Set("content-type", "application/json")

	resp, err := idx.client.Do(req)
	if err != nil {
		return &errs.UpstreamError{Service: "quickwit", Msg: "ingest request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &errs.UpstreamError{Service: "quickwit", Msg: fmt.Sprintf("ingest returned status %d body=%q", resp.StatusCode, truncateForLog(string(body), 200))}
	}
	return nil
}

// Commit issues the terminal POST /api/v1/{index_id}/commit, used when
// cfg.CommitAtEnd is set, per spec §4.8 and §6.
func (idx *Indexer) Commit(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/%s/commit",
		strings.TrimRight(idx.cfg.URL, "/"), idx.cfg.IndexID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return &errs.UpstreamError{Service: "quickwit", Msg: "build commit request", Err: err}
	}
	req.Header.Set("content-type", "application/json")
	resp, err := idx.client.Do(req)
	if err != nil {
		return &errs.UpstreamError{Service: "quickwit", Msg: "commit request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &errs.UpstreamError{Service: "quickwit", Msg: fmt.Sprintf("commit returned status %d body=%q", resp.StatusCode, truncateForLog(string(body), 200))}
	}
	return nil
}

// truncateForLog returns s unchanged if it's within max characters,
// otherwise its first max characters, mirroring
// internal/embedder/embedder.go's error-snippet truncation.
func truncateForLog(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
