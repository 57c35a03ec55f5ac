// Package vectorstore implements the Vector Upserter (spec §4.7) against
// a Qdrant-compatible REST API, following the original implementation's
// plain HTTP contract (original_source/src/insert.rs::upsert_qdrant)
// rather than Qdrant's gRPC client: PUT
// /collections/{name}/points?wait=<bool>.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"chunkr/internal/config"
	"chunkr/internal/errs"
)

// payloadIDField mirrors
// manifold/internal/persistence/databases/qdrant_vector.go's
// PAYLOAD_ID_FIELD: Qdrant point ids must be UUIDs or positive
// integers, so non-UUID chunk ids are mapped deterministically and the
// original id is preserved in the payload.
const payloadIDField = "_original_id"

// Point is a single vector record to upsert.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Store upserts points into a Qdrant-compatible collection over REST.
type Store struct {
	cfg    config.VectorConfig
	client *http.Client
}

// New constructs a Store. If cfg.CreateCollection is set, EnsureCollection
// should be called once at startup (best effort, matching
// original_source/src/insert.rs::ensure_qdrant_collection, which only
// warns on failure rather than aborting the run).
func New(cfg config.VectorConfig) *Store {
	return &Store{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

// EnsureCollection attempts to create the configured collection with the
// configured vector size and distance metric. Failures are returned to
// the caller to log, not treated as fatal: the collection may already
// exist under a different config.
func (s *Store) EnsureCollection(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", strings.TrimRight(s.cfg.URL, "/"), s.cfg.Collection)
	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorSize,
			"distance": s.cfg.Distance,
		},
	})
	if err != nil {
		return &errs.InvariantError{Msg: "marshal create-collection body", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return &errs.UpstreamError{Service: "qdrant", Msg: "build create-collection request", Err: err}
	}
	s.applyAuth(req)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &errs.UpstreamError{Service: "qdrant", Msg: "create-collection request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &errs.UpstreamError{Service: "qdrant", Msg: fmt.Sprintf("create collection returned status %d body=%q", resp.StatusCode, truncateForLog(string(body), 200))}
	}
	return nil
}

// Upsert sends a batch of points as a single PUT, per
// original_source/src/insert.rs::upsert_qdrant. Point ids that are not
// valid UUIDs are mapped to a deterministic UUIDv5 so Qdrant accepts
// them, and the original id is retained under payloadIDField.
func (s *Store) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	wire := make([]map[string]any, 0, len(points))
	for _, p := range points {
		pointID := p.ID
		payload := make(map[string]any, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			payload[k] = v
		}
		if _, err := uuid.Parse(p.ID); err != nil {
			mapped := uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ID)).String()
			payload[payloadIDField] = p.ID
			pointID = mapped
		}
		wire = append(wire, map[string]any{
			"id":      pointID,
			"vector":  p.Vector,
			"payload": payload,
		})
	}

	body, err := json.Marshal(map[string]any{"points": wire})
	if err != nil {
		return &errs.InvariantError{Msg: "marshal upsert body", Err: err}
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=%t", strings.TrimRight(s.cfg.URL, "/"), s.cfg.Collection, s.cfg.Wait)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return &errs.UpstreamError{Service: "qdrant", Msg: "build upsert request", Err: err}
	}
	s.applyAuth(req)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &errs.UpstreamError{Service: "qdrant", Msg: "upsert request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &errs.UpstreamError{Service: "qdrant", Msg: fmt.Sprintf("upsert returned status %d body=%q", resp.StatusCode, truncateForLog(string(body), 200))}
	}
	return nil
}

func (s *Store) applyAuth(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
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
