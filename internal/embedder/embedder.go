// Package embedder implements the Embedder (spec §4.6): it turns chunk
// text into vectors by calling an Ollama-compatible embedding endpoint,
// truncating oversized inputs by character count and annotating failures
// with the request's shape for diagnosis.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"chunkr/internal/config"
	"chunkr/internal/errs"
)

// Embedder converts a single piece of text into its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// httpEmbedder calls {base_url}/api/embeddings with {"model","prompt"}
// and expects {"embedding":[...]}, mirroring
// original_source/src/insert.rs::embed_text.
type httpEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewHTTP constructs an Embedder backed by an Ollama-compatible HTTP
// endpoint, with a request timeout drawn from cfg.RequestTimeoutSeconds.
func NewHTTP(cfg config.EmbeddingConfig) Embedder {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *httpEmbedder) Name() string { return h.cfg.Model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []any `json:"embedding"`
}

// toFloat32 coerces an arbitrary decoded JSON value to float32,
// defaulting to 0.0 for an absent, non-numeric, or otherwise unparsable
// value, matching original_source/src/insert.rs::embed_text's
// `v.as_f64().unwrap_or(0.0) as f32`.
func toFloat32(v any) float32 {
	switch n := v.(type) {
	case float64:
		return float32(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0.0
		}
		return float32(f)
	default:
		return 0.0
	}
}

// Embed truncates text to cfg.MaxInputChars characters (when positive)
// before sending it, and wraps any transport failure, non-2xx response or
// malformed body in an errs.UpstreamError carrying the response status
// (when a response arrived), a text-length field, and a short snippet for
// log correlation.
func (h *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.cfg.MaxInputChars > 0 {
		runes := []rune(text)
		if len(runes) > h.cfg.MaxInputChars {
			text = string(runes[:h.cfg.MaxInputChars])
		}
	}

	url := strings.TrimRight(h.cfg.BaseURL, "/") + "/api/embeddings"
	payload, err := json.Marshal(embedRequest{Model: h.cfg.Model, Prompt: text})
	if err != nil {
		return nil, &errs.InvariantError{Msg: "marshal embed request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &errs.UpstreamError{Service: "ollama", Msg: "build request", Err: err}
	}
	req.Header.Set("content-type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &errs.UpstreamError{Service: "ollama", Msg: fmt.Sprintf("request failed text_len=%d snippet=%q", len(text), truncateForLog(text, 120)), Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.UpstreamError{
			Service: "ollama",
			Msg:     fmt.Sprintf("status %d body=%q text_len=%d snippet=%q", resp.StatusCode, truncateForLog(string(body), 200), len(text), truncateForLog(text, 120)),
		}
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &errs.UpstreamError{Service: "ollama", Msg: fmt.Sprintf("malformed response body status %d text_len=%d snippet=%q", resp.StatusCode, len(text), truncateForLog(text, 120)), Err: err}
	}
	if parsed.Embedding == nil {
		return nil, &errs.UpstreamError{Service: "ollama", Msg: fmt.Sprintf("missing embedding field in response status %d text_len=%d snippet=%q", resp.StatusCode, len(text), truncateForLog(text, 120))}
	}
	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = toFloat32(v)
	}
	return vec, nil
}

func truncateForLog(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// deterministicEmbedder is an offline embedder for tests and CI runs
// that don't have Ollama reachable: it feature-hashes a chunk's
// whitespace-delimited words (full weight) and the 3-byte trigrams of
// each lower-cased word (half weight) into a fixed-size vector, so near-duplicate
// chunk text lands close in vector space without a live embedding
// service. This dual granularity matters for the Chunk Assembler's
// overlap tail (spec §4.3): two chunks sharing an overlap region share
// both word and trigram features, so a cosine-similarity test can
// assert they're close even though neither is byte-identical to the
// other.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint64
	name      string
}

// NewDeterministic constructs a deterministic embedder with the given
// dimension. If normalize is true, vectors are L2-normalized. Seed
// perturbs hashing so distinct fixtures can avoid collisions.
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed, name: "deterministic"}
}

func (d *deterministicEmbedder) Name() string { return d.name }

func (d *deterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, d.dim)
	if strings.TrimSpace(text) == "" {
		return v, nil
	}

	for _, word := range strings.Fields(text) {
		d.hashInto(v, []byte(word), 1.0)
		lower := []byte(strings.ToLower(word))
		for _, gram := range trigrams(lower) {
			d.hashInto(v, gram, 0.5)
		}
	}

	if d.normalize {
		l2Normalize(v)
	}
	return v, nil
}

// trigrams splits b into overlapping 3-byte windows, or returns b
// whole when it's shorter than a trigram.
func trigrams(b []byte) [][]byte {
	if len(b) < 3 {
		return [][]byte{b}
	}
	out := make([][]byte, 0, len(b)-2)
	for i := 0; i <= len(b)-3; i++ {
		out = append(out, b[i:i+3])
	}
	return out
}

// hashInto folds gram's FNV-1a hash (salted by the embedder's seed)
// into a single dimension of v, scaled by weight.
func (d *deterministicEmbedder) hashInto(v []float32, gram []byte, weight float32) {
	h := fnv.New64a()
	if d.seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(d.seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	sign := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += sign * weight
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum <= 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
