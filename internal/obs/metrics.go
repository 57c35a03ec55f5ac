package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the counter/histogram surface the Pipeline Coordinator
// reports through (covering its embedding, vector-upsert and full-text
// stages), so it stays testable against MockMetrics without depending on
// OpenTelemetry directly.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// Counter and histogram names the Pipeline Coordinator reports under
// (internal/pipeline/pipeline.go). Kept as constants here, rather than
// inlined at each call site, so a rename touches one place and a
// dashboard query string never gets copy-pasted wrong.
const (
	MetricStageDurationMS   = "pipeline_stage_ms"
	MetricEmbedCacheHits    = "embedding_cache_hits_total"
	MetricEmbedCacheMisses  = "embedding_cache_misses_total"
	MetricEmbedRequests     = "embedding_requests_total"
	MetricVectorUpserts     = "vector_upserts_total"
	MetricFullTextDocuments = "fulltext_documents_total"
)

// instrumentCache lazily creates and memoizes OpenTelemetry
// instruments by name behind a double-checked read lock: the
// read-locked fast path covers the steady state where every
// instrument a run will ever touch was already created on first use,
// and the write lock only activates on a cache miss.
type instrumentCache[T any] struct {
	mu     sync.RWMutex
	byName map[string]T
	create func(name string) (T, error)
}

func newInstrumentCache[T any](create func(string) (T, error)) *instrumentCache[T] {
	return &instrumentCache[T]{byName: make(map[string]T), create: create}
}

func (c *instrumentCache[T]) get(name string) (T, bool) {
	c.mu.RLock()
	inst, ok := c.byName[name]
	c.mu.RUnlock()
	if ok {
		return inst, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok = c.byName[name]; ok {
		return inst, true
	}
	inst, err := c.create(name)
	if err != nil {
		var zero T
		return zero, false
	}
	c.byName[name] = inst
	return inst, true
}

// OtelMetrics is a thin adapter over an OpenTelemetry metric.Meter
// satisfying Metrics, used by cmd/chunkr to report real numbers when
// an OTel collector is configured via the usual OTEL_EXPORTER_* env
// vars (exporter setup is left to the process environment rather than
// this package).
type OtelMetrics struct {
	counters   *instrumentCache[metric.Int64Counter]
	histograms *instrumentCache[metric.Float64Histogram]
}

// NewOtelMetrics constructs an OtelMetrics using the global Meter
// provider under the "chunkr" instrumentation name.
func NewOtelMetrics() *OtelMetrics {
	meter := otel.Meter("chunkr")
	return &OtelMetrics{
		counters: newInstrumentCache(func(name string) (metric.Int64Counter, error) {
			return meter.Int64Counter(name)
		}),
		histograms: newInstrumentCache(func(name string) (metric.Float64Histogram, error) {
			return meter.Float64Histogram(name)
		}),
	}
}

func (o *OtelMetrics) IncCounter(name string, labels map[string]string) {
	if o == nil {
		return
	}
	c, ok := o.counters.get(name)
	if !ok {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(toAttrs(labels)...))
}

func (o *OtelMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	if o == nil {
		return
	}
	h, ok := o.histograms.get(name)
	if !ok {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}

// MockMetrics is an in-memory Metrics sink for tests: it records into
// its Counters/Hists/Labels fields, which a test can read directly
// rather than standing up an OTel reader.
type MockMetrics struct {
	mu       sync.Mutex
	Counters map[string]int
	Hists    map[string][]float64
	Labels   map[string][]map[string]string
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Counters: map[string]int{},
		Hists:    map[string][]float64{},
		Labels:   map[string][]map[string]string{},
	}
}

func (m *MockMetrics) IncCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name]++
	m.Labels[name] = append(m.Labels[name], cloneLabels(labels))
}

func (m *MockMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hists[name] = append(m.Hists[name], value)
	m.Labels[name] = append(m.Labels[name], cloneLabels(labels))
}

func cloneLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
