// Package cache holds the three in-process cache layers of the query path:
// full query results, per-document features, and query embeddings. All
// three sit on ristretto with TTL expiry; query keys embed the epoch and
// weights version so a new index or weight bundle can never serve a stale
// ranking.
package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/omnidex-search/omnidex/internal/feature"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/pkg/config"
	"github.com/omnidex-search/omnidex/pkg/metrics"
)

const (
	layerQuery     = "query"
	layerFeature   = "feature"
	layerEmbedding = "embedding"
)

// Manager owns the cache layers and their TTL policy.
type Manager struct {
	cfg        config.CacheConfig
	queries    *ristretto.Cache[uint64, []byte]
	features   *ristretto.Cache[uint64, feature.Features]
	embeddings *ristretto.Cache[uint64, []float32]
	metrics    *metrics.Metrics
}

func NewManager(cfg config.CacheConfig, m *metrics.Metrics) (*Manager, error) {
	queries, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 1e6,
		MaxCost:     cfg.QueryMaxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	features, err := ristretto.NewCache(&ristretto.Config[uint64, feature.Features]{
		NumCounters: 1e7,
		MaxCost:     cfg.FeatureMaxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	embeddings, err := ristretto.NewCache(&ristretto.Config[uint64, []float32]{
		NumCounters: 1e6,
		MaxCost:     cfg.EmbedMaxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:        cfg,
		queries:    queries,
		features:   features,
		embeddings: embeddings,
		metrics:    m,
	}, nil
}

// QueryKey derives the result-cache key. Everything that can change the
// ranking participates: the normalized query, language, result count, the
// weight bundle version, and the epoch the result was computed against.
func QueryKey(normalizedQuery, language string, topK int, weightsVersion string, epoch uint64) uint64 {
	h := xxhash.New()
	h.WriteString(normalizedQuery)
	h.WriteString("|")
	h.WriteString(language)
	h.WriteString("|")
	h.WriteString(strconv.Itoa(topK))
	h.WriteString("|")
	h.WriteString(weightsVersion)
	h.WriteString("|")
	h.WriteString(strconv.FormatUint(epoch, 10))
	return h.Sum64()
}

// EmbeddingKey is epoch-independent: the same query text embeds the same
// regardless of which index serves it.
func EmbeddingKey(normalizedQuery, language string) uint64 {
	h := xxhash.New()
	h.WriteString(normalizedQuery)
	h.WriteString("|")
	h.WriteString(language)
	return h.Sum64()
}

// featureKey scopes a docId to its epoch; docIds are only meaningful within
// one epoch.
func featureKey(id index.DocID, epoch uint64) uint64 {
	return epoch<<32 | uint64(id)
}

func (m *Manager) GetQuery(key uint64) ([]byte, bool) {
	v, ok := m.queries.Get(key)
	m.count(layerQuery, ok)
	return v, ok
}

func (m *Manager) SetQuery(key uint64, payload []byte) {
	m.queries.SetWithTTL(key, payload, int64(len(payload)), m.cfg.QueryTTL)
}

func (m *Manager) GetFeatures(id index.DocID, epoch uint64) (feature.Features, bool) {
	v, ok := m.features.Get(featureKey(id, epoch))
	m.count(layerFeature, ok)
	return v, ok
}

func (m *Manager) SetFeatures(id index.DocID, epoch uint64, f feature.Features) {
	cost := int64(64 + 4*len(f.Embedding))
	m.features.SetWithTTL(featureKey(id, epoch), f, cost, m.cfg.FeatureTTL)
}

func (m *Manager) GetEmbedding(key uint64) ([]float32, bool) {
	v, ok := m.embeddings.Get(key)
	m.count(layerEmbedding, ok)
	return v, ok
}

func (m *Manager) SetEmbedding(key uint64, vec []float32) {
	m.embeddings.SetWithTTL(key, vec, int64(4*len(vec)), m.cfg.EmbeddingTTL)
}

func (m *Manager) count(layer string, hit bool) {
	if m.metrics == nil {
		return
	}
	if hit {
		m.metrics.CacheHitsTotal.WithLabelValues(layer).Inc()
	} else {
		m.metrics.CacheMissesTotal.WithLabelValues(layer).Inc()
	}
}

// Wait flushes pending writes; tests and shutdown paths call it so reads
// observe prior sets.
func (m *Manager) Wait() {
	m.queries.Wait()
	m.features.Wait()
	m.embeddings.Wait()
}

// LayerStats is one layer's hit/miss counters for the stats endpoint.
type LayerStats struct {
	Hits   uint64  `json:"hits"`
	Misses uint64  `json:"misses"`
	Ratio  float64 `json:"ratio"`
}

// Stats reports per-layer effectiveness.
func (m *Manager) Stats() map[string]LayerStats {
	out := make(map[string]LayerStats, 3)
	collect := func(name string, mtr *ristretto.Metrics) {
		s := LayerStats{Hits: mtr.Hits(), Misses: mtr.Misses()}
		if total := s.Hits + s.Misses; total > 0 {
			s.Ratio = float64(s.Hits) / float64(total)
		}
		out[name] = s
	}
	collect(layerQuery, m.queries.Metrics)
	collect(layerFeature, m.features.Metrics)
	collect(layerEmbedding, m.embeddings.Metrics)
	return out
}

// InvalidateAll clears every layer. The admin endpoint uses it after
// out-of-band feature rewrites.
func (m *Manager) InvalidateAll() {
	m.queries.Clear()
	m.features.Clear()
	m.embeddings.Clear()
}

// Close releases ristretto's internal goroutines.
func (m *Manager) Close() {
	m.queries.Close()
	m.features.Close()
	m.embeddings.Close()
}
