package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex-search/omnidex/internal/feature"
	"github.com/omnidex-search/omnidex/pkg/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.CacheConfig{
		QueryTTL:        5 * time.Minute,
		FeatureTTL:      10 * time.Minute,
		EmbeddingTTL:    10 * time.Minute,
		QueryMaxBytes:   1 << 20,
		FeatureMaxBytes: 1 << 20,
		EmbedMaxBytes:   1 << 20,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestQueryKeyScoping(t *testing.T) {
	base := QueryKey("golang tutorial", "en", 10, "v1", 42)
	assert.Equal(t, base, QueryKey("golang tutorial", "en", 10, "v1", 42))

	// Any ranking-relevant input change must change the key.
	assert.NotEqual(t, base, QueryKey("golang tutorials", "en", 10, "v1", 42))
	assert.NotEqual(t, base, QueryKey("golang tutorial", "de", 10, "v1", 42))
	assert.NotEqual(t, base, QueryKey("golang tutorial", "en", 20, "v1", 42))
	assert.NotEqual(t, base, QueryKey("golang tutorial", "en", 10, "v2", 42))
	assert.NotEqual(t, base, QueryKey("golang tutorial", "en", 10, "v1", 43))
}

func TestEmbeddingKeyIgnoresEpoch(t *testing.T) {
	assert.Equal(t, EmbeddingKey("q", "en"), EmbeddingKey("q", "en"))
	assert.NotEqual(t, EmbeddingKey("q", "en"), EmbeddingKey("q", "ja"))
}

func TestQueryLayerRoundtrip(t *testing.T) {
	m := testManager(t)
	key := QueryKey("q", "en", 10, "v1", 1)

	_, ok := m.GetQuery(key)
	assert.False(t, ok)

	m.SetQuery(key, []byte(`{"results":[]}`))
	m.Wait()
	got, ok := m.GetQuery(key)
	require.True(t, ok)
	assert.JSONEq(t, `{"results":[]}`, string(got))
}

func TestFeatureLayerEpochScoped(t *testing.T) {
	m := testManager(t)
	f := feature.Features{Hostrank: 0.9, Found: true, Embedding: []float32{1, 2}}
	m.SetFeatures(7, 1, f)
	m.Wait()

	got, ok := m.GetFeatures(7, 1)
	require.True(t, ok)
	assert.Equal(t, 0.9, got.Hostrank)

	// Same docId under a different epoch is a different document.
	_, ok = m.GetFeatures(7, 2)
	assert.False(t, ok)
}

func TestEmbeddingLayerRoundtrip(t *testing.T) {
	m := testManager(t)
	key := EmbeddingKey("golang", "en")
	m.SetEmbedding(key, []float32{0.1, 0.2})
	m.Wait()
	vec, ok := m.GetEmbedding(key)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestInvalidateAll(t *testing.T) {
	m := testManager(t)
	key := QueryKey("q", "en", 10, "v1", 1)
	m.SetQuery(key, []byte("x"))
	m.SetEmbedding(EmbeddingKey("q", "en"), []float32{1})
	m.Wait()

	m.InvalidateAll()
	m.Wait()
	_, ok := m.GetQuery(key)
	assert.False(t, ok)
	_, ok = m.GetEmbedding(EmbeddingKey("q", "en"))
	assert.False(t, ok)
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	m := testManager(t)
	key := QueryKey("q", "en", 10, "v1", 1)
	m.GetQuery(key) // miss
	m.SetQuery(key, []byte("x"))
	m.Wait()
	m.GetQuery(key) // hit

	stats := m.Stats()
	q := stats["query"]
	assert.GreaterOrEqual(t, q.Hits, uint64(1))
	assert.GreaterOrEqual(t, q.Misses, uint64(1))
	assert.Greater(t, q.Ratio, 0.0)
}
