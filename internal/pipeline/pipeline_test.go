package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex-search/omnidex/internal/cache"
	"github.com/omnidex-search/omnidex/internal/embed"
	"github.com/omnidex-search/omnidex/internal/fusion"
	"github.com/omnidex-search/omnidex/internal/index"
	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/config"
)

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Index.Root = root
	cfg.Retrieval.MinBodyLength = 3
	return cfg
}

func testDocs() []index.BuildDocument {
	sig := index.BuildSignals{Hostrank: 0.6, QualityScore: 0.8, URLQuality: 0.6}
	return []index.BuildDocument{
		{URL: "https://gobooks.example.com/concurrency", Title: "Concurrency in Go",
			Body:      "Goroutines channels and the select statement explained with worked examples.",
			Vertical:  "Book", Structured: map[string]string{"isbn": "9781491941195"},
			Timestamp: time.Now().AddDate(0, -2, 0).Unix(), Signals: sig},
		{URL: "https://webdev.example.org/css-grid", Title: "CSS grid layout guide",
			Body:      "Grid template areas and responsive layouts for modern browsers.",
			Vertical:  "Article", Timestamp: time.Now().AddDate(0, -1, 0).Unix(), Signals: sig},
		{URL: "https://systems.example.net/go-services", Title: "Building Go network services",
			Body:      "Production patterns for building concurrent network services in Go.",
			Vertical:  "Article", Timestamp: time.Now().AddDate(0, -3, 0).Unix(), Signals: sig},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, embedder *embed.Client) *Pipeline {
	t.Helper()
	b := index.NewBuilder(index.BuilderConfig{Root: cfg.Index.Root, Workers: 2})
	_, err := b.Build(context.Background(), testDocs())
	require.NoError(t, err)

	mgr, err := index.NewManager(cfg.Index.Root, nil)
	require.NoError(t, err)
	caches, err := cache.NewManager(cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(caches.Close)

	return New(cfg, Deps{
		Epochs:   mgr,
		Embedder: embedder,
		Fuser:    fusion.NewFuser(nil),
		Caches:   caches,
	})
}

func TestSearchEndToEnd(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)

	resp, err := p.Search(context.Background(), Request{Query: "go concurrency"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "gobooks.example.com", resp.Results[0].Domain)
	assert.Equal(t, "Concurrency in Go", resp.Results[0].Title)
	assert.Nil(t, resp.Results[0].Components, "components only appear on debug requests")
	assert.Equal(t, uint64(1), resp.Metadata.Epoch)
	assert.False(t, resp.Metadata.CacheHit)
	assert.True(t, resp.Metadata.Partial, "no feature store and no embedder means degraded")
	assert.Greater(t, resp.Metadata.ProcessingTimeMs, 0.0)
}

func TestSearchDebugComponents(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)

	resp, err := p.Search(context.Background(), Request{Query: "go concurrency", Debug: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.NotNil(t, resp.Results[0].Components)
	assert.Greater(t, resp.Results[0].Components.BM25, 0.0)
}

func TestSearchEmptyQuery(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)
	_, err := p.Search(context.Background(), Request{Query: ""})
	assert.ErrorIs(t, err, apperrors.ErrInputInvalid)
}

func TestSearchInvalidUTF8(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)
	_, err := p.Search(context.Background(), Request{Query: string([]byte{0xff, 0xfe})})
	assert.ErrorIs(t, err, apperrors.ErrInputInvalid)
}

func TestSearchZeroResults(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)
	resp, err := p.Search(context.Background(), Request{Query: "xylophone quantum archaeology"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchPunctuationOnlyQuery(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)
	// Non-empty input that analyzes to no tokens and no grams.
	_, err := p.Search(context.Background(), Request{Query: "!!! ... ??"})
	assert.ErrorIs(t, err, apperrors.ErrInputInvalid)
}

func TestSearchResultCountBounds(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)

	resp, err := p.Search(context.Background(), Request{Query: "go", NumResults: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 1)

	// Zero means unset and takes the default.
	_, err = p.Search(context.Background(), Request{Query: "go"})
	require.NoError(t, err)

	// Explicit out-of-range values are rejected, not clamped.
	_, err = p.Search(context.Background(), Request{Query: "go", NumResults: 5000})
	assert.ErrorIs(t, err, apperrors.ErrInputInvalid)
	_, err = p.Search(context.Background(), Request{Query: "go", NumResults: -3})
	assert.ErrorIs(t, err, apperrors.ErrInputInvalid)
}

func TestSearchEmbeddingCacheReuse(t *testing.T) {
	var embedCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		embedCalls++
		json.NewEncoder(w).Encode(map[string][]float32{"vector": {0.5, 0.5}})
	}))
	defer srv.Close()

	cfg := testConfig(t, t.TempDir())
	cfg.Embedding.URL = srv.URL
	embedder := embed.NewClient(cfg.Embedding, nil)
	p := newTestPipeline(t, cfg, embedder)

	first, err := p.Search(context.Background(), Request{Query: "go concurrency"})
	require.NoError(t, err)
	assert.True(t, first.Metadata.Partial, "no feature store means degraded")
	assert.Equal(t, 1, embedCalls)

	// Partial responses never enter the query cache, but the embedding
	// cache still spares the second identical query a service call.
	p.caches.Wait()
	second, err := p.Search(context.Background(), Request{Query: "go concurrency"})
	require.NoError(t, err)
	assert.False(t, second.Metadata.CacheHit)
	assert.Equal(t, 1, embedCalls, "embedding cache must absorb the repeat")
	assert.Equal(t, len(first.Results), len(second.Results))
}

func TestSearchQueryCacheHit(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)

	// Complete responses are cached; seed one under the key Search will
	// compute for the clamped request.
	analysis, err := p.analyzer.Analyze("go concurrency")
	require.NoError(t, err)
	epoch := p.epochs.CurrentEpoch()
	key := cache.QueryKey(analysis.Normalized, analysis.Language,
		cfg.Retrieval.DefaultNumResults, p.fuser.Weights().Version(), epoch)
	entry := cachedEntry{
		Results: []Result{{URL: "https://seeded.example.com/a", Title: "Seeded",
			Domain: "seeded.example.com", Score: 0.9,
			Components: &fusion.Components{BM25: 1}}},
		Language: analysis.Language, Script: analysis.Script,
		Conf: analysis.Confidence, Epoch: epoch,
	}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)
	p.caches.SetQuery(key, payload)
	p.caches.Wait()

	resp, err := p.Search(context.Background(), Request{Query: "go concurrency"})
	require.NoError(t, err)
	assert.True(t, resp.Metadata.CacheHit)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Seeded", resp.Results[0].Title)
	assert.Nil(t, resp.Results[0].Components, "cached components stay hidden without debug")

	dbg, err := p.Search(context.Background(), Request{Query: "go concurrency", Debug: true})
	require.NoError(t, err)
	assert.True(t, dbg.Metadata.CacheHit)
	require.NotNil(t, dbg.Results[0].Components, "debug reuses the cached computation")
}

func TestSearchCJKQueryUsesNGramIndex(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	docs := append(testDocs(), index.BuildDocument{
		URL: "https://jp.example.com/tokyo-guide", Title: "東京観光ガイド",
		Body:    "東京の観光名所と交通機関を詳しく紹介します",
		Signals: index.BuildSignals{Hostrank: 0.5, QualityScore: 0.8, URLQuality: 0.5},
	})
	b := index.NewBuilder(index.BuilderConfig{Root: cfg.Index.Root, Workers: 2})
	_, err := b.Build(context.Background(), docs)
	require.NoError(t, err)

	mgr, err := index.NewManager(cfg.Index.Root, nil)
	require.NoError(t, err)
	caches, err := cache.NewManager(cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(caches.Close)
	p := New(cfg, Deps{Epochs: mgr, Fuser: fusion.NewFuser(nil), Caches: caches})

	resp, err := p.Search(context.Background(), Request{Query: "東京の観光"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "jp.example.com", resp.Results[0].Domain)
	assert.Equal(t, "ja", resp.Metadata.DetectedLanguage, "kana presence marks Japanese")
}

func TestSearchNoEpochUnavailable(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	mgr, err := index.NewManager(cfg.Index.Root, nil)
	require.NoError(t, err)
	caches, err := cache.NewManager(cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(caches.Close)
	p := New(cfg, Deps{Epochs: mgr, Fuser: fusion.NewFuser(nil), Caches: caches})

	_, err = p.Search(context.Background(), Request{Query: "anything"})
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestSearchConcurrentIdenticalQueries(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	p := newTestPipeline(t, cfg, nil)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := p.Search(context.Background(), Request{Query: "go concurrency"})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}

func TestCachedEntryRoundtrip(t *testing.T) {
	entry := cachedEntry{
		Results: []Result{{URL: "https://x.com/a", Title: "A", Domain: "x.com", Score: 0.5,
			Components: &fusion.Components{BM25: 1}}},
		Language: "en", Script: "Latn", Conf: 0.9, Epoch: 3,
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	var back cachedEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, entry.Results[0].URL, back.Results[0].URL)
	require.NotNil(t, back.Results[0].Components)
	assert.Equal(t, 1.0, back.Results[0].Components.BM25)
}

func BenchmarkSearch(b *testing.B) {
	cfg, err := config.Load("")
	if err != nil {
		b.Fatal(err)
	}
	root := b.TempDir()
	cfg.Index.Root = root
	cfg.Retrieval.MinBodyLength = 3

	builder := index.NewBuilder(index.BuilderConfig{Root: root, Workers: 2})
	if _, err := builder.Build(context.Background(), testDocs()); err != nil {
		b.Fatal(err)
	}
	mgr, err := index.NewManager(root, nil)
	if err != nil {
		b.Fatal(err)
	}
	caches, err := cache.NewManager(cfg.Cache, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer caches.Close()
	p := New(cfg, Deps{Epochs: mgr, Fuser: fusion.NewFuser(nil), Caches: caches})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Search(context.Background(), Request{Query: "go concurrency"}); err != nil {
			b.Fatal(err)
		}
	}
}
