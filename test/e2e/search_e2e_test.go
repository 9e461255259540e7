// Package e2e exercises a fully wired search node over HTTP: epoch build,
// middleware chain, search endpoint, cache endpoints, and health probes.
// Everything runs in-process; no external services are required.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex-search/omnidex/internal/cache"
	"github.com/omnidex-search/omnidex/internal/fusion"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/internal/pipeline"
	"github.com/omnidex-search/omnidex/internal/server"
	"github.com/omnidex-search/omnidex/pkg/config"
	"github.com/omnidex-search/omnidex/pkg/health"
	"github.com/omnidex-search/omnidex/pkg/middleware"
)

func newSearchNode(t *testing.T) (*httptest.Server, *index.Manager) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Index.Root = t.TempDir()
	cfg.Retrieval.MinBodyLength = 3

	docs := []index.BuildDocument{
		{URL: "https://kitchen.example.com/sourdough", Title: "Sourdough starter guide",
			Body:      "Feeding schedules and hydration ratios for a reliable sourdough starter.",
			Vertical:  "Article", Timestamp: time.Now().AddDate(0, -1, 0).Unix(),
			Signals:   index.BuildSignals{Hostrank: 0.6, QualityScore: 0.9, URLQuality: 0.6}},
		{URL: "https://trains.example.org/japan-rail", Title: "Japan rail passes compared",
			Body:      "Regional and national rail passes for travel across Japan.",
			Vertical:  "Article", Timestamp: time.Now().AddDate(0, -2, 0).Unix(),
			Signals:   index.BuildSignals{Hostrank: 0.5, QualityScore: 0.8, URLQuality: 0.5}},
		{URL: "https://books.example.net/go-programming", Title: "The Go Programming Language",
			Body:      "The definitive reference covering the language, its tooling, and idioms.",
			Vertical:  "Book", Structured: map[string]string{"isbn": "9780134190440"},
			Timestamp: time.Now().AddDate(-1, 0, 0).Unix(),
			Signals:   index.BuildSignals{Hostrank: 0.8, QualityScore: 0.95, URLQuality: 0.7}},
	}
	b := index.NewBuilder(index.BuilderConfig{Root: cfg.Index.Root, Workers: 2})
	_, err = b.Build(context.Background(), docs)
	require.NoError(t, err)

	mgr, err := index.NewManager(cfg.Index.Root, nil)
	require.NoError(t, err)
	caches, err := cache.NewManager(cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(caches.Close)

	pipe := pipeline.New(cfg, pipeline.Deps{
		Epochs: mgr,
		Fuser:  fusion.NewFuser(nil),
		Caches: caches,
	})
	h := server.New(pipe, caches, nil, cfg.Server.MaxInflight, nil)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if epoch := mgr.CurrentEpoch(); epoch > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("epoch %d", epoch)}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no published epoch"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Pipeline.TailBudget)(chain)
	chain = middleware.RequestID(chain)

	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func postSearch(t *testing.T, baseURL, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(baseURL+"/api/v1/search", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var envelope map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func TestSearchOverHTTP(t *testing.T) {
	srv, _ := newSearchNode(t)

	resp, envelope := postSearch(t, srv.URL, `{"query":"sourdough starter"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var success bool
	require.NoError(t, json.Unmarshal(envelope["success"], &success))
	assert.True(t, success)

	var results []pipeline.Result
	require.NoError(t, json.Unmarshal(envelope["results"], &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "kitchen.example.com", results[0].Domain)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestISBNQueryOverHTTP(t *testing.T) {
	srv, _ := newSearchNode(t)

	_, envelope := postSearch(t, srv.URL, `{"query":"isbn 9780134190440 go programming"}`)
	var results []pipeline.Result
	require.NoError(t, json.Unmarshal(envelope["results"], &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "books.example.net", results[0].Domain)
}

func TestErrorEnvelopeOverHTTP(t *testing.T) {
	srv, _ := newSearchNode(t)

	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", bytes.NewReader([]byte(`{"query":""}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, "INPUT_INVALID", envelope.Error)
	assert.NotEmpty(t, envelope.Message)
}

func TestHealthAndCacheEndpoints(t *testing.T) {
	srv, _ := newSearchNode(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]cache.LayerStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Len(t, stats, 3)

	inv, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "application/json", nil)
	require.NoError(t, err)
	inv.Body.Close()
	assert.Equal(t, http.StatusOK, inv.StatusCode)
}

func TestEpochReloadVisibleOverHTTP(t *testing.T) {
	srv, mgr := newSearchNode(t)

	// A second epoch published behind the node's back becomes visible after
	// Reload, and responses carry the new epoch.
	root := mgr.Root()
	b := index.NewBuilder(index.BuilderConfig{Root: root, Workers: 2})
	_, err := b.Build(context.Background(), []index.BuildDocument{
		{URL: "https://fresh.example.com/new-page", Title: "Fresh content",
			Body:    "Newly published content only present in the second epoch.",
			Signals: index.BuildSignals{Hostrank: 0.5, QualityScore: 0.9, URLQuality: 0.5}},
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Reload())

	_, envelope := postSearch(t, srv.URL, `{"query":"fresh content"}`)
	var meta pipeline.Metadata
	require.NoError(t, json.Unmarshal(envelope["metadata"], &meta))
	assert.Equal(t, uint64(2), meta.Epoch)
}
