package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex-search/omnidex/internal/analytics"
	"github.com/omnidex-search/omnidex/internal/cache"
	"github.com/omnidex-search/omnidex/internal/fusion"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/internal/pipeline"
	"github.com/omnidex-search/omnidex/pkg/config"
)

func newTestHandler(t *testing.T, collector *analytics.Collector) (*Handler, *cache.Manager) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Index.Root = t.TempDir()
	cfg.Retrieval.MinBodyLength = 3

	docs := []index.BuildDocument{
		{URL: "https://docs.example.com/goroutines", Title: "Goroutines explained",
			Body:      "A goroutine is a lightweight thread managed by the Go runtime.",
			Timestamp: time.Now().Unix(),
			Signals:   index.BuildSignals{Hostrank: 0.7, QualityScore: 0.9, URLQuality: 0.6}},
		{URL: "https://blog.example.org/channels", Title: "Channel patterns",
			Body:      "Channels connect concurrent goroutines for safe communication.",
			Timestamp: time.Now().Unix(),
			Signals:   index.BuildSignals{Hostrank: 0.5, QualityScore: 0.8, URLQuality: 0.5}},
	}
	b := index.NewBuilder(index.BuilderConfig{Root: cfg.Index.Root, Workers: 2})
	_, err = b.Build(context.Background(), docs)
	require.NoError(t, err)

	mgr, err := index.NewManager(cfg.Index.Root, nil)
	require.NoError(t, err)
	caches, err := cache.NewManager(cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(caches.Close)

	p := pipeline.New(cfg, pipeline.Deps{
		Epochs: mgr,
		Fuser:  fusion.NewFuser(nil),
		Caches: caches,
	})
	return New(p, caches, collector, 4, nil), caches
}

func doSearch(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	return rec
}

func TestSearchHandlerSuccess(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := doSearch(t, h, `{"query":"goroutines"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Success  bool              `json:"success"`
		Results  []pipeline.Result `json:"results"`
		Metadata pipeline.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "docs.example.com", resp.Results[0].Domain)
	assert.Equal(t, uint64(1), resp.Metadata.Epoch)
	assert.NotEmpty(t, resp.Metadata.DetectedLanguage)
}

func TestSearchHandlerEmptyQuery(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := doSearch(t, h, `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "INPUT_INVALID", resp.Error)
}

func TestSearchHandlerMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := doSearch(t, h, `{"query": not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INPUT_INVALID", resp.Error)
}

func TestSearchHandlerShedsLoad(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	// Exhaust the inflight budget so the next request is rejected at the
	// door.
	for i := 0; i < 4; i++ {
		require.True(t, h.inflight.TryAcquire(1))
	}
	defer h.inflight.Release(4)

	rec := doSearch(t, h, `{"query":"goroutines"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SERVER_BUSY", resp.Error)
}

func TestSearchHandlerTracksEvents(t *testing.T) {
	collector := analytics.NewCollector(nil, 1000, time.Hour)
	h, _ := newTestHandler(t, collector)

	doSearch(t, h, `{"query":"goroutines"}`)
	assert.Equal(t, 1, collector.BufferLen())

	doSearch(t, h, `{"query":""}`)
	assert.Equal(t, 1, collector.BufferLen(), "failed requests are not tracked")
}

func TestCacheEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]cache.LayerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "query")
	assert.Contains(t, stats, "feature")
	assert.Contains(t, stats, "embedding")

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalidated")
}

func TestCacheEndpointsDisabled(t *testing.T) {
	h := New(nil, nil, nil, 1, nil)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchHandlerOversizedBody(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	big := bytes.Repeat([]byte("a"), maxRequestBody+1024)
	body := `{"query":"` + string(big) + `"}`
	rec := doSearch(t, h, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
