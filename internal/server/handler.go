// Package server exposes the search pipeline over HTTP. It owns request
// decoding, the ingress concurrency ceiling, the error envelope, and
// analytics event emission.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/omnidex-search/omnidex/internal/analytics"
	"github.com/omnidex-search/omnidex/internal/cache"
	"github.com/omnidex-search/omnidex/internal/pipeline"
	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
)

const maxRequestBody = 1 << 20

type searchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Debug      bool   `json:"debug"`
	Language   string `json:"language"`
}

type searchResponse struct {
	Success  bool              `json:"success"`
	Results  []pipeline.Result `json:"results"`
	Metadata pipeline.Metadata `json:"metadata"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler serves the search API. Collector and caches may be nil.
type Handler struct {
	pipeline  *pipeline.Pipeline
	caches    *cache.Manager
	collector *analytics.Collector
	inflight  *semaphore.Weighted
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(p *pipeline.Pipeline, caches *cache.Manager, collector *analytics.Collector, maxInflight int64, m *metrics.Metrics) *Handler {
	if maxInflight <= 0 {
		maxInflight = 64
	}
	return &Handler{
		pipeline:  p,
		caches:    caches,
		collector: collector,
		inflight:  semaphore.NewWeighted(maxInflight),
		metrics:   m,
		logger:    logger.WithComponent("search-handler"),
	}
}

// Search handles POST /api/v1/search. Load shedding happens before any
// decoding so a saturated node stays cheap to reject from.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if !h.inflight.TryAcquire(1) {
		if h.metrics != nil {
			h.metrics.RejectedQueries.Inc()
			h.metrics.SearchQueriesTotal.WithLabelValues("rejected").Inc()
		}
		h.writeError(w, apperrors.New(apperrors.ErrServerBusy, "too many concurrent queries"))
		return
	}
	defer h.inflight.Release(1)

	var req searchRequest
	body := io.LimitReader(r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInputInvalid, "request body must be valid JSON"))
		return
	}

	resp, err := h.pipeline.Search(ctx, pipeline.Request{
		Query:      req.Query,
		NumResults: req.NumResults,
		Debug:      req.Debug,
		Language:   req.Language,
	})
	if err != nil {
		log.Warn("search failed",
			"query", req.Query,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		h.writeError(w, err)
		return
	}

	log.Info("search completed",
		"query", req.Query,
		"returned", len(resp.Results),
		"cache_hit", resp.Metadata.CacheHit,
		"partial", resp.Metadata.Partial,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.track(ctx, req.Query, resp, start)
	h.writeJSON(w, http.StatusOK, searchResponse{
		Success:  true,
		Results:  resp.Results,
		Metadata: resp.Metadata,
	})
}

func (h *Handler) track(ctx context.Context, query string, resp *pipeline.Response, start time.Time) {
	if h.collector == nil {
		return
	}
	h.collector.Track(analytics.SearchEvent{
		Type:      analytics.Classify(len(resp.Results), resp.Metadata.Partial),
		Query:     query,
		Language:  resp.Metadata.DetectedLanguage,
		Script:    resp.Metadata.Script,
		Returned:  len(resp.Results),
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  resp.Metadata.CacheHit,
		Partial:   resp.Metadata.Partial,
		Epoch:     resp.Metadata.Epoch,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.caches == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.caches.Stats())
}

// CacheInvalidate handles POST /api/v1/cache/invalidate. It clears all
// three layers; the next queries repopulate them.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.caches == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUpstreamUnavailable, "caching is disabled"))
		return
	}
	h.caches.InvalidateAll()
	h.logger.Info("caches invalidated")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	msg := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), errorResponse{
		Success: false,
		Error:   apperrors.Code(err),
		Message: msg,
	})
}
