// Package pipeline orchestrates one search request end to end: analyze,
// cache lookup, candidate retrieval, feature and embedding hydration,
// fusion, and diversification, under per-stage latency budgets. Degraded
// upstreams shrink the response instead of failing it; only the index
// itself is load-bearing.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/omnidex-search/omnidex/internal/analyzer"
	"github.com/omnidex-search/omnidex/internal/cache"
	"github.com/omnidex-search/omnidex/internal/embed"
	"github.com/omnidex-search/omnidex/internal/feature"
	"github.com/omnidex-search/omnidex/internal/fusion"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/internal/retriever"
	"github.com/omnidex-search/omnidex/pkg/config"
	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
	"github.com/omnidex-search/omnidex/pkg/tracing"
)

// Request is one validated-on-entry search request.
type Request struct {
	Query      string
	NumResults int
	Debug      bool
	Language   string // optional caller override for detection
}

// Result is one ranked document in the response.
type Result struct {
	URL        string             `json:"url"`
	Title      string             `json:"title"`
	Domain     string             `json:"domain"`
	Score      float64            `json:"score"`
	Components *fusion.Components `json:"components,omitempty"`
}

// Metadata describes how the response was produced.
type Metadata struct {
	DetectedLanguage string  `json:"detectedLanguage"`
	Script           string  `json:"script"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs float64 `json:"processingTimeMs"`
	CacheHit         bool    `json:"cacheHit"`
	Epoch            uint64  `json:"epoch"`
	Partial          bool    `json:"partial"`
}

// Response is the pipeline output; the server serializes it directly.
type Response struct {
	Results  []Result `json:"results"`
	Metadata Metadata `json:"metadata"`
}

// cachedEntry is what the query cache stores: results with components so a
// later debug request can reuse a non-debug computation, plus the analysis
// metadata that does not change per hit.
type cachedEntry struct {
	Results  []Result `json:"results"`
	Language string   `json:"language"`
	Script   string   `json:"script"`
	Conf     float64  `json:"conf"`
	Epoch    uint64   `json:"epoch"`
	Partial  bool     `json:"partial"`
}

// Pipeline wires the stages together. FeatureStore and Embedder are
// optional; a nil value is a permanently degraded upstream.
type Pipeline struct {
	cfg      *config.Config
	analyzer *analyzer.Analyzer
	epochs   *index.Manager
	retr     *retriever.Retriever
	features *feature.Store
	embedder *embed.Client
	fuser    *fusion.Fuser
	caches   *cache.Manager
	group    singleflight.Group
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Epochs   *index.Manager
	Features *feature.Store
	Embedder *embed.Client
	Fuser    *fusion.Fuser
	Caches   *cache.Manager
	Metrics  *metrics.Metrics
}

func New(cfg *config.Config, d Deps) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		analyzer: analyzer.New(analyzer.Config{}),
		epochs:   d.Epochs,
		retr:     retriever.New(cfg.Retrieval, d.Metrics),
		features: d.Features,
		embedder: d.Embedder,
		fuser:    d.Fuser,
		caches:   d.Caches,
		metrics:  d.Metrics,
		log:      logger.WithComponent("pipeline"),
		now:      time.Now,
	}
}

// Search runs the full pipeline for one request. Identical concurrent
// misses collapse onto one computation via singleflight.
func (p *Pipeline) Search(ctx context.Context, req Request) (*Response, error) {
	start := p.now()
	req, err := p.normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, apperrors.New(apperrors.ErrInputInvalid, "query must not be empty")
	}

	// Analyze.
	stageStart := p.now()
	analysis, err := p.analyzer.Analyze(req.Query)
	if err != nil {
		return nil, err
	}
	grams := p.analyzer.NGrams(req.Query, 3, 5)
	// Punctuation-only input survives the empty-string check but analyzes
	// to nothing; there is no query to run.
	if len(analysis.Tokens) == 0 && len(grams) == 0 {
		return nil, apperrors.New(apperrors.ErrInputInvalid, "query has no searchable content")
	}
	p.observeStage("analyze", stageStart)
	language := analysis.Language
	if req.Language != "" {
		language = req.Language
	}

	// Pin the epoch for the whole query.
	handle, err := p.epochs.Acquire()
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	// Query cache.
	stageStart = p.now()
	key := cache.QueryKey(analysis.Normalized, language, req.NumResults, p.fuser.Weights().Version(), handle.Epoch())
	if payload, ok := p.caches.GetQuery(key); ok {
		if resp, err := p.responseFromCache(payload, req, start); err == nil {
			p.observeStage("cache", stageStart)
			p.observeQuery("ok", "hit", start)
			return resp, nil
		}
		// A corrupt cache entry falls through to recomputation.
	}
	p.observeStage("cache", stageStart)

	v, err, _ := p.group.Do(strconv.FormatUint(key, 16), func() (interface{}, error) {
		return p.compute(ctx, req, analysis, grams, language, handle.Reader(), key)
	})
	if err != nil {
		p.observeQuery("error", "miss", start)
		return nil, err
	}
	entry := v.(*cachedEntry)
	resp := p.responseFromEntry(entry, req, start)
	resp.Metadata.CacheHit = false
	p.observeQuery(entryOutcome(entry), "miss", start)
	return resp, nil
}

// compute is the cache-miss path: retrieval, hydration, fusion, MMR.
func (p *Pipeline) compute(ctx context.Context, req Request, analysis analyzer.Result, grams []string, language string, reader *index.Reader, key uint64) (*cachedEntry, error) {
	ctx, span := tracing.StartChildSpan(ctx, "pipeline.compute")
	defer span.End()
	partial := false

	terms := make([]string, 0, len(analysis.Tokens))
	for _, t := range analysis.Tokens {
		terms = append(terms, t.Term)
	}

	// Retrieval and the query embedding run concurrently; the embedding is
	// advisory and its failure only degrades.
	var cands []retriever.Candidate
	var queryVec []float32
	stageStart := p.now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rctx, cancel := context.WithTimeout(gctx, p.cfg.Pipeline.RetrievalBudget)
		defer cancel()
		var err error
		cands, err = p.retr.Retrieve(rctx, reader, terms, grams)
		return err
	})
	g.Go(func() error {
		queryVec = p.queryEmbedding(gctx, analysis.Normalized, language)
		if queryVec == nil {
			partial = true
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.New(apperrors.ErrDeadline, "query cancelled during retrieval")
		}
		return nil, err
	}
	p.observeStage("retrieval", stageStart)

	// Feature hydration.
	stageStart = p.now()
	feats, degraded := p.hydrateFeatures(ctx, cands, reader.Epoch)
	partial = partial || degraded
	p.observeStage("features", stageStart)

	// Fusion and diversification.
	stageStart = p.now()
	scored := p.fuser.Fuse(cands, feats, fusion.Query{
		TermCount: len(terms),
		Vector:    queryVec,
		Intent:    analyzer.DetectIntent(analysis.Tokens),
		ISBN:      analyzer.ExtractISBN(analysis.Normalized),
		Now:       p.now(),
	})
	top := fusion.Diversify(scored, p.cfg.Retrieval.MMRLambda, p.cfg.Retrieval.FinalDomainCap, req.NumResults)
	p.observeStage("fusion", stageStart)

	entry := &cachedEntry{
		Results:  make([]Result, 0, len(top)),
		Language: analysis.Language,
		Script:   analysis.Script,
		Conf:     analysis.Confidence,
		Epoch:    reader.Epoch,
		Partial:  partial,
	}
	for _, s := range top {
		comp := s.Components
		entry.Results = append(entry.Results, Result{
			URL:        s.Candidate.Doc.URL,
			Title:      s.Candidate.Doc.Title,
			Domain:     s.Candidate.Doc.Domain,
			Score:      s.Final,
			Components: &comp,
		})
	}

	// Partial responses are never cached: a recovered upstream should be
	// able to improve the next identical query immediately.
	if !partial {
		if payload, err := json.Marshal(entry); err == nil {
			p.caches.SetQuery(key, payload)
		}
	} else if p.metrics != nil {
		p.metrics.PartialResponses.Inc()
	}
	return entry, nil
}

// queryEmbedding consults the embedding cache, then the service. Any
// failure returns nil, which fusion treats as "no semantic signal".
func (p *Pipeline) queryEmbedding(ctx context.Context, normalized, language string) []float32 {
	if p.embedder == nil {
		return nil
	}
	key := cache.EmbeddingKey(normalized, language)
	if vec, ok := p.caches.GetEmbedding(key); ok {
		return vec
	}
	vec, err := p.embedder.Embed(ctx, normalized, language)
	if err != nil {
		p.log.Debug("embedding degraded", "error", err)
		return nil
	}
	p.caches.SetEmbedding(key, vec)
	return vec
}

// hydrateFeatures returns features aligned with cands. Cache hits are
// reused; misses are fetched in one batch. A store failure degrades every
// uncached document to zero features.
func (p *Pipeline) hydrateFeatures(ctx context.Context, cands []retriever.Candidate, epoch uint64) ([]feature.Features, bool) {
	feats := make([]feature.Features, len(cands))
	if len(cands) == 0 {
		return feats, false
	}
	var missIdx []int
	var missIDs []index.DocID
	for i, c := range cands {
		if f, ok := p.caches.GetFeatures(c.Doc.ID, epoch); ok {
			feats[i] = f
			continue
		}
		missIdx = append(missIdx, i)
		missIDs = append(missIDs, c.Doc.ID)
	}
	if len(missIDs) == 0 {
		return feats, false
	}
	if p.features == nil {
		return feats, true
	}

	fctx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.FeatureBudget)
	defer cancel()
	fetched, err := p.features.Fetch(fctx, missIDs)
	if err != nil {
		p.log.Warn("feature store degraded", "error", err, "docs", len(missIDs))
		return feats, true
	}
	degraded := false
	for j, i := range missIdx {
		feats[i] = fetched[j]
		if fetched[j].Found {
			p.caches.SetFeatures(missIDs[j], epoch, fetched[j])
		} else {
			degraded = true
		}
	}
	return feats, degraded
}

// normalizeRequest fills the result-count default for the absent/zero case
// and rejects explicit out-of-range values.
func (p *Pipeline) normalizeRequest(req Request) (Request, error) {
	if req.NumResults == 0 {
		req.NumResults = p.cfg.Retrieval.DefaultNumResults
		return req, nil
	}
	if req.NumResults < 1 || req.NumResults > p.cfg.Retrieval.MaxNumResults {
		return req, apperrors.Newf(apperrors.ErrInputInvalid,
			"numResults must be between 1 and %d", p.cfg.Retrieval.MaxNumResults)
	}
	return req, nil
}

func (p *Pipeline) responseFromCache(payload []byte, req Request, start time.Time) (*Response, error) {
	var entry cachedEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, err
	}
	resp := p.responseFromEntry(&entry, req, start)
	resp.Metadata.CacheHit = true
	return resp, nil
}

func (p *Pipeline) responseFromEntry(entry *cachedEntry, req Request, start time.Time) *Response {
	results := make([]Result, len(entry.Results))
	copy(results, entry.Results)
	if !req.Debug {
		for i := range results {
			results[i].Components = nil
		}
	}
	return &Response{
		Results: results,
		Metadata: Metadata{
			DetectedLanguage: entry.Language,
			Script:           entry.Script,
			Confidence:       entry.Conf,
			ProcessingTimeMs: float64(p.now().Sub(start).Microseconds()) / 1000,
			Epoch:            entry.Epoch,
			Partial:          entry.Partial,
		},
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.StageLatency.WithLabelValues(stage).Observe(p.now().Sub(start).Seconds())
	}
}

func (p *Pipeline) observeQuery(outcome, cacheStatus string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	p.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(p.now().Sub(start).Seconds())
}

func entryOutcome(e *cachedEntry) string {
	switch {
	case e.Partial:
		return "degraded"
	case len(e.Results) == 0:
		return "zero_result"
	default:
		return "ok"
	}
}
