package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omnidex-search/omnidex/pkg/kafka"
	"github.com/omnidex-search/omnidex/pkg/logger"
)

// AggregatedStats is the live rollup served on the analytics endpoint and
// snapshotted to Postgres.
type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	PartialCount      int64            `json:"partial_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	Languages         map[string]int64 `json:"languages"`
	LatestEpoch       uint64           `json:"latest_epoch"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator consumes search events from Kafka and keeps an in-memory
// rollup. Latencies are capped at a window so percentile cost stays flat.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	partials          atomic.Int64
	latestEpoch       atomic.Uint64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	languages         map[string]int64
	startTime         time.Time

	log *slog.Logger
}

const latencyWindow = 10000

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, latencyWindow),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		languages:         make(map[string]int64),
		startTime:         time.Now(),
		log:               logger.WithComponent("analytics-aggregator"),
	}
}

// HandleEvent returns the Kafka message handler feeding agg. Undecodable
// events are logged and skipped, never retried.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.log.Error("failed to decode search event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds one event into the rollup.
func (a *Aggregator) Record(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Returned == 0 {
		a.zeroResults.Add(1)
	}
	if event.Partial {
		a.partials.Add(1)
	}
	// Monotonic max under concurrent Record calls.
	for {
		cur := a.latestEpoch.Load()
		if event.Epoch <= cur || a.latestEpoch.CompareAndSwap(cur, event.Epoch) {
			break
		}
	}

	a.mu.Lock()
	if len(a.latencies) >= latencyWindow {
		a.latencies = a.latencies[len(a.latencies)/2:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.Returned == 0 {
		a.zeroResultQueries[event.Query]++
	}
	if event.Language != "" {
		a.languages[event.Language]++
	}
	a.mu.Unlock()
}

// Stats returns a snapshot of the rollup.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		PartialCount:    a.partials.Load(),
		LatestEpoch:     a.latestEpoch.Load(),
		Languages:       make(map[string]int64, len(a.languages)),
	}
	for lang, n := range a.languages {
		stats.Languages[lang] = n
	}

	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
