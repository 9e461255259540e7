package analytics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregatorRecordAndStats(t *testing.T) {
	agg := NewAggregator()

	agg.Record(SearchEvent{Type: EventSearch, Query: "go channels", Language: "en",
		Returned: 5, LatencyMs: 20, Epoch: 3, Timestamp: time.Now()})
	agg.Record(SearchEvent{Type: EventSearch, Query: "go channels", Language: "en",
		Returned: 5, LatencyMs: 10, CacheHit: true, Epoch: 3})
	agg.Record(SearchEvent{Type: EventZeroResult, Query: "qqqq", Language: "de",
		Returned: 0, LatencyMs: 40, Epoch: 4})
	agg.Record(SearchEvent{Type: EventPartial, Query: "redis down", Language: "en",
		Returned: 2, LatencyMs: 90, Partial: true, Epoch: 4})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.PartialCount)
	assert.Equal(t, uint64(4), stats.LatestEpoch)
	assert.Equal(t, int64(3), stats.Languages["en"])
	assert.Equal(t, int64(1), stats.Languages["de"])
	assert.InDelta(t, 40.0, stats.AvgLatencyMs, 0.01)

	if assert.NotEmpty(t, stats.TopQueries) {
		assert.Equal(t, "go channels", stats.TopQueries[0].Query)
		assert.Equal(t, int64(2), stats.TopQueries[0].Count)
	}
	if assert.Len(t, stats.ZeroResultQueries, 1) {
		assert.Equal(t, "qqqq", stats.ZeroResultQueries[0].Query)
	}
}

func TestAggregatorLatestEpochConcurrentMax(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			// Interleaved, out-of-order epochs; only the max may stick.
			for e := 1; e <= 100; e++ {
				agg.Record(SearchEvent{Type: EventSearch, Query: "q", Returned: 1, Epoch: uint64(e)})
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, uint64(100), agg.Stats().LatestEpoch)
}

func TestAggregatorLatencyWindowBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+500; i++ {
		agg.Record(SearchEvent{Query: "q", LatencyMs: int64(i % 100), Returned: 1})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	assert.LessOrEqual(t, n, latencyWindow)
	assert.Greater(t, agg.Stats().P99LatencyMs, int64(0))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, EventPartial, Classify(3, true))
	assert.Equal(t, EventPartial, Classify(0, true))
	assert.Equal(t, EventZeroResult, Classify(0, false))
	assert.Equal(t, EventSearch, Classify(7, false))
}

func TestTopNTiesAreDeterministic(t *testing.T) {
	counts := map[string]int64{"b": 2, "a": 2, "c": 1}
	top := topN(counts, 2)
	assert.Equal(t, []QueryCount{{Query: "a", Count: 2}, {Query: "b", Count: 2}}, top)
}

func TestCollectorBuffersWithoutFlush(t *testing.T) {
	c := NewCollector(nil, 1000, time.Hour)
	for i := 0; i < 10; i++ {
		c.Track(SearchEvent{Query: "q", Returned: 1})
	}
	assert.Equal(t, 10, c.BufferLen())
}
