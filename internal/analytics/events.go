package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventPartial    EventType = "partial"
)

// SearchEvent is the wire record emitted for every served query. Raw query
// text is carried for top-query aggregation; consumers that persist it own
// the retention policy.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Language  string    `json:"language"`
	Script    string    `json:"script"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Partial   bool      `json:"partial"`
	Epoch     uint64    `json:"epoch"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// EpochEvent announces a newly published index generation. The builder
// publishes it; serving nodes treat it as a reload trigger.
type EpochEvent struct {
	Epoch     uint64    `json:"epoch"`
	DocCount  int       `json:"doc_count"`
	BuildMs   int64     `json:"build_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Classify returns the event type for a served response.
func Classify(returned int, partial bool) EventType {
	switch {
	case partial:
		return EventPartial
	case returned == 0:
		return EventZeroResult
	default:
		return EventSearch
	}
}
