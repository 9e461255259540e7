// Package feature fetches per-document ranking features from the warm
// store. Features are denormalized into Redis hashes at indexing time; the
// query path only ever reads them in batch.
package feature

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"strconv"

	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
	"github.com/omnidex-search/omnidex/pkg/redis"
)

// Hash fields read per document. The embedding field holds the document
// vector as packed little-endian float32s.
var hashFields = []string{"hostrank", "spamness", "qualityScore", "urlQuality", "freshnessTs", "embedding"}

// Features are the warm-store signals for one document. Missing documents
// or fields decode to zero values, never NaN; Found marks whether the store
// had any data for the document at all.
type Features struct {
	Hostrank    float64
	Spamness    float64
	Quality     float64
	URLQuality  float64
	FreshnessTs int64
	Embedding   []float32
	Found       bool
}

// Store reads document features over a pipelined HMGET per batch.
type Store struct {
	client  *redis.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewStore(client *redis.Client, m *metrics.Metrics) *Store {
	return &Store{
		client:  client,
		log:     logger.WithComponent("feature-store"),
		metrics: m,
	}
}

func docKey(id index.DocID) string {
	return "docId:" + strconv.FormatUint(uint64(id), 10)
}

// Fetch returns features for ids in input order. A store-level failure
// returns the error; per-document misses degrade to zero features and a
// warm-miss metric so ranking can proceed on index-resident signals.
func (s *Store) Fetch(ctx context.Context, ids []index.DocID) ([]Features, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}
	rows, err := s.client.HMGetPipelined(ctx, keys, hashFields...)
	if err != nil {
		return nil, err
	}

	out := make([]Features, len(ids))
	for i, row := range rows {
		f, found := decodeRow(row)
		out[i] = f
		if !found {
			if s.metrics != nil {
				s.metrics.FeatureWarmMisses.Inc()
			}
			s.log.Debug("warm store miss", "docId", ids[i])
		}
	}
	return out, nil
}

func decodeRow(row []interface{}) (Features, bool) {
	var f Features
	if len(row) != len(hashFields) {
		return f, false
	}
	found := false
	for i, v := range row {
		raw, ok := v.(string)
		if !ok || raw == "" {
			continue
		}
		found = true
		switch hashFields[i] {
		case "hostrank":
			f.Hostrank = parseUnit(raw)
		case "spamness":
			f.Spamness = parseUnit(raw)
		case "qualityScore":
			f.Quality = parseUnit(raw)
		case "urlQuality":
			f.URLQuality = parseUnit(raw)
		case "freshnessTs":
			if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
				f.FreshnessTs = ts
			}
		case "embedding":
			f.Embedding = decodeEmbedding([]byte(raw))
		}
	}
	f.Found = found
	return f, found
}

// parseUnit parses a float clamped to [0,1]; malformed values read as 0.
func parseUnit(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// decodeEmbedding unpacks little-endian float32s. A length that is not a
// multiple of four is treated as no embedding.
func decodeEmbedding(raw []byte) []float32 {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		v := math.Float32frombits(bits)
		if f64 := float64(v); math.IsNaN(f64) || math.IsInf(f64, 0) {
			return nil
		}
		vec[i] = v
	}
	return vec
}

// EncodeEmbedding packs a vector for storage; the indexer writes with this
// and Fetch reads it back.
func EncodeEmbedding(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
