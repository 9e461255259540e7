package retriever

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/pkg/config"
)

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		KBM25:            200,
		KNGram:           100,
		MaxCandidates:    250,
		PreDomainCap:     5,
		MinQuality:       0.2,
		MinBodyLength:    5,
		MinNGramCoverage: 0.3,
		TitleGateTopN:    10,
	}
}

func buildReader(t *testing.T, docs []index.BuildDocument) *index.Reader {
	t.Helper()
	root := t.TempDir()
	b := index.NewBuilder(index.BuilderConfig{Root: root, Workers: 2})
	epoch, err := b.Build(context.Background(), docs)
	require.NoError(t, err)
	r, err := index.OpenEpoch(root, epoch)
	require.NoError(t, err)
	return r
}

func quality(q float32) index.BuildSignals {
	return index.BuildSignals{Hostrank: 0.5, QualityScore: q, URLQuality: 0.5}
}

func TestRetrieveMergesBothLegs(t *testing.T) {
	docs := []index.BuildDocument{
		{URL: "https://a.example.com/golang", Title: "Golang concurrency patterns",
			Body: "Channels and goroutines make concurrent code tractable in practice.", Signals: quality(0.9)},
		{URL: "https://b.example.com/python", Title: "Python asyncio guide",
			Body: "Event loops and coroutines for concurrent python programs today.", Signals: quality(0.9)},
	}
	reader := buildReader(t, docs)
	r := New(testRetrievalConfig(), nil)

	cands, err := r.Retrieve(context.Background(), reader, []string{"golang", "concurrency"}, []string{"gol", "ola", "lan"})
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "a.example.com", cands[0].Doc.Domain)
	assert.Greater(t, cands[0].BM25, 0.0)
	assert.Greater(t, cands[0].NGramCoverage, 0.0, "same doc should merge hits from both scorers")
	assert.Equal(t, 1, cands[0].BM25Rank)
}

func TestRetrieveQualityGate(t *testing.T) {
	docs := []index.BuildDocument{
		{URL: "https://good.example.com/page", Title: "trusted reference material",
			Body: "a long enough body with plenty of useful reference words inside", Signals: quality(0.9)},
		// Body-only match on a low-quality page: no exemption applies.
		{URL: "https://junk.example.com/page", Title: "unrelated aggregator listing",
			Body: "scraped trusted reference text surrounded by keyword stuffing noise", Signals: quality(0.05)},
	}
	reader := buildReader(t, docs)
	r := New(testRetrievalConfig(), nil)

	cands, err := r.Retrieve(context.Background(), reader, []string{"trusted", "reference"}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "good.example.com", cands[0].Doc.Domain)
}

func TestRetrieveLowQualitySurvivesOnStrongTitleMatch(t *testing.T) {
	// A page with no accumulated quality signal but an exact title match in
	// the lexical top ranks passes the gate, same as a thin body would.
	docs := []index.BuildDocument{
		{URL: "https://fresh.example.com/glossary", Title: "shipping forecast glossary",
			Body: "a newly crawled page without quality history but a precise heading",
			Signals: quality(0.05)},
	}
	reader := buildReader(t, docs)
	r := New(testRetrievalConfig(), nil)

	cands, err := r.Retrieve(context.Background(), reader, []string{"shipping", "forecast", "glossary"}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "fresh.example.com", cands[0].Doc.Domain)
}

func TestRetrieveThinBodySurvivesOnTitleMatch(t *testing.T) {
	docs := []index.BuildDocument{
		// Thin body but the query term is in the title: survives the gate.
		{URL: "https://thin.example.com/landing", Title: "ferrocement boats",
			Body: "short", Signals: quality(0.9)},
		// Thin body, query matches only the body: gated out.
		{URL: "https://thin2.example.com/other", Title: "unrelated heading",
			Body: "ferrocement", Signals: quality(0.9)},
	}
	reader := buildReader(t, docs)
	r := New(testRetrievalConfig(), nil)

	cands, err := r.Retrieve(context.Background(), reader, []string{"ferrocement"}, nil)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "thin.example.com", cands[0].Doc.Domain)
}

func TestRetrievePreDomainCap(t *testing.T) {
	bodies := []string{
		"widget catalog covering brass fittings and copper pipework for plumbers",
		"widget catalog of marine winches anchors and sailing hardware",
		"widget catalog for laboratory glassware burners and clamps",
		"widget catalog listing garden tools shears trowels and rakes",
		"widget catalog about bicycle drivetrains chains and derailleurs",
		"widget catalog on camera lenses tripods and lighting rigs",
		"widget catalog with kitchen knives whetstones and cutting boards",
		"widget catalog presenting climbing ropes carabiners and harnesses",
	}
	var docs []index.BuildDocument
	for i, body := range bodies {
		docs = append(docs, index.BuildDocument{
			URL:     fmt.Sprintf("https://onehost.example.com/page-%d", i),
			Title:   fmt.Sprintf("widget catalog volume %d", i),
			Body:    body,
			Signals: quality(0.9),
		})
	}
	reader := buildReader(t, docs)
	r := New(testRetrievalConfig(), nil)

	cands, err := r.Retrieve(context.Background(), reader, []string{"widget", "catalog"}, nil)
	require.NoError(t, err)
	assert.Len(t, cands, 5, "one domain may hold at most five pre-fusion slots")
}

func TestRetrieveNearDuplicateCollapse(t *testing.T) {
	body := "an identical body about vintage synthesizer repair and restoration"
	docs := []index.BuildDocument{
		{URL: "https://a.example.com/synth", Title: "vintage synthesizer repair", Body: body, Signals: quality(0.9)},
		{URL: "https://b.example.com/synth-mirror", Title: "vintage synthesizer repair", Body: body, Signals: quality(0.9)},
		{URL: "https://c.example.com/drums", Title: "drum machine maintenance",
			Body: "a completely different body about drum machine voices and tuning", Signals: quality(0.9)},
	}
	reader := buildReader(t, docs)
	r := New(testRetrievalConfig(), nil)

	cands, err := r.Retrieve(context.Background(), reader, []string{"synthesizer", "repair", "drum"}, nil)
	require.NoError(t, err)
	domains := make(map[string]bool)
	for _, c := range cands {
		domains[c.Doc.Domain] = true
	}
	// The mirror collapses onto the original; the drum page is distinct.
	assert.Len(t, cands, 2)
	assert.True(t, domains["c.example.com"])
}

func TestRetrieveEmptyLegs(t *testing.T) {
	reader := buildReader(t, []index.BuildDocument{
		{URL: "https://x.example.com/a", Title: "anything", Body: "anything at all in this body here", Signals: quality(0.9)},
	})
	r := New(testRetrievalConfig(), nil)
	cands, err := r.Retrieve(context.Background(), reader, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, cands)
}
