package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

func testCorpus() []BuildDocument {
	return []BuildDocument{
		{
			URL:      "https://books.example.com/golang-systems",
			Title:    "Systems Programming in Go",
			Headings: []string{"Concurrency", "Networking"},
			Body:     "A practical guide to building concurrent network services in Go.",
			Anchors:  []string{"go systems book"},
			Vertical: "Book",
			Structured: map[string]string{
				"isbn": "9780134190440",
			},
			Timestamp: 1700000000,
			Signals:   BuildSignals{Hostrank: 0.8, QualityScore: 0.9, URLQuality: 0.7},
		},
		{
			URL:       "https://blog.example.org/posts/search-engines",
			Title:     "How Search Engines Rank Pages",
			Body:      "Ranking combines lexical match signals with link graph authority.",
			Vertical:  "Article",
			Timestamp: 1710000000,
			Signals:   BuildSignals{Hostrank: 0.5, QualityScore: 0.6, URLQuality: 0.5},
		},
		{
			URL:     "https://spam.example.net/buy-now",
			Title:   "Buy cheap pages now",
			Body:    "cheap cheap cheap pages pages",
			Signals: BuildSignals{Hostrank: 0.1, Spamness: 0.9, QualityScore: 0.1},
		},
	}
}

func buildTestEpoch(t *testing.T, root string, docs []BuildDocument) uint64 {
	t.Helper()
	b := NewBuilder(BuilderConfig{Root: root, Workers: 2})
	epoch, err := b.Build(context.Background(), docs)
	require.NoError(t, err)
	return epoch
}

func TestBuildAndOpenRoundtrip(t *testing.T) {
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, testCorpus())
	assert.Equal(t, uint64(1), epoch)

	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), r.Lex.NumDocs())
	assert.Greater(t, r.Lex.TermCount(), 0)
	assert.Greater(t, r.NGram.TermCount(), 0)
	assert.Greater(t, r.Lex.AvgFieldLength(FieldBody), 0.0)

	// "ranking" occurs only in the article body.
	it := r.Lex.Postings("ranking")
	require.True(t, it.Next())
	p := it.At()
	assert.Equal(t, FieldBody, p.Field)
	doc, err := r.Docs.Get(p.Doc)
	require.NoError(t, err)
	assert.Equal(t, "blog.example.org", doc.Domain)
	assert.Equal(t, VerticalArticle, doc.Vertical)
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestPostingsOrderAndDocFreq(t *testing.T) {
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, testCorpus())
	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)

	// "pages" appears in two docs, in one of them across title and body.
	assert.Equal(t, uint32(2), r.Lex.DocFreq("pages"))
	it := r.Lex.Postings("pages")
	var prev Posting
	first := true
	for it.Next() {
		p := it.At()
		if !first {
			less := prev.Doc < p.Doc || (prev.Doc == p.Doc && prev.Field < p.Field)
			assert.True(t, less, "postings must be ordered by (docId, fieldId)")
		}
		prev = p
		first = false
	}
	require.NoError(t, it.Err())
}

func TestUnknownTermEmptyIterator(t *testing.T) {
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, testCorpus())
	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)

	it := r.Lex.Postings("zzzznotindexed")
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Equal(t, uint32(0), r.Lex.DocFreq("zzzznotindexed"))

	longTerm := make([]byte, maxLookupTermBytes+1)
	for i := range longTerm {
		longTerm[i] = 'a'
	}
	assert.False(t, r.Lex.Postings(string(longTerm)).Next())
}

func TestAdvanceToWithSkips(t *testing.T) {
	// A synthetic list spanning several blocks exercises the skip path.
	var list []Posting
	for d := DocID(0); d < 1000; d++ {
		list = append(list, Posting{Doc: d * 3, Field: FieldBody, TF: 1})
	}
	buf, skips := encodePostings(list)
	require.Greater(t, len(skips), 1)

	it := newIterator(buf, skips)
	require.True(t, it.AdvanceTo(1500))
	assert.Equal(t, DocID(1500), it.At().Doc)
	// Target between stored docIds lands on the next one.
	require.True(t, it.AdvanceTo(2000))
	assert.Equal(t, DocID(2001), it.At().Doc)
	// Last stored docId is 2997; anything beyond exhausts the list.
	require.True(t, it.AdvanceTo(2997))
	assert.Equal(t, DocID(2997), it.At().Doc)
	assert.False(t, it.AdvanceTo(2998))
	require.NoError(t, it.Err())
}

func TestAdvanceToExactAndPast(t *testing.T) {
	var list []Posting
	for d := DocID(0); d < 500; d++ {
		list = append(list, Posting{Doc: d * 2, Field: FieldBody, TF: 1})
	}
	buf, skips := encodePostings(list)

	it := newIterator(buf, skips)
	require.True(t, it.AdvanceTo(400))
	assert.Equal(t, DocID(400), it.At().Doc)
	// Target between entries lands on the next docId.
	require.True(t, it.AdvanceTo(401))
	assert.Equal(t, DocID(402), it.At().Doc)
	// Past the end.
	assert.False(t, it.AdvanceTo(10_000))
}

func TestDocStoreStructuredRoundtrip(t *testing.T) {
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, testCorpus())
	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)

	var book *Document
	for id := DocID(0); id < DocID(r.Docs.Len()); id++ {
		d, err := r.Docs.Get(id)
		require.NoError(t, err)
		if d.Vertical == VerticalBook {
			book = &d
		}
	}
	require.NotNil(t, book)
	assert.True(t, book.Structured)
	assert.Equal(t, "9780134190440", book.StructuredKV["isbn"])
	assert.Equal(t, "books.example.com", book.Domain)
	assert.NotZero(t, book.Simhash)
}

func TestDocStoreOutOfRange(t *testing.T) {
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, testCorpus())
	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)

	_, err = r.Docs.Get(DocID(9999))
	assert.ErrorIs(t, err, apperrors.ErrIndexCorrupt)
}

func TestChecksumMismatchIsCorrupt(t *testing.T) {
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, testCorpus())

	path := filepath.Join(root, fmt.Sprintf("%d", epoch), fileDocs)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = OpenEpoch(root, epoch)
	assert.ErrorIs(t, err, apperrors.ErrIndexCorrupt)
}

func TestStopgramExclusion(t *testing.T) {
	// Ten documents all sharing a common phrase: its grams exceed the
	// document-frequency ceiling and must be dropped from the index.
	var docs []BuildDocument
	for i := 0; i < 10; i++ {
		docs = append(docs, BuildDocument{
			URL:   fmt.Sprintf("https://example.com/page-%d", i),
			Title: fmt.Sprintf("unique%d", i),
			Body:  fmt.Sprintf("commonphrase everywhere special%d", i),
		})
	}
	root := t.TempDir()
	epoch := buildTestEpoch(t, root, docs)
	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)

	assert.True(t, r.IsStopgram("com"), "gram from the shared phrase should be a stopgram")
	assert.False(t, r.NGram.Postings("com").Next())
	// Grams unique to one doc survive.
	assert.False(t, r.IsStopgram("al7"))
}

func TestEpochManagerSwapKeepsPinned(t *testing.T) {
	root := t.TempDir()
	buildTestEpoch(t, root, testCorpus())

	mgr, err := NewManager(root, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), mgr.CurrentEpoch())

	h1, err := mgr.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h1.Epoch())

	// Publish a second epoch while the first is pinned.
	b := NewBuilder(BuilderConfig{Root: root, Workers: 2})
	_, err = b.Build(context.Background(), testCorpus())
	require.NoError(t, err)
	require.NoError(t, mgr.Reload())
	assert.Equal(t, uint64(2), mgr.CurrentEpoch())

	// The pinned handle still serves epoch 1.
	assert.Equal(t, uint64(1), h1.Epoch())
	assert.Equal(t, uint32(3), h1.Reader().Lex.NumDocs())
	h1.Release()
	h1.Release() // double release is safe

	h2, err := mgr.Acquire()
	require.NoError(t, err)
	defer h2.Release()
	assert.Equal(t, uint64(2), h2.Epoch())
}

func TestManagerWithoutEpoch(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = mgr.Acquire()
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestReadCurrentEpoch(t *testing.T) {
	root := t.TempDir()
	_, err := ReadCurrentEpoch(root)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, writeCurrentEpoch(root, 7))
	epoch, err := ReadCurrentEpoch(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), epoch)

	require.NoError(t, os.WriteFile(filepath.Join(root, fileCurrent), []byte("junk"), 0o644))
	_, err = ReadCurrentEpoch(root)
	assert.ErrorIs(t, err, apperrors.ErrIndexCorrupt)
}

func TestSimhashNearDuplicates(t *testing.T) {
	a := Simhash([]string{"go", "concurrency", "patterns", "channels", "select"})
	b := Simhash([]string{"go", "concurrency", "patterns", "channels", "select"})
	assert.Equal(t, a, b)
	c := Simhash([]string{"completely", "different", "vocabulary", "here"})
	assert.Greater(t, HammingDistance(a, c), 3)
	assert.Equal(t, 0, HammingDistance(a, b))
}

func TestSimhashIgnoresURLTokens(t *testing.T) {
	// Mirror hosts serve byte-identical pages under different URLs; only
	// content fields feed the fingerprint so the mirrors stay inside the
	// collapse radius.
	page := BuildDocument{
		Title:    "Go Concurrency Patterns",
		Headings: []string{"Channels", "Select"},
		Body:     "Share memory by communicating. Goroutines and channels compose into pipelines.",
	}
	a := page
	a.URL = "https://primary.example.com/articles/go-concurrency-patterns"
	b := page
	b.URL = "https://mirror.example.org/cache/2024/go-concurrency"

	root := t.TempDir()
	epoch := buildTestEpoch(t, root, []BuildDocument{a, b})
	r, err := OpenEpoch(root, epoch)
	require.NoError(t, err)

	da, err := r.Docs.Get(0)
	require.NoError(t, err)
	db, err := r.Docs.Get(1)
	require.NoError(t, err)
	assert.NotEqual(t, da.Domain, db.Domain)
	assert.LessOrEqual(t, HammingDistance(da.Simhash, db.Simhash), 3)
}
