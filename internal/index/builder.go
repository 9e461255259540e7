package index

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/omnidex-search/omnidex/internal/analyzer"
	"github.com/omnidex-search/omnidex/pkg/logger"
)

// BuildDocument is one raw input document for an epoch build.
type BuildDocument struct {
	URL        string            `json:"url"`
	Domain     string            `json:"domain,omitempty"`
	Title      string            `json:"title"`
	Headings   []string          `json:"headings,omitempty"`
	Body       string            `json:"body"`
	Anchors    []string          `json:"anchors,omitempty"`
	Language   string            `json:"language,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	Vertical   string            `json:"vertical,omitempty"`
	Structured map[string]string `json:"structured,omitempty"`
	Signals    BuildSignals      `json:"signals"`
}

// BuildSignals mirrors Signals with JSON names for corpus files.
type BuildSignals struct {
	Hostrank     float32 `json:"hostrank"`
	Spamness     float32 `json:"spamness"`
	QualityScore float32 `json:"qualityScore"`
	URLQuality   float32 `json:"urlQuality"`
	InboundLinks uint32  `json:"inboundLinks"`
}

// BuilderConfig controls an epoch build.
type BuilderConfig struct {
	Root             string
	Workers          int
	StripStopwords   bool
	NGramMin         int
	NGramMax         int
	StopgramFraction float64 // grams in more than this fraction of docs are dropped
}

// Builder produces complete, immutable index epochs. Epochs are written to
// a temporary directory and renamed into place, then the current pointer is
// repointed; readers either see the old complete epoch or the new one.
type Builder struct {
	cfg BuilderConfig
	log *slog.Logger
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.NGramMin == 0 {
		cfg.NGramMin = 3
	}
	if cfg.NGramMax == 0 {
		cfg.NGramMax = 5
	}
	if cfg.StopgramFraction == 0 {
		cfg.StopgramFraction = 0.2
	}
	return &Builder{cfg: cfg, log: logger.WithComponent("index-builder")}
}

// analyzed is the per-document output of the analysis pass.
type analyzed struct {
	doc     Document
	fieldTF [NumFields]map[string]uint32
	ngramTF map[string]uint32
	err     error
}

// Build analyzes docs, writes the next epoch under cfg.Root, and repoints
// the current file. It returns the published epoch number. DocIds are
// assigned in URL order so identical corpora build identical epochs.
func (b *Builder) Build(ctx context.Context, docs []BuildDocument) (uint64, error) {
	if len(docs) == 0 {
		return 0, fmt.Errorf("empty corpus")
	}
	start := time.Now()

	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })

	epoch := uint64(1)
	if cur, err := ReadCurrentEpoch(b.cfg.Root); err == nil {
		epoch = cur + 1
	} else if !os.IsNotExist(err) {
		return 0, err
	}

	results := make([]*analyzed, len(docs))
	var wg sync.WaitGroup
	pool, err := ants.NewPool(b.cfg.Workers)
	if err != nil {
		return 0, fmt.Errorf("create analysis pool: %w", err)
	}
	defer pool.Release()

	lexAnalyzer := analyzer.New(analyzer.Config{StripStopwords: b.cfg.StripStopwords})
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = b.analyzeOne(lexAnalyzer, DocID(i), docs[i])
		}); err != nil {
			wg.Done()
			return 0, fmt.Errorf("submit analysis task: %w", err)
		}
	}
	wg.Wait()

	for i, r := range results {
		if r.err != nil {
			return 0, fmt.Errorf("analyze %s: %w", docs[i].URL, r.err)
		}
	}

	dir := filepath.Join(b.cfg.Root, strconv.FormatUint(epoch, 10))
	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return 0, err
	}

	manifest, err := b.writeEpoch(tmp, epoch, results, docs)
	if err != nil {
		os.RemoveAll(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, dir); err != nil {
		return 0, fmt.Errorf("publish epoch directory: %w", err)
	}
	if err := writeCurrentEpoch(b.cfg.Root, epoch); err != nil {
		return 0, err
	}

	b.log.Info("epoch built",
		"epoch", epoch,
		"docs", manifest.DocCount,
		"lexTerms", manifest.LexTermCount,
		"ngramTerms", manifest.NGramTermCount,
		"stopgrams", len(manifest.Stopgrams),
		"duration", time.Since(start).String())
	return epoch, nil
}

func (b *Builder) analyzeOne(an *analyzer.Analyzer, id DocID, in BuildDocument) *analyzed {
	out := &analyzed{
		doc: Document{
			ID:       id,
			URL:      in.URL,
			Domain:   in.Domain,
			Title:    in.Title,
			Language: in.Language,
			Vertical: ParseVertical(in.Vertical),
			Signals: Signals{
				Hostrank:     in.Signals.Hostrank,
				Spamness:     in.Signals.Spamness,
				Quality:      in.Signals.QualityScore,
				URLQuality:   in.Signals.URLQuality,
				InboundLinks: in.Signals.InboundLinks,
				FreshnessTs:  in.Timestamp,
			},
			StructuredKV:      in.Structured,
			Structured:        len(in.Structured) > 0,
			StopwordsStripped: b.cfg.StripStopwords,
		},
		ngramTF: make(map[string]uint32),
	}
	if out.doc.Domain == "" {
		out.doc.Domain = domainOf(in.URL)
	}

	fieldText := [NumFields]string{
		FieldTitle:   in.Title,
		FieldH1H3:    strings.Join(in.Headings, " "),
		FieldAnchors: strings.Join(in.Anchors, " "),
		FieldURL:     urlTokensText(in.URL),
		FieldBody:    in.Body,
	}

	// The near-dup fingerprint covers content fields only. URL and anchor
	// tokens differ across mirror hosts for byte-identical pages and would
	// push mirrors outside the collapse radius.
	var contentTerms []string
	for f := FieldID(0); f < NumFields; f++ {
		res, err := an.Analyze(fieldText[f])
		if err != nil {
			out.err = err
			return out
		}
		if f == FieldBody {
			if out.doc.Language == "" {
				out.doc.Language = res.Language
			}
			out.doc.Script = res.Script
		}
		out.doc.FieldLengths[f] = uint32(len(res.Tokens))
		tf := make(map[string]uint32, len(res.Tokens))
		for _, tok := range res.Tokens {
			tf[tok.Term]++
			if f == FieldTitle || f == FieldH1H3 || f == FieldBody {
				contentTerms = append(contentTerms, tok.Term)
			}
		}
		out.fieldTF[f] = tf
	}

	for _, g := range an.NGrams(in.Title+" "+in.Body, b.cfg.NGramMin, b.cfg.NGramMax) {
		out.ngramTF[g]++
	}
	out.doc.Simhash = Simhash(contentTerms)
	return out
}

// writeEpoch serializes every epoch file into dir and returns the manifest.
func (b *Builder) writeEpoch(dir string, epoch uint64, results []*analyzed, docs []BuildDocument) (*Manifest, error) {
	pool := newStringPool()
	var docsBuf []byte

	lexPost := make(map[string][]Posting)
	ngPost := make(map[string][]Posting)
	ngDocFreq := make(map[string]uint32)
	var totalLen [NumFields]uint64

	for _, r := range results {
		docsBuf = encodeDocRecord(docsBuf, r.doc, pool)
		for f := FieldID(0); f < NumFields; f++ {
			totalLen[f] += uint64(r.doc.FieldLengths[f])
			for term, tf := range r.fieldTF[f] {
				lexPost[term] = append(lexPost[term], Posting{Doc: r.doc.ID, Field: f, TF: tf})
			}
		}
		for gram, tf := range r.ngramTF {
			ngPost[gram] = append(ngPost[gram], Posting{Doc: r.doc.ID, Field: 0, TF: tf})
			ngDocFreq[gram]++
		}
	}

	// Grams present in a large fraction of the corpus carry no signal and
	// only bloat postings; drop them but record which were dropped.
	maxDF := uint32(float64(len(results)) * b.cfg.StopgramFraction)
	var stopgrams []string
	if maxDF > 0 {
		for gram, df := range ngDocFreq {
			if df > maxDF {
				stopgrams = append(stopgrams, gram)
				delete(ngPost, gram)
			}
		}
	}
	sort.Strings(stopgrams)

	m := &Manifest{
		Epoch:        epoch,
		DocCount:     uint32(len(results)),
		CreatedAtMs:  time.Now().UnixMilli(),
		FieldWeights: DefaultFieldWeights,
		Stopgrams:    stopgrams,
		InputHash:    corpusHash(docs),
		Checksums:    make(map[string]uint32),
	}
	for f := FieldID(0); f < NumFields; f++ {
		m.AvgFieldLengths[f] = float64(totalLen[f]) / float64(len(results))
	}

	write := func(name string, raw []byte) error {
		m.Checksums[name] = crc32.ChecksumIEEE(raw)
		return os.WriteFile(filepath.Join(dir, name), raw, 0o644)
	}

	if err := write(fileDocs, docsBuf); err != nil {
		return nil, err
	}
	if err := write(fileStrings, pool.buf); err != nil {
		return nil, err
	}

	lexTerms, lexPostBuf, lexSkipBuf := encodeIndex(lexPost)
	m.LexTermCount = len(lexTerms)
	if err := write(fileLexTerms, encodeTermDict(lexTerms)); err != nil {
		return nil, err
	}
	if err := write(fileLexPostings, lexPostBuf); err != nil {
		return nil, err
	}
	if err := write(fileLexSkips, lexSkipBuf); err != nil {
		return nil, err
	}

	ngTerms, ngPostBuf, ngSkipBuf := encodeIndex(ngPost)
	m.NGramTermCount = len(ngTerms)
	if err := write(fileNGTerms, encodeTermDict(ngTerms)); err != nil {
		return nil, err
	}
	if err := write(fileNGPostings, ngPostBuf); err != nil {
		return nil, err
	}
	if err := write(fileNGSkips, ngSkipBuf); err != nil {
		return nil, err
	}

	if err := writeManifest(dir, m); err != nil {
		return nil, err
	}
	return m, nil
}

// encodeIndex turns a postings map into a sorted term dictionary plus the
// concatenated postings and skip files.
func encodeIndex(post map[string][]Posting) ([]termEntry, []byte, []byte) {
	terms := make([]string, 0, len(post))
	for t := range post {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	entries := make([]termEntry, 0, len(terms))
	var postBuf, skipBuf []byte
	for _, t := range terms {
		list := post[t]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Doc != list[j].Doc {
				return list[i].Doc < list[j].Doc
			}
			return list[i].Field < list[j].Field
		})
		df := uint32(0)
		var prev DocID
		for i, p := range list {
			if i == 0 || p.Doc != prev {
				df++
				prev = p.Doc
			}
		}
		enc, skips := encodePostings(list)
		rawSkips := encodeSkips(skips)
		entries = append(entries, termEntry{
			term:    t,
			postOff: uint64(len(postBuf)),
			postLen: uint32(len(enc)),
			skipOff: uint64(len(skipBuf)),
			skipLen: uint32(len(rawSkips)),
			docFreq: df,
		})
		postBuf = append(postBuf, enc...)
		skipBuf = append(skipBuf, rawSkips...)
	}
	return entries, postBuf, skipBuf
}

// corpusHash fingerprints the input set so a rebuild of identical input is
// detectable from the manifest.
func corpusHash(docs []BuildDocument) string {
	h := xxhash.New()
	for _, d := range docs {
		h.WriteString(d.URL)
		h.WriteString("\x00")
		h.WriteString(d.Title)
		h.WriteString("\x00")
		h.WriteString(strconv.FormatInt(d.Timestamp, 10))
		h.WriteString("\x00")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// urlTokensText rewrites a URL so path and host segments analyze as words.
func urlTokensText(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	repl := strings.NewReplacer("/", " ", "-", " ", "_", " ", ".", " ", "+", " ", "=", " ", "?", " ", "&", " ")
	return repl.Replace(u.Host + " " + u.Path)
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
