package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

// maxLookupTermBytes bounds dictionary lookups; anything longer cannot be a
// stored term and short-circuits to an empty result.
const maxLookupTermBytes = 1024

// PostingsIndex is the read side of one inverted index (lexical or n-gram)
// within an epoch.
type PostingsIndex struct {
	dict     *termDict
	postings []byte
	skips    []byte
	numDocs  uint32
	avgLen   [NumFields]float64
}

// Postings returns an iterator over the postings of term. Unknown and
// overlong terms yield an empty iterator, never an error.
func (p *PostingsIndex) Postings(term string) *Iterator {
	if len(term) > maxLookupTermBytes {
		return emptyIterator()
	}
	e := p.dict.lookup(term)
	if e == nil {
		return emptyIterator()
	}
	if e.postOff+uint64(e.postLen) > uint64(len(p.postings)) ||
		e.skipOff+uint64(e.skipLen) > uint64(len(p.skips)) {
		it := emptyIterator()
		it.err = apperrors.Newf(apperrors.ErrIndexCorrupt, "term %q references bytes beyond postings files", term)
		return it
	}
	buf := p.postings[e.postOff : e.postOff+uint64(e.postLen)]
	skips, err := decodeSkips(p.skips[e.skipOff : e.skipOff+uint64(e.skipLen)])
	if err != nil {
		it := emptyIterator()
		it.err = err
		return it
	}
	return newIterator(buf, skips)
}

// DocFreq returns the number of documents containing term.
func (p *PostingsIndex) DocFreq(term string) uint32 {
	if len(term) > maxLookupTermBytes {
		return 0
	}
	if e := p.dict.lookup(term); e != nil {
		return e.docFreq
	}
	return 0
}

// NumDocs returns the total document count of the epoch.
func (p *PostingsIndex) NumDocs() uint32 { return p.numDocs }

// AvgFieldLength returns the corpus-wide mean token count of field.
func (p *PostingsIndex) AvgFieldLength(f FieldID) float64 {
	if f >= NumFields {
		return 0
	}
	return p.avgLen[f]
}

// TermCount returns the dictionary size.
func (p *PostingsIndex) TermCount() int { return p.dict.size() }

// Reader is an open, immutable index epoch: both inverted indexes plus the
// shared document store.
type Reader struct {
	Epoch     uint64
	Lex       *PostingsIndex
	NGram     *PostingsIndex
	Docs      *DocStore
	Manifest  *Manifest
	stopgrams map[string]struct{}
}

// OpenEpoch memory-loads the epoch directory root/<epoch>, verifying every
// file against the manifest checksums. Any mismatch or structural damage
// returns INDEX_CORRUPT.
func OpenEpoch(root string, epoch uint64) (*Reader, error) {
	dir := filepath.Join(root, strconv.FormatUint(epoch, 10))
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.Epoch != epoch {
		return nil, apperrors.Newf(apperrors.ErrIndexCorrupt, "manifest epoch %d does not match directory %d", m.Epoch, epoch)
	}

	load := func(name string) ([]byte, error) {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexCorrupt, "read %s: %v", name, err)
		}
		if err := m.verifyChecksum(name, raw); err != nil {
			return nil, err
		}
		return raw, nil
	}

	docsRaw, err := load(fileDocs)
	if err != nil {
		return nil, err
	}
	strsRaw, err := load(fileStrings)
	if err != nil {
		return nil, err
	}
	docs, err := newDocStore(docsRaw, strsRaw)
	if err != nil {
		return nil, err
	}
	if uint32(docs.Len()) != m.DocCount {
		return nil, apperrors.Newf(apperrors.ErrIndexCorrupt, "document store holds %d records, manifest says %d", docs.Len(), m.DocCount)
	}

	openIndex := func(termsFile, postFile, skipFile string) (*PostingsIndex, error) {
		termsRaw, err := load(termsFile)
		if err != nil {
			return nil, err
		}
		dict, err := decodeTermDict(termsRaw)
		if err != nil {
			return nil, err
		}
		postRaw, err := load(postFile)
		if err != nil {
			return nil, err
		}
		skipRaw, err := load(skipFile)
		if err != nil {
			return nil, err
		}
		return &PostingsIndex{
			dict:     dict,
			postings: postRaw,
			skips:    skipRaw,
			numDocs:  m.DocCount,
			avgLen:   m.AvgFieldLengths,
		}, nil
	}

	lex, err := openIndex(fileLexTerms, fileLexPostings, fileLexSkips)
	if err != nil {
		return nil, err
	}
	ng, err := openIndex(fileNGTerms, fileNGPostings, fileNGSkips)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		Epoch:     epoch,
		Lex:       lex,
		NGram:     ng,
		Docs:      docs,
		Manifest:  m,
		stopgrams: make(map[string]struct{}, len(m.Stopgrams)),
	}
	for _, g := range m.Stopgrams {
		r.stopgrams[g] = struct{}{}
	}
	return r, nil
}

// IsStopgram reports whether gram was excluded from the n-gram index at
// build time for appearing in too many documents.
func (r *Reader) IsStopgram(gram string) bool {
	_, ok := r.stopgrams[gram]
	return ok
}

// ReadCurrentEpoch returns the epoch number the current pointer file names,
// or 0 with os.ErrNotExist when no epoch has been published.
func ReadCurrentEpoch(root string) (uint64, error) {
	raw, err := os.ReadFile(filepath.Join(root, fileCurrent))
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(raw))
	if !utf8.ValidString(s) || s == "" {
		return 0, apperrors.New(apperrors.ErrIndexCorrupt, "current pointer file is empty or malformed")
	}
	epoch, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrIndexCorrupt, "current pointer file: %v", err)
	}
	return epoch, nil
}

// writeCurrentEpoch atomically repoints the current file at epoch.
func writeCurrentEpoch(root string, epoch uint64) error {
	tmp := filepath.Join(root, fileCurrent+".tmp")
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(epoch, 10)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write current pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(root, fileCurrent)); err != nil {
		return fmt.Errorf("publish current pointer: %w", err)
	}
	return nil
}
