package index

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

// Epoch file names. The lexical and n-gram indexes share the document
// store; their dictionaries and postings carry a prefix.
const (
	fileManifest    = "manifest.json"
	fileDocs        = "docs.bin"
	fileStrings     = "strings.bin"
	fileLexTerms    = "lex.terms.fst"
	fileLexPostings = "lex.postings.bin"
	fileLexSkips    = "lex.postings.skp"
	fileNGTerms     = "ngram.terms.fst"
	fileNGPostings  = "ngram.postings.bin"
	fileNGSkips     = "ngram.postings.skp"
	fileCurrent     = "current"
)

// Manifest describes one index epoch. Checksums are crc32 (IEEE) of each
// file; a mismatch on open surfaces as INDEX_CORRUPT.
type Manifest struct {
	Epoch           uint64             `json:"epoch"`
	DocCount        uint32             `json:"docCount"`
	LexTermCount    int                `json:"lexTermCount"`
	NGramTermCount  int                `json:"ngramTermCount"`
	CreatedAtMs     int64              `json:"createdAtMs"`
	FieldWeights    [NumFields]float64 `json:"fieldWeights"`
	AvgFieldLengths [NumFields]float64 `json:"avgFieldLengths"`
	Stopgrams       []string           `json:"stopgrams,omitempty"`
	InputHash       string             `json:"inputHash"`
	Checksums       map[string]uint32  `json:"checksums"`
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, fileManifest), data, 0o644)
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileManifest))
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexCorrupt, "read manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexCorrupt, "parse manifest: %v", err)
	}
	return &m, nil
}

// verifyChecksum compares the crc32 of raw against the manifest entry for
// name. Files absent from the checksum map fail closed.
func (m *Manifest) verifyChecksum(name string, raw []byte) error {
	want, ok := m.Checksums[name]
	if !ok {
		return apperrors.Newf(apperrors.ErrIndexCorrupt, "%s: no checksum in manifest", name)
	}
	if got := crc32.ChecksumIEEE(raw); got != want {
		return apperrors.Newf(apperrors.ErrIndexCorrupt, "%s: checksum mismatch (got %08x want %08x)", name, got, want)
	}
	return nil
}
