package index

import (
	"encoding/binary"
	"encoding/json"
	"math"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

// docs.bin holds one fixed-width record per document, addressed by
// docId * docRecordSize. Variable-length data (url, domain, structured kv
// blob) lives in strings.bin and is referenced by offset+length. Domains
// repeat heavily, so the builder interns strings.
//
// Record layout (little endian):
//
//	urlOff uint32, urlLen uint16
//	domainOff uint32, domainLen uint16
//	titleOff uint32, titleLen uint16
//	structOff uint32, structLen uint16
//	fieldLens [5]uint32
//	lang [2]byte, script [4]byte
//	hostrank, spamness, quality, urlQuality float32
//	inboundLinks uint32
//	freshnessTs int64
//	simhash uint64
//	vertical uint8, flags uint8
const docRecordSize = 88

// DocStore provides random access to document records of one epoch.
type DocStore struct {
	docs    []byte
	strings []byte
}

func newDocStore(docs, strs []byte) (*DocStore, error) {
	if len(docs)%docRecordSize != 0 {
		return nil, apperrors.New(apperrors.ErrIndexCorrupt, "document store length not a multiple of record size")
	}
	return &DocStore{docs: docs, strings: strs}, nil
}

// Len returns the number of documents in the store.
func (s *DocStore) Len() int { return len(s.docs) / docRecordSize }

// FieldLength reads one field's token count without decoding the record.
// Out-of-range ids return 0; scoring paths treat that as an empty field.
func (s *DocStore) FieldLength(id DocID, f FieldID) uint32 {
	off := int(id)*docRecordSize + 18 + int(f)*4
	if f >= NumFields || off+4 > len(s.docs) {
		return 0
	}
	return binary.LittleEndian.Uint32(s.docs[off:])
}

// Get decodes the record for id. Unknown ids return INDEX_CORRUPT: every
// docId handed out by a postings list of the same epoch must resolve.
func (s *DocStore) Get(id DocID) (Document, error) {
	off := int(id) * docRecordSize
	if off+docRecordSize > len(s.docs) {
		return Document{}, apperrors.Newf(apperrors.ErrIndexCorrupt, "docId %d out of range", id)
	}
	r := s.docs[off : off+docRecordSize]

	url, err := s.str(binary.LittleEndian.Uint32(r[0:]), binary.LittleEndian.Uint16(r[4:]))
	if err != nil {
		return Document{}, err
	}
	domain, err := s.str(binary.LittleEndian.Uint32(r[6:]), binary.LittleEndian.Uint16(r[10:]))
	if err != nil {
		return Document{}, err
	}
	title, err := s.str(binary.LittleEndian.Uint32(r[82:]), binary.LittleEndian.Uint16(r[86:]))
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ID:     id,
		URL:    url,
		Domain: domain,
		Title:  title,
	}

	structLen := binary.LittleEndian.Uint16(r[16:])
	if structLen > 0 {
		blob, err := s.str(binary.LittleEndian.Uint32(r[12:]), structLen)
		if err != nil {
			return Document{}, err
		}
		if err := json.Unmarshal([]byte(blob), &doc.StructuredKV); err != nil {
			return Document{}, apperrors.Newf(apperrors.ErrIndexCorrupt, "docId %d structured blob: %v", id, err)
		}
	}

	for f := 0; f < int(NumFields); f++ {
		doc.FieldLengths[f] = binary.LittleEndian.Uint32(r[18+f*4:])
	}
	doc.Language = trimZero(r[38:40])
	doc.Script = trimZero(r[40:44])
	doc.Signals = Signals{
		Hostrank:     math.Float32frombits(binary.LittleEndian.Uint32(r[44:])),
		Spamness:     math.Float32frombits(binary.LittleEndian.Uint32(r[48:])),
		Quality:      math.Float32frombits(binary.LittleEndian.Uint32(r[52:])),
		URLQuality:   math.Float32frombits(binary.LittleEndian.Uint32(r[56:])),
		InboundLinks: binary.LittleEndian.Uint32(r[60:]),
		FreshnessTs:  int64(binary.LittleEndian.Uint64(r[64:])),
	}
	doc.Simhash = binary.LittleEndian.Uint64(r[72:])
	doc.Vertical = Vertical(r[80])
	flags := r[81]
	doc.Structured = flags&flagStructured != 0
	doc.StopwordsStripped = flags&flagStopwordsStripped != 0
	return doc, nil
}

func (s *DocStore) str(off uint32, n uint16) (string, error) {
	end := int(off) + int(n)
	if end > len(s.strings) {
		return "", apperrors.New(apperrors.ErrIndexCorrupt, "string reference out of range")
	}
	return string(s.strings[off:end]), nil
}

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// stringPool interns variable-length payloads for strings.bin. Equal
// payloads share a single slot.
type stringPool struct {
	buf  []byte
	seen map[string]uint32
}

func newStringPool() *stringPool {
	return &stringPool{seen: make(map[string]uint32)}
}

func (p *stringPool) put(s string) (uint32, uint16) {
	if off, ok := p.seen[s]; ok {
		return off, uint16(len(s))
	}
	off := uint32(len(p.buf))
	p.buf = append(p.buf, s...)
	p.seen[s] = off
	return off, uint16(len(s))
}

// encodeDocRecord appends one fixed-width record for doc to dst, interning
// its strings through pool.
func encodeDocRecord(dst []byte, doc Document, pool *stringPool) []byte {
	r := make([]byte, docRecordSize)
	urlOff, urlLen := pool.put(doc.URL)
	binary.LittleEndian.PutUint32(r[0:], urlOff)
	binary.LittleEndian.PutUint16(r[4:], urlLen)
	domOff, domLen := pool.put(doc.Domain)
	binary.LittleEndian.PutUint32(r[6:], domOff)
	binary.LittleEndian.PutUint16(r[10:], domLen)
	if len(doc.StructuredKV) > 0 {
		blob, _ := json.Marshal(doc.StructuredKV)
		off, n := pool.put(string(blob))
		binary.LittleEndian.PutUint32(r[12:], off)
		binary.LittleEndian.PutUint16(r[16:], n)
	}
	for f := 0; f < int(NumFields); f++ {
		binary.LittleEndian.PutUint32(r[18+f*4:], doc.FieldLengths[f])
	}
	copy(r[38:40], doc.Language)
	copy(r[40:44], doc.Script)
	binary.LittleEndian.PutUint32(r[44:], math.Float32bits(doc.Signals.Hostrank))
	binary.LittleEndian.PutUint32(r[48:], math.Float32bits(doc.Signals.Spamness))
	binary.LittleEndian.PutUint32(r[52:], math.Float32bits(doc.Signals.Quality))
	binary.LittleEndian.PutUint32(r[56:], math.Float32bits(doc.Signals.URLQuality))
	binary.LittleEndian.PutUint32(r[60:], doc.Signals.InboundLinks)
	binary.LittleEndian.PutUint64(r[64:], uint64(doc.Signals.FreshnessTs))
	binary.LittleEndian.PutUint64(r[72:], doc.Simhash)
	r[80] = byte(doc.Vertical)
	var flags byte
	if doc.Structured || len(doc.StructuredKV) > 0 {
		flags |= flagStructured
	}
	if doc.StopwordsStripped {
		flags |= flagStopwordsStripped
	}
	r[81] = flags
	titleOff, titleLen := pool.put(doc.Title)
	binary.LittleEndian.PutUint32(r[82:], titleOff)
	binary.LittleEndian.PutUint16(r[86:], titleLen)
	return append(dst, r...)
}
