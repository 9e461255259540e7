package index

import (
	"encoding/binary"
	"sort"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

// The term dictionary is a flat, lexicographically ordered table. Layout:
//
//	magic uint32 | version uint32 | termCount uint32
//	per term: termLen uvarint, term bytes, postOff uint64, postLen uint32,
//	          skipOff uint64, skipLen uint32, docFreq uint32
//
// The reader materializes the whole table and binary-searches it; term
// counts here are small enough that a compressed transducer buys nothing.
const (
	termDictMagic   = 0x4f585444 // "OXTD"
	termDictVersion = 1
)

type termEntry struct {
	term    string
	postOff uint64
	postLen uint32
	skipOff uint64
	skipLen uint32
	docFreq uint32
}

type termDict struct {
	entries []termEntry
}

func encodeTermDict(entries []termEntry) []byte {
	buf := make([]byte, 0, len(entries)*32)
	buf = binary.LittleEndian.AppendUint32(buf, termDictMagic)
	buf = binary.LittleEndian.AppendUint32(buf, termDictVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(len(e.term)))
		buf = append(buf, e.term...)
		buf = binary.LittleEndian.AppendUint64(buf, e.postOff)
		buf = binary.LittleEndian.AppendUint32(buf, e.postLen)
		buf = binary.LittleEndian.AppendUint64(buf, e.skipOff)
		buf = binary.LittleEndian.AppendUint32(buf, e.skipLen)
		buf = binary.LittleEndian.AppendUint32(buf, e.docFreq)
	}
	return buf
}

func decodeTermDict(raw []byte) (*termDict, error) {
	if len(raw) < 12 {
		return nil, apperrors.New(apperrors.ErrIndexCorrupt, "term dictionary header truncated")
	}
	if binary.LittleEndian.Uint32(raw) != termDictMagic {
		return nil, apperrors.New(apperrors.ErrIndexCorrupt, "term dictionary bad magic")
	}
	if binary.LittleEndian.Uint32(raw[4:]) != termDictVersion {
		return nil, apperrors.New(apperrors.ErrIndexCorrupt, "term dictionary unsupported version")
	}
	count := binary.LittleEndian.Uint32(raw[8:])
	pos := 12
	entries := make([]termEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		tlen, n := binary.Uvarint(raw[pos:])
		if n <= 0 || pos+n+int(tlen)+28 > len(raw) {
			return nil, apperrors.New(apperrors.ErrIndexCorrupt, "term dictionary entry truncated")
		}
		pos += n
		term := string(raw[pos : pos+int(tlen)])
		pos += int(tlen)
		e := termEntry{
			term:    term,
			postOff: binary.LittleEndian.Uint64(raw[pos:]),
			postLen: binary.LittleEndian.Uint32(raw[pos+8:]),
			skipOff: binary.LittleEndian.Uint64(raw[pos+12:]),
			skipLen: binary.LittleEndian.Uint32(raw[pos+20:]),
			docFreq: binary.LittleEndian.Uint32(raw[pos+24:]),
		}
		pos += 28
		entries = append(entries, e)
	}
	return &termDict{entries: entries}, nil
}

// lookup returns the entry for term, or nil if absent.
func (d *termDict) lookup(term string) *termEntry {
	i := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].term >= term
	})
	if i < len(d.entries) && d.entries[i].term == term {
		return &d.entries[i]
	}
	return nil
}

func (d *termDict) size() int { return len(d.entries) }
