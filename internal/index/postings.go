package index

import (
	"encoding/binary"
	"fmt"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

// postings are stored in blocks of up to blockSize entries. The first docId
// of a block is absolute; subsequent docIds are deltas against the previous
// entry. Entries sharing a docId across fields encode a delta of zero. Each
// entry is docIdDelta uvarint, fieldId byte, tf uvarint. One skip record per
// block (absolute first docId, byte offset relative to the start of the
// term's postings) makes AdvanceTo a block jump instead of a linear scan.
const blockSize = 128

// skipEntry mirrors one fixed-width record of the .skp file.
type skipEntry struct {
	firstDoc  DocID
	relOffset uint32
}

const skipEntrySize = 8

// encodePostings serializes a sorted postings list and returns the encoded
// bytes plus the skip table. The list must be ordered by (docId, fieldId).
func encodePostings(list []Posting) ([]byte, []skipEntry) {
	var buf []byte
	skips := make([]skipEntry, 0, (len(list)+blockSize-1)/blockSize)
	var prev DocID
	for i, p := range list {
		if i%blockSize == 0 {
			skips = append(skips, skipEntry{firstDoc: p.Doc, relOffset: uint32(len(buf))})
			buf = binary.AppendUvarint(buf, uint64(p.Doc))
		} else {
			buf = binary.AppendUvarint(buf, uint64(p.Doc-prev))
		}
		buf = append(buf, byte(p.Field))
		buf = binary.AppendUvarint(buf, uint64(p.TF))
		prev = p.Doc
	}
	return buf, skips
}

func encodeSkips(skips []skipEntry) []byte {
	out := make([]byte, 0, len(skips)*skipEntrySize)
	for _, s := range skips {
		out = binary.LittleEndian.AppendUint32(out, uint32(s.firstDoc))
		out = binary.LittleEndian.AppendUint32(out, s.relOffset)
	}
	return out
}

func decodeSkips(raw []byte) ([]skipEntry, error) {
	if len(raw)%skipEntrySize != 0 {
		return nil, apperrors.New(apperrors.ErrIndexCorrupt, "skip table length not a multiple of entry size")
	}
	skips := make([]skipEntry, len(raw)/skipEntrySize)
	for i := range skips {
		off := i * skipEntrySize
		skips[i].firstDoc = DocID(binary.LittleEndian.Uint32(raw[off:]))
		skips[i].relOffset = binary.LittleEndian.Uint32(raw[off+4:])
	}
	return skips, nil
}

// Iterator walks one postings list in (docId, fieldId) order.
type Iterator struct {
	buf   []byte
	skips []skipEntry
	pos   int
	prev  DocID
	cur   Posting
	// index into buf where decoding continues; entries decoded so far in
	// the current block, used to know when a docId is absolute again.
	inBlock int
	err     error
	done    bool
}

// emptyIterator is returned for unknown terms so callers never branch on nil.
func emptyIterator() *Iterator {
	return &Iterator{done: true}
}

func newIterator(buf []byte, skips []skipEntry) *Iterator {
	return &Iterator{buf: buf, skips: skips}
}

// Next advances to the next posting. It returns false at the end of the list
// or on a decoding error (see Err).
func (it *Iterator) Next() bool {
	if it.done || it.pos >= len(it.buf) {
		it.done = true
		return false
	}
	raw, n := binary.Uvarint(it.buf[it.pos:])
	if n <= 0 {
		it.fail("truncated docId varint")
		return false
	}
	it.pos += n
	if it.inBlock == 0 {
		it.cur.Doc = DocID(raw)
	} else {
		it.cur.Doc = it.prev + DocID(raw)
	}
	if it.pos >= len(it.buf) {
		it.fail("truncated posting entry")
		return false
	}
	it.cur.Field = FieldID(it.buf[it.pos])
	it.pos++
	tf, n := binary.Uvarint(it.buf[it.pos:])
	if n <= 0 {
		it.fail("truncated tf varint")
		return false
	}
	it.pos += n
	it.cur.TF = uint32(tf)
	it.prev = it.cur.Doc
	it.inBlock = (it.inBlock + 1) % blockSize
	return true
}

// At returns the current posting. Valid only after Next returned true.
func (it *Iterator) At() Posting { return it.cur }

// AdvanceTo positions the iterator at the first posting with docId >= target
// and returns whether one exists. It uses the skip table to jump whole
// blocks, then scans within the block.
func (it *Iterator) AdvanceTo(target DocID) bool {
	if it.done {
		return false
	}
	// Find the last block whose first docId is <= target; never jump
	// backwards past the current position.
	lo, hi := 0, len(it.skips)
	for lo < hi {
		mid := (lo + hi) / 2
		if it.skips[mid].firstDoc <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo > 0 {
		blk := it.skips[lo-1]
		if int(blk.relOffset) > it.pos {
			it.pos = int(blk.relOffset)
			it.inBlock = 0
			it.prev = 0
		}
	}
	for it.Next() {
		if it.cur.Doc >= target {
			return true
		}
	}
	return false
}

// Err reports a decoding failure encountered during iteration.
func (it *Iterator) Err() error { return it.err }

func (it *Iterator) fail(msg string) {
	it.err = apperrors.New(apperrors.ErrIndexCorrupt, fmt.Sprintf("postings: %s", msg))
	it.done = true
}
