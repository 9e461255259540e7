// Package index implements the on-disk inverted index the server reads: an
// epoch directory holding a lexical field-weighted index and a character
// n-gram index over a shared document store. Epochs are immutable once
// published; readers pin one epoch for the duration of a query and a new
// epoch replaces the old atomically through the current pointer file.
package index

// DocID is a dense, stable, opaque document id within one index epoch.
// Assignments are monotonic and never reused across the life of an epoch.
type DocID uint32

// FieldID identifies an indexed document field.
type FieldID uint8

const (
	FieldTitle FieldID = iota
	FieldH1H3
	FieldAnchors
	FieldURL
	FieldBody
	NumFields
)

var fieldNames = [NumFields]string{"title", "h1h3", "anchors", "url", "body"}

func (f FieldID) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "unknown"
}

// DefaultFieldWeights are the BM25 field multipliers.
var DefaultFieldWeights = [NumFields]float64{
	FieldTitle:   5,
	FieldH1H3:    3,
	FieldAnchors: 3,
	FieldURL:     2,
	FieldBody:    1,
}

// Vertical is the document vertical tag.
type Vertical uint8

const (
	VerticalGeneric Vertical = iota
	VerticalBook
	VerticalProduct
	VerticalArticle
	VerticalDownload
)

var verticalNames = []string{"Generic", "Book", "Product", "Article", "Download"}

func (v Vertical) String() string {
	if int(v) < len(verticalNames) {
		return verticalNames[v]
	}
	return "Generic"
}

// ParseVertical maps a name to its Vertical, defaulting to Generic.
func ParseVertical(s string) Vertical {
	for i, name := range verticalNames {
		if name == s {
			return Vertical(i)
		}
	}
	return VerticalGeneric
}

// Signals are the precomputed per-document ranking signals. All floating
// signals live in [0,1]; absent signals read as 0, never NaN.
type Signals struct {
	Hostrank     float32
	Spamness     float32
	Quality      float32
	URLQuality   float32
	InboundLinks uint32
	FreshnessTs  int64
}

// Doc flags stored in docs.bin.
const (
	flagStructured        = 1 << 0
	flagStopwordsStripped = 1 << 1
)

// Document is the immutable serve-time view of one indexed document.
type Document struct {
	ID                DocID
	URL               string
	Domain            string
	Title             string
	Language          string
	Script            string
	FieldLengths      [NumFields]uint32
	Signals           Signals
	Vertical          Vertical
	Structured        bool
	StructuredKV      map[string]string
	StopwordsStripped bool
	Simhash           uint64
}

// Posting is one (docId, fieldId, tf) record of a postings list.
type Posting struct {
	Doc   DocID
	Field FieldID
	TF    uint32
}
