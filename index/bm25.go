package index

import "math"

// BM25 constants as used throughout the core's scoring (k1, b — the
// standard Robertson/Sparck-Jones tuning, not spec-mandated but the
// conventional default every BM25 implementation in the ecosystem ships).
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Weight scores a phrase match given the field's average document
// length (in tokens) and a boost. It operates on a caller-supplied
// phrase_count and field-norm rather than indexing terms itself, since
// the pattern query (C2) computes phrase_count as the result of a
// positional intersection, not a raw term frequency.
type BM25Weight struct {
	AvgFieldLength float64
	IDF            float64
	Boost          float64
}

// NewBM25Weight computes an IDF-style weight over docCount documents,
// matchingDocCount of which contain every term in the query's term list
// (tantivy's Bm25Weight::for_terms, collapsed to a single combined IDF
// since the pattern query treats its whole term list as one phrase).
func NewBM25Weight(docCount, matchingDocCount uint64, avgFieldLength float64) BM25Weight {
	idf := 1.0
	if matchingDocCount > 0 && docCount > matchingDocCount {
		x := float64(docCount-matchingDocCount) + 0.5
		y := float64(matchingDocCount) + 0.5
		idf = math.Log(1.0 + x/y)
	}
	return BM25Weight{AvgFieldLength: avgFieldLength, IDF: idf, Boost: 1.0}
}

// BoostBy returns a copy of w scaled by boost, mirroring
// Bm25Weight::boost_by — used by the pattern query's explain path which
// always re-scores at boost=1.
func (w BM25Weight) BoostBy(boost float64) BM25Weight {
	w.Boost *= boost
	return w
}

// Score computes the BM25 contribution of phraseCount occurrences in a
// document whose field has fieldLength tokens.
func (w BM25Weight) Score(fieldLength uint32, phraseCount uint32) float64 {
	if phraseCount == 0 {
		return 0
	}
	tf := float64(phraseCount)
	norm := bm25K1 * (1 - bm25B + bm25B*float64(fieldLength)/maxf(w.AvgFieldLength, 1))
	return w.Boost * w.IDF * (tf * (bm25K1 + 1)) / (tf + norm)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Explanation is the human-readable breakdown of a BM25 score, returned
// by the pattern query's explain path.
type Explanation struct {
	Value       float64
	Description string
	PhraseCount uint32
	IDF         float64
	Boost       float64
}

func (w BM25Weight) Explain(fieldLength uint32, phraseCount uint32) Explanation {
	return Explanation{
		Value:       w.Score(fieldLength, phraseCount),
		Description: "BM25 phrase score",
		PhraseCount: phraseCount,
		IDF:         w.IDF,
		Boost:       w.Boost,
	}
}
