package index

import "math"

// Terminal is the sentinel doc id returned by Postings.Advance/Seek once
// exhausted — tantivy's TERMINATED, carried over verbatim since nothing
// in the core ever needs a valid doc id at u32 max.
const Terminal uint32 = math.MaxUint32

// WildcardSlop implements "any distance" between two pattern terms: a
// Wildcard pattern part sets slop to this before the next Raw step.
const WildcardSlop uint32 = math.MaxUint32

// Posting is one document's occurrence of a term: its frequency in the
// field and, when positions were indexed, the sorted token positions.
type Posting struct {
	DocID     uint32
	Freq      uint32
	Positions []uint32
}

// Postings iterates an increasing sequence of doc ids for one term,
// exposing per-doc frequency and positions. Segment field sources build
// one from the segment's in-memory posting list; tests build one
// directly from a slice.
type Postings struct {
	list []Posting
	pos  int
}

// NewPostings wraps an already-sorted-by-DocID slice of postings.
func NewPostings(list []Posting) *Postings {
	return &Postings{list: list, pos: -1}
}

// Doc returns the current doc id, or Terminal before the first Advance
// or past the end.
func (p *Postings) Doc() uint32 {
	if p.pos < 0 || p.pos >= len(p.list) {
		return Terminal
	}
	return p.list[p.pos].DocID
}

// Advance moves to the next doc id and returns it, or Terminal.
func (p *Postings) Advance() uint32 {
	p.pos++
	return p.Doc()
}

// Seek advances to the first doc id >= target, or Terminal. target must
// be >= the current doc (tantivy's DocSet::seek contract).
func (p *Postings) Seek(target uint32) uint32 {
	if p.pos < 0 {
		p.pos = 0
	}
	for p.pos < len(p.list) && p.list[p.pos].DocID < target {
		p.pos++
	}
	return p.Doc()
}

// Freq returns the term frequency of the current doc.
func (p *Postings) Freq() uint32 {
	if p.pos < 0 || p.pos >= len(p.list) {
		return 0
	}
	return p.list[p.pos].Freq
}

// Positions returns the current doc's sorted token positions.
func (p *Postings) Positions() []uint32 {
	if p.pos < 0 || p.pos >= len(p.list) {
		return nil
	}
	return p.list[p.pos].Positions
}

// IntersectWithSlop walks two sorted position arrays and returns the
// subsequence of right for which some l in left satisfies
// max(0, r-slop) <= l <= r. Order is preserved; left is never
// materialized in the output, only r is emitted.
func IntersectWithSlop(left, right []uint32, slop uint32) []uint32 {
	out := make([]uint32, 0, len(right))

	li, ri := 0, 0
	for li < len(left) && ri < len(right) {
		leftVal := left[li]
		rightVal := right[ri]

		var rightSlop uint32
		if rightVal >= slop {
			rightSlop = rightVal - slop
		}

		switch {
		case leftVal < rightSlop:
			li++
		case rightSlop <= leftVal && leftVal <= rightVal:
			// widen left as long as the next candidate is still in window;
			// the largest qualifying l is the logical match, never emitted.
			for li+1 < len(left) {
				next := left[li+1]
				if next > rightVal {
					break
				}
				li++
			}
			out = append(out, rightVal)
			ri++
		default: // leftVal > rightVal
			ri++
		}
	}

	return out
}
