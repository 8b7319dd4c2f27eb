package index

import "sort"

// Searcher is a read-only, point-in-time view over a fixed set of
// segments — callers obtain one from an IndexWriter snapshot
// (Segments()/Segment()) rather than racing a concurrent writer, the
// same separation tantivy draws between IndexWriter and Searcher.
type Searcher struct {
	segments []*Segment
}

// NewSearcher builds a Searcher over segs in the given order; the order
// becomes each hit's SegmentOrd.
func NewSearcher(segs []*Segment) *Searcher {
	return &Searcher{segments: append([]*Segment(nil), segs...)}
}

// Hit is one scored match from Search.
type Hit struct {
	Address DocAddress
	Score   float64
}

// Search runs pattern against field across every segment, returning
// hits sorted by descending score. matchingDocCount is passed straight
// through to NewPatternWeight per segment.
func (s *Searcher) Search(pattern *Pattern, matchingDocCount uint64) []Hit {
	var hits []Hit

	for ord, seg := range s.segments {
		src := seg.FieldSource(pattern.Field)
		weight := NewPatternWeight(pattern, src, matchingDocCount)
		scorer := weight.Scorer(src, 1.0)
		if scorer == nil {
			continue
		}
		for doc := scorer.Advance(); doc != Terminal; doc = scorer.Advance() {
			hits = append(hits, Hit{
				Address: DocAddress{SegmentOrd: uint32(ord), DocID: doc},
				Score:   scorer.Score(),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}

// Doc fetches the stored document at addr.
func (s *Searcher) Doc(addr DocAddress) (Document, error) {
	seg := s.segments[addr.SegmentOrd]
	return seg.Document(addr.DocID)
}

// NumDocs returns the total live document count across every segment in
// this snapshot.
func (s *Searcher) NumDocs() uint64 {
	var total uint64
	for _, seg := range s.segments {
		total += uint64(seg.Meta().NumDocs)
	}
	return total
}
