package index

import (
	"fmt"
	"sort"
	"sync"
)

// SegmentID names one segment directory on disk, the same role tantivy's
// SegmentId plays: an opaque handle merges and deletes operate on without
// caring about internal layout.
type SegmentID string

// SegmentMeta is the committed metadata of one segment: its id, the
// number of live (non-deleted) documents, and the set of managed file
// names it owns. Segments live in memory: nothing writes these files,
// and IndexWriter runs no garbage-collection pass over them.
type SegmentMeta struct {
	ID      SegmentID
	NumDocs uint32
	MaxDoc  uint32
	Files   []string
	Deleted []uint32 // doc ids tombstoned since this segment was sealed
}

// Segment is an in-memory stand-in for a sealed, queryable segment: a
// columnar store per field (token positions for postings, raw text for
// field-norm / explain) plus the field-length column BM25 needs. A real
// on-disk format would memory-map these; here insertion order is doc id
// order, matching the writer's append-only doc id assignment.
type Segment struct {
	meta SegmentMeta

	mu        sync.RWMutex
	postings  map[Field]map[string][]Posting // field -> term -> postings, doc-id sorted
	fieldLen  map[Field][]uint32             // field -> per-doc token count
	fieldText map[Field][]string             // field -> per-doc raw text (for Explain/fetch)
	tokenizer Tokenizer
}

// NewSegment creates an empty, writable in-memory segment.
func NewSegment(id SegmentID, tok Tokenizer) *Segment {
	return &Segment{
		meta:      SegmentMeta{ID: id, Files: []string{string(id) + ".postings", string(id) + ".store"}},
		postings:  make(map[Field]map[string][]Posting),
		fieldLen:  make(map[Field][]uint32),
		fieldText: make(map[Field][]string),
		tokenizer: tok,
	}
}

// Meta returns a snapshot of the segment's committed metadata.
func (s *Segment) Meta() SegmentMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.meta
	m.Deleted = append([]uint32(nil), s.meta.Deleted...)
	m.Files = append([]string(nil), s.meta.Files...)
	return m
}

// AddDocument appends doc as the next doc id in this segment, tokenizing
// every indexed field and updating the per-field postings and
// field-length columns. Returns the assigned DocAddress.
func (s *Segment) AddDocument(segmentOrd uint32, doc Document) DocAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	docID := s.meta.MaxDoc
	s.meta.MaxDoc++
	s.meta.NumDocs++

	for field, text := range doc.Fields {
		toks := s.tokenizer.TokenStream(text)

		perTerm := make(map[string][]uint32)
		for _, tok := range toks {
			perTerm[tok.Text] = append(perTerm[tok.Text], tok.Position)
		}

		if s.postings[field] == nil {
			s.postings[field] = make(map[string][]Posting)
		}
		for term, positions := range perTerm {
			s.postings[field][term] = append(s.postings[field][term], Posting{
				DocID:     docID,
				Freq:      uint32(len(positions)),
				Positions: positions,
			})
		}

		s.growColumn(field, docID)
		s.fieldLen[field][docID] = uint32(len(toks))
		s.fieldText[field][docID] = text
	}

	return DocAddress{SegmentOrd: segmentOrd, DocID: docID}
}

// growColumn pads a field's columnar slices up to docID+1 entries so
// fields absent from earlier documents still align by doc id.
func (s *Segment) growColumn(field Field, docID uint32) {
	for uint32(len(s.fieldLen[field])) <= docID {
		s.fieldLen[field] = append(s.fieldLen[field], 0)
	}
	for uint32(len(s.fieldText[field])) <= docID {
		s.fieldText[field] = append(s.fieldText[field], "")
	}
}

// Delete tombstones docID; it remains addressable but FieldSource's
// postings exclude it from search results, and it leaves NumDocs.
func (s *Segment) Delete(docID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.meta.Deleted {
		if d == docID {
			return
		}
	}
	s.meta.Deleted = append(s.meta.Deleted, docID)
	s.meta.NumDocs--
}

// isDeleted reports whether docID is tombstoned. Caller holds s.mu.
func (s *Segment) isDeleted(docID uint32) bool {
	for _, d := range s.meta.Deleted {
		if d == docID {
			return true
		}
	}
	return false
}

// FieldSource returns a SegmentPostingsSource view of field over this
// segment's live documents, for use by PatternWeight.
func (s *Segment) FieldSource(field Field) SegmentPostingsSource {
	return &segmentFieldSource{seg: s, field: field}
}

// Document reconstructs the stored text of every field for docID, for
// fetch/snippet generation at query time.
func (s *Segment) Document(docID uint32) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if docID >= s.meta.MaxDoc || s.isDeleted(docID) {
		return Document{}, fmt.Errorf("segment %s: doc %d not live", s.meta.ID, docID)
	}
	fields := make(map[Field]string)
	for field, texts := range s.fieldText {
		if docID < uint32(len(texts)) && texts[docID] != "" {
			fields[field] = texts[docID]
		}
	}
	return Document{Fields: fields}, nil
}

// segmentFieldSource adapts one (segment, field) pair to
// SegmentPostingsSource, filtering tombstoned docs out of postings
// lists lazily at read time.
type segmentFieldSource struct {
	seg   *Segment
	field Field
}

func (f *segmentFieldSource) Postings(term string) *Postings {
	f.seg.mu.RLock()
	defer f.seg.mu.RUnlock()

	byTerm := f.seg.postings[f.field]
	if byTerm == nil {
		return nil
	}
	raw, ok := byTerm[term]
	if !ok {
		return nil
	}

	live := make([]Posting, 0, len(raw))
	for _, p := range raw {
		if !f.seg.isDeleted(p.DocID) {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool { return live[i].DocID < live[j].DocID })
	return NewPostings(live)
}

func (f *segmentFieldSource) NumTokens(docID uint32) uint64 {
	return uint64(f.FieldLength(docID))
}

func (f *segmentFieldSource) FieldLength(docID uint32) uint32 {
	f.seg.mu.RLock()
	defer f.seg.mu.RUnlock()
	lens := f.seg.fieldLen[f.field]
	if docID >= uint32(len(lens)) {
		return 0
	}
	return lens[docID]
}

func (f *segmentFieldSource) AvgFieldLength() float64 {
	f.seg.mu.RLock()
	defer f.seg.mu.RUnlock()
	lens := f.seg.fieldLen[f.field]
	if len(lens) == 0 {
		return 0
	}
	var sum uint64
	var count uint64
	for docID, l := range lens {
		if f.seg.isDeleted(uint32(docID)) {
			continue
		}
		sum += uint64(l)
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func (f *segmentFieldSource) DocCount() uint64 {
	f.seg.mu.RLock()
	defer f.seg.mu.RUnlock()
	return uint64(f.seg.meta.NumDocs)
}
