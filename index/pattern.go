package index

import (
	"errors"
	"fmt"
)

// PartKind discriminates a PatternPart.
type PartKind uint8

const (
	PartRaw PartKind = iota
	PartWildcard
	PartAnchor
)

// PatternPart is one element of an ordered pattern. Raw
// carries literal text to tokenize into the term list; Wildcard permits
// an unbounded gap before the next Raw term; Anchor at index 0 or at the
// last index pins the matched token to the start/end of the document.
type PatternPart struct {
	Kind PartKind
	Text string // only meaningful when Kind == PartRaw
}

func Raw(text string) PatternPart { return PatternPart{Kind: PartRaw, Text: text} }
func Wildcard() PatternPart       { return PatternPart{Kind: PartWildcard} }
func Anchor() PatternPart         { return PatternPart{Kind: PartAnchor} }

// patternAllowedFields is the field whitelist — the
// only fields with a paired columnar "num tokens" column the anchor
// check can read.
var patternAllowedFields = map[Field]bool{
	FieldTitle:                  true,
	FieldCleanBody:              true,
	FieldUrl:                    true,
	FieldDomain:                 true,
	FieldSite:                   true,
	FieldDescription:            true,
	FieldFlattenedSchemaOrgJson: true,
}

// ErrInvalidArgument marks a Configuration-kind error :
// non-retriable, surfaced to the caller as-is.
var ErrInvalidArgument = errors.New("invalid argument")

// Tokenizer is the external collaborator that turns field
// text into a position-bearing token stream at index time and at query
// compile time (so the pattern's Raw text uses the same tokenization the
// index applied).
type Tokenizer interface {
	TokenStream(text string) []Token
}

// Token is one tokenized unit with its position in the stream.
type Token struct {
	Text     string
	Position uint32
}

// Pattern is a compiled pattern query: the ordered parts (each Raw part
// holding exactly one token), the flattened term list extracted from the
// Raw parts (for BM25 weighting), and the field it runs against.
type Pattern struct {
	Parts []PatternPart
	Field Field
	Terms []string
}

// NewPattern compiles parts against field, validating the field
// whitelist and flattening Raw text into Terms via tok. A Raw part whose
// text tokenizes into several tokens becomes one Raw part per token.
func NewPattern(parts []PatternPart, field Field, tok Tokenizer) (*Pattern, error) {
	if !patternAllowedFields[field] {
		return nil, fmt.Errorf("pattern query field %s: %w", field, ErrInvalidArgument)
	}

	var terms []string
	compiled := make([]PatternPart, 0, len(parts))
	for _, part := range parts {
		if part.Kind != PartRaw {
			compiled = append(compiled, part)
			continue
		}
		for _, tok := range tok.TokenStream(part.Text) {
			terms = append(terms, tok.Text)
			compiled = append(compiled, Raw(tok.Text))
		}
	}

	return &Pattern{Parts: compiled, Field: field, Terms: terms}, nil
}

// SegmentPostingsSource resolves a term to its postings and a document's
// columnar "num tokens" value within one segment — the minimal surface
// PatternWeight needs from a segment reader.
type SegmentPostingsSource interface {
	Postings(term string) *Postings
	NumTokens(docID uint32) uint64
	FieldLength(docID uint32) uint32
	AvgFieldLength() float64
	DocCount() uint64
}

// PatternWeight is the compiled, boost-applied form of a Pattern ready to
// build a PatternScorer per segment (tantivy's Query/Weight split).
type PatternWeight struct {
	pattern *Pattern
	bm25    BM25Weight
}

// NewPatternWeight builds a weight over src, whose DocCount/AvgFieldLength
// feed the BM25 IDF computation. matchingDocCount approximates the number
// of documents containing every term in the pattern; callers without an
// exact count may pass DocCount, which leaves the idf at its default 1.0.
func NewPatternWeight(pattern *Pattern, src SegmentPostingsSource, matchingDocCount uint64) *PatternWeight {
	bm25 := NewBM25Weight(src.DocCount(), matchingDocCount, src.AvgFieldLength())
	return &PatternWeight{pattern: pattern, bm25: bm25}
}

// Scorer builds a PatternScorer over src for the given boost, or nil if
// the pattern has no raw terms (empty/all-wildcard patterns match
// nothing ).
func (w *PatternWeight) Scorer(src SegmentPostingsSource, boost float64) *PatternScorer {
	if len(w.pattern.Terms) == 0 {
		return nil
	}

	postingsList := make([]*Postings, len(w.pattern.Terms))
	for i, term := range w.pattern.Terms {
		postingsList[i] = src.Postings(term)
		if postingsList[i] == nil {
			return nil
		}
	}

	return &PatternScorer{
		pattern:  w.pattern,
		bm25:     w.bm25.BoostBy(boost),
		postings: postingsList,
		src:      src,
	}
}

// PatternScorer is a DocSet-like cursor producing the intersection of
// all term postings, filtered by the ordered-walk/anchor rules, with a
// phrase_count computed per matching doc.
type PatternScorer struct {
	pattern     *Pattern
	bm25        BM25Weight
	postings    []*Postings
	src         SegmentPostingsSource
	doc         uint32
	phraseCount uint32
}

// Advance scans forward to the next doc matching the full pattern, or
// Terminal.
func (s *PatternScorer) Advance() uint32 {
	for {
		doc := s.advanceIntersection()
		if doc == Terminal {
			s.doc = Terminal
			return Terminal
		}
		if s.patternMatch(doc) {
			s.doc = doc
			return doc
		}
	}
}

// Seek moves to the first doc >= target matching the full pattern, or
// Terminal.
func (s *PatternScorer) Seek(target uint32) uint32 {
	doc := s.seekIntersection(target)
	if doc == Terminal {
		s.doc = Terminal
		return Terminal
	}
	if s.patternMatch(doc) {
		s.doc = doc
		return doc
	}
	return s.Advance()
}

func (s *PatternScorer) Doc() uint32 { return s.doc }

// Score returns the BM25 score of the current doc's phrase_count.
func (s *PatternScorer) Score() float64 {
	fieldLen := s.src.FieldLength(s.doc)
	return s.bm25.Score(fieldLen, s.phraseCount)
}

// advanceIntersection walks every term's postings to the smallest
// doc id present in all of them ("plain AND" of the term postings,
// the coarse candidate set the pattern walk then filters).
func (s *PatternScorer) advanceIntersection() uint32 {
	cur := s.postings[0].Advance()
	return s.intersectFrom(cur)
}

func (s *PatternScorer) seekIntersection(target uint32) uint32 {
	cur := s.postings[0].Seek(target)
	return s.intersectFrom(cur)
}

func (s *PatternScorer) intersectFrom(cur uint32) uint32 {
	for cur != Terminal {
		agree := true
		for i := 1; i < len(s.postings); i++ {
			d := s.postings[i].Seek(cur)
			if d != cur {
				cur = d
				agree = false
				break
			}
		}
		if agree {
			// re-sync term 0 in case other terms pushed cur forward
			if s.postings[0].Doc() != cur {
				cur = s.postings[0].Seek(cur)
				continue
			}
			return cur
		}
		if cur == Terminal {
			return Terminal
		}
		cur = s.postings[0].Seek(cur)
	}
	return Terminal
}

// patternMatch runs the ordered walk for doc and sets
// phraseCount. Returns whether the doc survives.
func (s *PatternScorer) patternMatch(doc uint32) bool {
	s.phraseCount = uint32(s.performMatch(doc))
	return s.phraseCount > 0
}

func (s *PatternScorer) performMatch(doc uint32) int {
	var left []uint32
	seeded := false
	termIdx := 0
	var slop uint32 = 1
	numTokens := s.src.NumTokens(doc)

	// termIdx walks s.postings (one entry per Raw part, in Raw-encounter
	// order) independently of i, which walks every Parts element — a
	// leading Anchor or Wildcard must not shift the two out of step.
	for i := 0; i < len(s.pattern.Parts); i++ {
		part := s.pattern.Parts[i]
		switch part.Kind {
		case PartRaw:
			if !seeded {
				left = s.postings[termIdx].Positions()
				termIdx++
				seeded = true
				continue
			}
			right := s.postings[termIdx].Positions()
			left = IntersectWithSlop(left, right, slop)
			slop = 1
			if len(left) == 0 {
				return 0
			}
			termIdx++
		case PartWildcard:
			slop = WildcardSlop
		case PartAnchor:
			if i == len(s.pattern.Parts)-1 {
				right := s.postings[len(s.postings)-1].Positions()
				if len(right) > 0 && uint64(right[len(right)-1]) != numTokens-1 {
					return 0
				}
			}
		}
	}

	if len(s.pattern.Parts) > 0 && s.pattern.Parts[0].Kind == PartAnchor {
		if len(left) > 0 && left[0] != 0 {
			return 0
		}
	}

	return len(left)
}

// Explain re-runs the scorer at boost=1, seeking to doc, and returns a
// BM25 explanation or ErrInvalidArgument if doc isn't a match.
func (w *PatternWeight) Explain(src SegmentPostingsSource, doc uint32) (Explanation, error) {
	scorer := w.Scorer(src, 1.0)
	if scorer == nil {
		return Explanation{}, fmt.Errorf("no candidate for doc %d: %w", doc, ErrInvalidArgument)
	}
	got := scorer.Seek(doc)
	if got != doc {
		return Explanation{}, fmt.Errorf("doc %d not a match: %w", doc, ErrInvalidArgument)
	}
	fieldLen := src.FieldLength(doc)
	return scorer.bm25.Explain(fieldLen, scorer.phraseCount), nil
}
