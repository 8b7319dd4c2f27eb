package index

import "testing"

// fakeSource is a minimal SegmentPostingsSource backed by in-memory maps,
// enough to drive PatternScorer in tests without a real segment.
type fakeSource struct {
	postings  map[string][]Posting
	numTokens map[uint32]uint64
	fieldLen  map[uint32]uint32
	docCount  uint64
	avgLen    float64
}

func (f *fakeSource) Postings(term string) *Postings {
	p, ok := f.postings[term]
	if !ok {
		return nil
	}
	return NewPostings(p)
}

func (f *fakeSource) NumTokens(docID uint32) uint64   { return f.numTokens[docID] }
func (f *fakeSource) FieldLength(docID uint32) uint32 { return f.fieldLen[docID] }
func (f *fakeSource) AvgFieldLength() float64         { return f.avgLen }
func (f *fakeSource) DocCount() uint64                { return f.docCount }

type fakeTokenizer struct{}

func (fakeTokenizer) TokenStream(text string) []Token {
	// whitespace split is enough for these tests
	var toks []Token
	word := ""
	pos := uint32(0)
	flush := func() {
		if word != "" {
			toks = append(toks, Token{Text: word, Position: pos})
			pos++
			word = ""
		}
	}
	for _, r := range text {
		if r == ' ' {
			flush()
			continue
		}
		word += string(r)
	}
	flush()
	return toks
}

func TestPatternRejectsDisallowedField(t *testing.T) {
	parts := []PatternPart{Raw("hello")}
	if _, err := NewPattern(parts, Field(99), fakeTokenizer{}); err == nil {
		t.Fatal("expected error for disallowed field")
	}
}

func TestPatternEmptyMatchesNothing(t *testing.T) {
	src := &fakeSource{
		postings:  map[string][]Posting{},
		numTokens: map[uint32]uint64{0: 3},
		fieldLen:  map[uint32]uint32{0: 3},
		docCount:  1,
		avgLen:    3,
	}

	pattern, err := NewPattern([]PatternPart{Wildcard()}, FieldTitle, fakeTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	w := NewPatternWeight(pattern, src, 0)
	if s := w.Scorer(src, 1.0); s != nil {
		t.Fatal("all-wildcard pattern should produce no scorer (no raw terms)")
	}
}

func TestPatternAnchorFirstRejectsWrongPosition(t *testing.T) {
	// doc 0: "a test" -> "test" at position 1, not 0: Anchor(0) rejects.
	src := &fakeSource{
		postings: map[string][]Posting{
			"test": {{DocID: 0, Freq: 1, Positions: []uint32{1}}},
		},
		numTokens: map[uint32]uint64{0: 2},
		fieldLen:  map[uint32]uint32{0: 2},
		docCount:  1,
		avgLen:    2,
	}

	pattern, err := NewPattern([]PatternPart{Anchor(), Raw("test")}, FieldTitle, fakeTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	w := NewPatternWeight(pattern, src, 1)
	s := w.Scorer(src, 1.0)
	if s == nil {
		t.Fatal("expected a scorer")
	}
	if doc := s.Advance(); doc != Terminal {
		t.Fatalf("expected no match, got doc %d", doc)
	}
}

func TestPatternAnchorLastAcceptsSingleTokenDoc(t *testing.T) {
	// doc 0: "test", num_tokens=1, token at position 0 == num_tokens-1.
	src := &fakeSource{
		postings: map[string][]Posting{
			"test": {{DocID: 0, Freq: 1, Positions: []uint32{0}}},
		},
		numTokens: map[uint32]uint64{0: 1},
		fieldLen:  map[uint32]uint32{0: 1},
		docCount:  1,
		avgLen:    1,
	}

	pattern, err := NewPattern([]PatternPart{Raw("test"), Anchor()}, FieldTitle, fakeTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	w := NewPatternWeight(pattern, src, 1)
	s := w.Scorer(src, 1.0)
	if s == nil {
		t.Fatal("expected a scorer")
	}
	doc := s.Advance()
	if doc != 0 {
		t.Fatalf("expected match on doc 0, got %d", doc)
	}
	if s.Score() <= 0 {
		t.Fatalf("expected positive score, got %v", s.Score())
	}
}

func TestPatternTwoTermSlopMatch(t *testing.T) {
	// "quick brown fox": quick@0 brown@1 fox@2 in doc 0; pattern "quick fox"
	// with a wildcard between should match with slop=MAX then fox found.
	src := &fakeSource{
		postings: map[string][]Posting{
			"quick": {{DocID: 0, Freq: 1, Positions: []uint32{0}}},
			"fox":   {{DocID: 0, Freq: 1, Positions: []uint32{2}}},
		},
		numTokens: map[uint32]uint64{0: 3},
		fieldLen:  map[uint32]uint32{0: 3},
		docCount:  1,
		avgLen:    3,
	}

	pattern, err := NewPattern([]PatternPart{Raw("quick"), Wildcard(), Raw("fox")}, FieldTitle, fakeTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	w := NewPatternWeight(pattern, src, 1)
	s := w.Scorer(src, 1.0)
	if doc := s.Advance(); doc != 0 {
		t.Fatalf("expected match on doc 0, got %d", doc)
	}
}
