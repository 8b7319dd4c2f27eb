package index

import "testing"

func mustInsert(t *testing.T, w *IndexWriter, title string) {
	t.Helper()
	if _, err := w.Insert(Document{Fields: map[Field]string{FieldTitle: title}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestWriterCommitTwiceProducesTwoSegments(t *testing.T) {
	w := NewIndexWriter(fakeTokenizer{})
	w.PrepareWriter()

	mustInsert(t, w, "first batch")
	if _, err := w.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	mustInsert(t, w, "second batch")
	if _, err := w.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	segs := w.Segments()
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments after 2 commits, got %d", len(segs))
	}
}

func TestWriterDeleteSegmentsByIDWipesIndex(t *testing.T) {
	w := NewIndexWriter(fakeTokenizer{})
	w.PrepareWriter()
	mustInsert(t, w, "a")
	w.Commit()
	mustInsert(t, w, "b")
	w.Commit()

	all := w.Segments()
	if len(all) != 2 {
		t.Fatalf("setup: expected 2 segments, got %d", len(all))
	}

	w.DeleteSegmentsByID(all)
	if got := w.Segments(); len(got) != 0 {
		t.Fatalf("expected empty index after delete_segments_by_id(all), got %v", got)
	}
}

func TestWriterMergeIntoMaxSegmentsOne(t *testing.T) {
	w := NewIndexWriter(fakeTokenizer{})
	w.PrepareWriter()

	for i := 0; i < 3; i++ {
		mustInsert(t, w, "doc")
		if _, err := w.Commit(); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if len(w.Segments()) != 3 {
		t.Fatalf("setup: expected 3 segments")
	}

	if err := w.MergeIntoMaxSegments(1); err != nil {
		t.Fatalf("merge_into_max_segments: %v", err)
	}

	segs := w.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment after merge_into_max_segments(1), got %d", len(segs))
	}
	if got := w.Segment(segs[0]).Meta().NumDocs; got != 3 {
		t.Fatalf("expected 3 live docs in merged segment, got %d", got)
	}
}

func TestWriterInsertBeforePrepareFails(t *testing.T) {
	w := NewIndexWriter(fakeTokenizer{})
	if _, err := w.Insert(Document{Fields: map[Field]string{FieldTitle: "x"}}); err == nil {
		t.Fatal("expected error inserting before prepare_writer")
	}
}

func TestWriterPrepareIsIdempotent(t *testing.T) {
	w := NewIndexWriter(fakeTokenizer{})
	w.PrepareWriter()
	w.PrepareWriter()
	mustInsert(t, w, "x")
	if _, err := w.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(w.Segments()) != 1 {
		t.Fatal("expected prepare_writer to be idempotent")
	}
}

func TestSearcherFindsCommittedDocs(t *testing.T) {
	w := NewIndexWriter(fakeTokenizer{})
	w.PrepareWriter()
	mustInsert(t, w, "the quick brown fox")
	mustInsert(t, w, "a slow turtle")
	if _, err := w.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var segs []*Segment
	for _, id := range w.Segments() {
		segs = append(segs, w.Segment(id))
	}
	searcher := NewSearcher(segs)

	pattern, err := NewPattern([]PatternPart{Raw("fox")}, FieldTitle, fakeTokenizer{})
	if err != nil {
		t.Fatalf("new pattern: %v", err)
	}
	hits := searcher.Search(pattern, 1)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for 'fox', got %d", len(hits))
	}

	doc, err := searcher.Doc(hits[0].Address)
	if err != nil {
		t.Fatalf("fetch doc: %v", err)
	}
	if doc.Fields[FieldTitle] != "the quick brown fox" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}
