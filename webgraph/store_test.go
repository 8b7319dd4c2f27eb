package webgraph

import "testing"

func TestHostBacklinksOrderedByCombinedCentrality(t *testing.T) {
	dir := t.TempDir()

	w, err := NewEdgeStoreWriter(nil, dir, CompressionNone, Reverse)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	a := NewNode("https://a.example.com")
	b := NewNode("https://b.example.com")
	c := NewNode("https://c.example.com")
	d := NewNode("https://d.example.com")

	const aCentrality, bCentrality, cCentrality, dCentrality = 1.0, 2.0, 3.0, 4.0

	edges := []WriterEdge{
		{From: b, To: a, Label: "1", CombinedCentrality: aCentrality + bCentrality},
		{From: c, To: a, Label: "2", CombinedCentrality: aCentrality + cCentrality},
		{From: d, To: a, Label: "3", CombinedCentrality: aCentrality + dCentrality},
	}
	for _, e := range edges {
		if err := w.Put(e); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	store, err := w.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	query := HostBacklinksQuery{Node: a.ID}
	fruit, err := store.Search(query)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := store.Retrieve(query, fruit)

	if len(got) != 3 {
		t.Fatalf("expected 3 backlinks, got %d", len(got))
	}
	if got[0].From != d.ID || got[1].From != c.ID || got[2].From != b.ID {
		t.Fatalf("expected order D, C, B by descending centrality, got %+v", got)
	}
}

func TestEdgeStoreWriterSpillsAndMerges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewEdgeStoreWriter(nil, dir, CompressionZstd, Forward)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	home := NewNode("https://home.example.com")
	for i := 0; i < 5; i++ {
		dest := NewNode(nodeName(i))
		if err := w.Put(WriterEdge{From: home, To: dest, Label: "link"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if i == 2 {
			// force a spill so Finalize merges a spill file with the buffer
			if err := w.spill(); err != nil {
				t.Fatalf("spill: %v", err)
			}
		}
	}

	store, err := w.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	fruit, err := store.Search(OutgoingQuery{Node: home.ID})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(fruit) != 5 {
		t.Fatalf("expected 5 outgoing edges, got %d", len(fruit))
	}
}

func TestPrefixTrieFindsHostsByPrefix(t *testing.T) {
	dir := t.TempDir()
	w, err := NewEdgeStoreWriter(nil, dir, CompressionNone, Reverse)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	alpha := NewNode("alpha.example.com")
	beta := NewNode("beta.example.com")
	linker := NewNode("linker.example.com")

	if err := w.Put(WriterEdge{From: linker, To: alpha, Label: "l1"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Put(WriterEdge{From: linker, To: beta, Label: "l2"}); err != nil {
		t.Fatal(err)
	}

	store, err := w.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	ids := store.WithHostPrefix("alpha")
	if len(ids) != 1 || ids[0] != alpha.ID {
		t.Fatalf("expected prefix lookup to find alpha, got %v", ids)
	}
}

func nodeName(i int) string {
	names := []string{
		"https://one.example.com",
		"https://two.example.com",
		"https://three.example.com",
		"https://four.example.com",
		"https://five.example.com",
	}
	return names[i]
}
