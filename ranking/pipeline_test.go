package ranking

import (
	"testing"

	"github.com/stract/stract/index"
)

// sampleWebsites mirrors the fixture the pipeline's paging behavior is
// verified against: n candidates, doc ids
// 0..n-1, each scored 1/i via a single HostCentrality signal.
func sampleWebsites(n int) []*RankingWebsite {
	out := make([]*RankingWebsite, n)
	for i := 0; i < n; i++ {
		w := NewRankingWebsite(index.DocAddress{SegmentOrd: 0, DocID: uint32(i)}, 0)
		w.SetSignal(SignalHostCentrality, SignalScore{Coefficient: 1, Value: 1.0 / float64(i)})
		w.Score = 1.0 / float64(i)
		out[i] = w
	}
	return out
}

func docIDs(websites []*RankingWebsite) []uint32 {
	ids := make([]uint32, len(websites))
	for i, w := range websites {
		ids[i] = w.Address.DocID
	}
	return ids
}

func TestPipelineCollectorTopNMatchesStageDefault(t *testing.T) {
	query := &SearchQuery{NumResults: 20}
	pipeline := ReRankingForQuery(query, DummyCrossEncoder{}, nil)

	if pipeline.CollectorTopN() != 20 {
		t.Fatalf("expected collector_top_n 20, got %d", pipeline.CollectorTopN())
	}

	sample := sampleWebsites(pipeline.CollectorTopN())
	got := docIDs(pipeline.Apply(sample))

	expected := docIDs(sampleWebsites(100))[:20]
	if len(got) != len(expected) {
		t.Fatalf("expected %d results, got %d", len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("result %d: expected doc %d, got %d", i, expected[i], got[i])
		}
	}
}

func TestPipelineTopNHonoredWhenLargerThanStageDefault(t *testing.T) {
	const numResults = 100
	query := &SearchQuery{NumResults: numResults}
	pipeline := ReRankingForQuery(query, DummyCrossEncoder{}, nil)

	sample := sampleWebsites(pipeline.CollectorTopN())
	got := pipeline.Apply(sample)

	if len(got) != numResults {
		t.Fatalf("expected %d results, got %d", numResults, len(got))
	}
	expected := docIDs(sample)[:numResults]
	if gotIDs := docIDs(got); !equalUint32(gotIDs, expected) {
		t.Fatalf("expected %v, got %v", expected, gotIDs)
	}
}

func TestPipelinePagingNeverRepeatsADocID(t *testing.T) {
	const numResults = 20

	query := &SearchQuery{NumResults: numResults}
	pipeline := ReRankingForQuery(query, DummyCrossEncoder{}, nil)
	sample := sampleWebsites(pipeline.CollectorTopN())
	prev := pipeline.Apply(sample)

	for p := 1; p < 1000; p++ {
		query := &SearchQuery{Page: p, NumResults: numResults}
		pipeline := ReRankingForQuery(query, DummyCrossEncoder{}, nil)

		sample := sampleWebsites(pipeline.CollectorTopN())
		res := pipeline.Apply(sample)

		if len(res) != numResults {
			t.Fatalf("page %d: expected %d results, got %d", p, numResults, len(res))
		}

		seen := make(map[uint32]bool, len(prev))
		for _, w := range prev {
			seen[w.Address.DocID] = true
		}
		for _, w := range res {
			if seen[w.Address.DocID] {
				t.Fatalf("page %d reused doc id %d from the previous page", p, w.Address.DocID)
			}
		}
		prev = res
	}
}

func equalUint32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
