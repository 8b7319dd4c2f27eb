package ranking

import (
	"testing"

	"github.com/stract/stract/index"
)

func hashPtr(v uint64) *uint64 { return &v }

func websiteWithScore(docID uint32, score float64, siteHash *uint64) *RankingWebsite {
	w := NewRankingWebsite(index.DocAddress{SegmentOrd: 0, DocID: docID}, score)
	w.Score = score
	w.SiteHash = siteHash
	return w
}

func TestBucketCollectorKeepsOnlyTopCapacity(t *testing.T) {
	c := NewBucketCollector(2)
	c.Insert(websiteWithScore(1, 1.0, nil))
	c.Insert(websiteWithScore(2, 3.0, nil))
	c.Insert(websiteWithScore(3, 2.0, nil))

	out := c.IntoSortedVec(false)
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", len(out))
	}
	if out[0].Address.DocID != 2 || out[1].Address.DocID != 3 {
		t.Fatalf("expected docs [2,3] by descending score, got [%d,%d]", out[0].Address.DocID, out[1].Address.DocID)
	}
}

func TestBucketCollectorDerankSimilarGroupsBySiteHash(t *testing.T) {
	c := NewBucketCollector(10)
	siteA := hashPtr(1)
	c.Insert(websiteWithScore(1, 3.0, siteA))
	c.Insert(websiteWithScore(2, 2.5, siteA)) // same site as 1, lower score
	c.Insert(websiteWithScore(3, 2.0, nil))

	out := c.IntoSortedVec(true)
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	// doc 1 (best of siteA) and doc 3 (unhashed) keep their rank; doc 2
	// is pushed after every first-occurrence entry.
	if out[len(out)-1].Address.DocID != 2 {
		t.Fatalf("expected duplicate site entry last, got order %v", docIDs(out))
	}
}
