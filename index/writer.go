package index

import (
	"fmt"
	"sort"
	"sync"
)

// ErrConsistency marks an invariant violation surfaced per // Consistency error kind — e.g. operating on a segment id the writer
// doesn't hold.
var ErrConsistency = fmt.Errorf("consistency violation")

// IndexWriter owns the single-writer mutable state of an index: the set
// of sealed segments plus one open segment documents land in between
// commits. PrepareWriter/Insert/Commit/merge*/DeleteSegmentsByID are
// the only ways segment membership changes; every other reader sees a
// point-in-time snapshot of Segments().
type IndexWriter struct {
	mu       sync.Mutex
	tok      Tokenizer
	prepared bool
	nextSeg  uint64
	open     *Segment
	sealed   map[SegmentID]*Segment
	order    []SegmentID // commit order, oldest first
}

// NewIndexWriter creates a writer over an empty index. Callers must call
// PrepareWriter before the first Insert (idempotent, mirrors tantivy's
// IndexWriter::prepare semantics ).
func NewIndexWriter(tok Tokenizer) *IndexWriter {
	return &IndexWriter{
		tok:    tok,
		sealed: make(map[SegmentID]*Segment),
	}
}

// PrepareWriter opens the writer for inserts. Calling it again on an
// already-prepared writer is a no-op; repeated prepare calls are
// idempotent.
func (w *IndexWriter) PrepareWriter() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.prepared {
		return
	}
	w.prepared = true
	w.openSegmentLocked()
}

func (w *IndexWriter) openSegmentLocked() {
	id := SegmentID(fmt.Sprintf("seg-%08d", w.nextSeg))
	w.nextSeg++
	w.open = NewSegment(id, w.tok)
}

// Insert adds doc to the currently open segment, returning its address.
// Insert before PrepareWriter is a Consistency error.
func (w *IndexWriter) Insert(doc Document) (DocAddress, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.prepared {
		return DocAddress{}, fmt.Errorf("insert before prepare_writer: %w", ErrConsistency)
	}
	ord := uint32(len(w.order))
	return w.open.AddDocument(ord, doc), nil
}

// Commit seals the currently open segment (making its documents visible
// to readers) and opens a fresh one for subsequent inserts. Committing
// an empty open segment still produces a segment, matching the "commit
// twice produces two segments" scenario.
func (w *IndexWriter) Commit() (SegmentID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.prepared {
		return "", fmt.Errorf("commit before prepare_writer: %w", ErrConsistency)
	}
	sealedID := w.open.meta.ID
	w.sealed[sealedID] = w.open
	w.order = append(w.order, sealedID)
	w.openSegmentLocked()
	return sealedID, nil
}

// Segments returns the ids of every sealed (committed) segment, in
// commit order.
func (w *IndexWriter) Segments() []SegmentID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]SegmentID(nil), w.order...)
}

// Segment returns the sealed segment with id, or nil.
func (w *IndexWriter) Segment(id SegmentID) *Segment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealed[id]
}

// DeleteSegmentsByID removes ids from the writer's segment set
// entirely — used for the destructive "wipe everything" path
// (delete_segments_by_id(all) -> empty index), distinct from
// tombstoning individual documents inside a live segment.
func (w *IndexWriter) DeleteSegmentsByID(ids []SegmentID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	toDelete := make(map[SegmentID]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
		delete(w.sealed, id)
	}
	kept := w.order[:0:0]
	for _, id := range w.order {
		if !toDelete[id] {
			kept = append(kept, id)
		}
	}
	w.order = kept
}

// StartMergeSegmentsByID begins an offline merge of ids into one new
// segment and returns its id. The merge runs synchronously here (no
// background executor), but the two-phase start/end split is kept so
// callers can treat merge as a long-running operation: sealed segments
// stay queryable throughout, and the new segment only replaces them at
// EndMergeSegmentsByID.
func (w *IndexWriter) StartMergeSegmentsByID(ids []SegmentID) (*mergeHandle, error) {
	w.mu.Lock()
	segs := make([]*Segment, 0, len(ids))
	for _, id := range ids {
		s, ok := w.sealed[id]
		if !ok {
			w.mu.Unlock()
			return nil, fmt.Errorf("merge unknown segment %s: %w", id, ErrConsistency)
		}
		segs = append(segs, s)
	}
	w.mu.Unlock()

	merged := w.mergeSegments(segs)
	return &mergeHandle{sourceIDs: ids, merged: merged}, nil
}

// mergeHandle is the in-flight state between StartMergeSegmentsByID and
// EndMergeSegmentsByID.
type mergeHandle struct {
	sourceIDs []SegmentID
	merged    *Segment
}

// EndMergeSegmentsByID atomically swaps h's source segments out for the
// merged segment it produced, returning the merged segment's id.
func (w *IndexWriter) EndMergeSegmentsByID(h *mergeHandle) SegmentID {
	w.mu.Lock()
	defer w.mu.Unlock()

	toRemove := make(map[SegmentID]bool, len(h.sourceIDs))
	for _, id := range h.sourceIDs {
		toRemove[id] = true
		delete(w.sealed, id)
	}
	kept := w.order[:0:0]
	for _, id := range w.order {
		if !toRemove[id] {
			kept = append(kept, id)
		}
	}
	w.order = append(kept, h.merged.meta.ID)
	w.sealed[h.merged.meta.ID] = h.merged
	return h.merged.meta.ID
}

// mergeSegments unions the live documents of segs into one new segment,
// reassigning doc ids densely and skipping tombstones — offline
// compaction, not a background merge policy decision.
func (w *IndexWriter) mergeSegments(segs []*Segment) *Segment {
	id := SegmentID(fmt.Sprintf("seg-%08d", w.nextSeg))
	w.nextSeg++
	out := NewSegment(id, w.tok)

	for _, seg := range segs {
		seg.mu.RLock()
		maxDoc := seg.meta.MaxDoc
		seg.mu.RUnlock()

		for docID := uint32(0); docID < maxDoc; docID++ {
			doc, err := seg.Document(docID)
			if err != nil {
				continue // tombstoned
			}
			out.AddDocument(0, doc)
		}
	}
	return out
}

// MergeIntoMaxSegments repeatedly merges the smallest pair of segments
// (by live doc count) until at most maxSegments remain, mirroring
// tantivy's merge policy goal without its background scheduling —
// merges run synchronously, smallest-first, which is sufficient for the
// "merge down to N segments" scenario.
func (w *IndexWriter) MergeIntoMaxSegments(maxSegments int) error {
	if maxSegments < 1 {
		return fmt.Errorf("merge_into_max_segments target must be >= 1: %w", ErrConsistency)
	}

	for {
		ids := w.Segments()
		if len(ids) <= maxSegments {
			return nil
		}

		sort.Slice(ids, func(i, j int) bool {
			return w.Segment(ids[i]).meta.NumDocs < w.Segment(ids[j]).meta.NumDocs
		})
		victims := ids[:2]
		if len(ids)-1 < maxSegments {
			// merging any further pair would overshoot below maxSegments;
			// merge exactly as many as needed to land on the target.
			victims = ids[:len(ids)-maxSegments+1]
		}

		h, err := w.StartMergeSegmentsByID(victims)
		if err != nil {
			return err
		}
		w.EndMergeSegmentsByID(h)
	}
}

// Merge unions other's committed segments into w as new sealed
// segments, for the offline "combine two indices" path. Segment ids
// are renumbered in w's own id space to avoid
// collisions; other is left untouched.
func (w *IndexWriter) Merge(other *IndexWriter) {
	other.mu.Lock()
	otherSegs := make([]*Segment, 0, len(other.order))
	for _, id := range other.order {
		otherSegs = append(otherSegs, other.sealed[id])
	}
	other.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, seg := range otherSegs {
		merged := w.mergeSegments([]*Segment{seg})
		w.sealed[merged.meta.ID] = merged
		w.order = append(w.order, merged.meta.ID)
	}
}
