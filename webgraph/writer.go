package webgraph

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// MaxBatchSize is the in-memory buffer size at which EdgeStoreWriter
// spills to a numbered file under path/writer/.
const MaxBatchSize = 3_000_000

// flushEveryInserts bounds the final writer's buffered ranges/prefixes/
// labels/nodes between disk flushes.
const flushEveryInserts = 1_000_000

// WriterEdge is the writer's ingest shape: both endpoints carry their
// canonical name (for the prefix trie) as well as their hashed id.
type WriterEdge struct {
	From, To           Node
	Label              string
	RelFlags           uint64
	CombinedCentrality float64
}

func (e WriterEdge) toEdge() Edge {
	return Edge{From: e.From.ID, To: e.To.ID, Label: e.Label, RelFlags: e.RelFlags, CombinedCentrality: e.CombinedCentrality}
}

type sortableEdge struct {
	SortNode      NodeID
	SecondaryNode NodeID
	Edge          WriterEdge
}

func lessSortable(a, b sortableEdge) bool {
	if a.SortNode != b.SortNode {
		return a.SortNode < b.SortNode
	}
	return a.SecondaryNode < b.SecondaryNode
}

// EdgeStoreWriter externalizes the sort needed to build an EdgeStore
// from more edges than fit in memory. Buffer inserts with
// Put; Finalize drains it into a queryable EdgeStore and removes the
// scratch directory.
type EdgeStoreWriter struct {
	logger      *zap.Logger
	path        string
	polarity    Polarity
	compression Compression

	buf        []sortableEdge
	spillFiles []string
}

// NewEdgeStoreWriter opens a writer rooted at path, creating the
// transient path/writer/ scratch directory.
func NewEdgeStoreWriter(logger *zap.Logger, path string, compression Compression, polarity Polarity) (*EdgeStoreWriter, error) {
	if err := os.MkdirAll(filepath.Join(path, "writer"), 0o755); err != nil {
		return nil, fmt.Errorf("create writer scratch dir: %w", err)
	}
	return &EdgeStoreWriter{logger: logger, path: path, polarity: polarity, compression: compression}, nil
}

// Put buffers edge, spilling to disk once the buffer reaches
// MaxBatchSize.
func (w *EdgeStoreWriter) Put(edge WriterEdge) error {
	w.buf = append(w.buf, sortableEdge{
		SortNode:      w.polarity.sortNode(edge.toEdge()),
		SecondaryNode: w.polarity.secondaryNode(edge.toEdge()),
		Edge:          edge,
	})

	if len(w.buf) >= MaxBatchSize {
		return w.spill()
	}
	return nil
}

func (w *EdgeStoreWriter) spill() error {
	sort.Slice(w.buf, func(i, j int) bool { return lessSortable(w.buf[i], w.buf[j]) })

	name := filepath.Join(w.path, "writer", fmt.Sprintf("%d.store", len(w.spillFiles)))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("spill edge batch: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := sonic.ConfigDefault
	for _, e := range w.buf {
		raw, err := enc.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode spilled edge: %w", err)
		}
		if _, err := bw.Write(raw); err != nil {
			return fmt.Errorf("write spilled edge: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write spilled edge: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush spilled batch: %w", err)
	}

	w.spillFiles = append(w.spillFiles, name)
	w.buf = w.buf[:0]
	if w.logger != nil {
		w.logger.Info("webgraph writer spilled batch", zap.String("file", name))
	}
	return nil
}

// spillReader streams one spilled file's sortableEdges back in the
// sorted order they were written in.
type spillReader struct {
	f   *os.File
	sc  *bufio.Scanner
	cur sortableEdge
	ok  bool
}

func openSpillReader(path string) (*spillReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	r := &spillReader{f: f, sc: sc}
	r.advance()
	return r, nil
}

func (r *spillReader) advance() {
	if r.sc.Scan() {
		var e sortableEdge
		if err := sonic.Unmarshal(r.sc.Bytes(), &e); err == nil {
			r.cur = e
			r.ok = true
			return
		}
	}
	r.ok = false
}

func (r *spillReader) close() { r.f.Close() }

// Finalize merges the buffered and spilled edges into sorted, deduped
// groups and streams them into a finalEdgeStoreWriter, returning the
// resulting EdgeStore. The scratch directory is removed afterward.
func (w *EdgeStoreWriter) Finalize() (*EdgeStore, error) {
	sort.Slice(w.buf, func(i, j int) bool { return lessSortable(w.buf[i], w.buf[j]) })

	readers := make([]*spillReader, 0, len(w.spillFiles))
	for _, path := range w.spillFiles {
		r, err := openSpillReader(path)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}
	defer func() {
		for _, r := range readers {
			r.close()
		}
	}()

	final, err := openFinalEdgeStoreWriter(w.logger, w.compression, w.polarity, w.path)
	if err != nil {
		return nil, err
	}

	memIdx := 0
	nextFromMem := func() (sortableEdge, bool) {
		if memIdx >= len(w.buf) {
			return sortableEdge{}, false
		}
		e := w.buf[memIdx]
		memIdx++
		return e, true
	}

	// k-way merge: mem buffer plus one peekable reader per spill file.
	memPeek, memHasPeek := sortableEdge{}, false
	if e, ok := nextFromMem(); ok {
		memPeek, memHasPeek = e, true
	}

	popSmallest := func() (sortableEdge, bool) {
		bestIdx := -1
		var best sortableEdge
		haveBest := false
		if memHasPeek {
			best, haveBest, bestIdx = memPeek, true, -1
		}
		for i, r := range readers {
			if !r.ok {
				continue
			}
			if !haveBest || lessSortable(r.cur, best) {
				best, haveBest, bestIdx = r.cur, true, i
			}
		}
		if !haveBest {
			return sortableEdge{}, false
		}
		if bestIdx == -1 {
			if e, ok := nextFromMem(); ok {
				memPeek, memHasPeek = e, true
			} else {
				memHasPeek = false
			}
		} else {
			readers[bestIdx].advance()
		}
		return best, true
	}

	var group []WriterEdge
	var groupSort NodeID
	haveGroup := false
	var lastKey *sortableEdge
	insertsSinceFlush := 0

	flushGroup := func() error {
		if len(group) == 0 {
			return nil
		}
		dedup := dedupBySecondary(group, w.polarity)
		if err := final.putStore(groupSort, dedup); err != nil {
			return err
		}
		insertsSinceFlush += len(dedup)
		group = group[:0]
		if insertsSinceFlush >= flushEveryInserts {
			if err := final.flush(); err != nil {
				return err
			}
			insertsSinceFlush = 0
		}
		return nil
	}

	for {
		e, ok := popSmallest()
		if !ok {
			break
		}
		if lastKey != nil && lastKey.SortNode == e.SortNode && lastKey.SecondaryNode == e.SecondaryNode {
			continue // dedup consecutive equal (sort_node, secondary_node)
		}
		lastKey = &e

		if haveGroup && e.SortNode != groupSort {
			if err := flushGroup(); err != nil {
				return nil, err
			}
			group = group[:0]
			haveGroup = false
		}
		groupSort = e.SortNode
		haveGroup = true
		group = append(group, e.Edge)
	}
	if err := flushGroup(); err != nil {
		return nil, err
	}
	if err := final.flush(); err != nil {
		return nil, err
	}
	final.close()

	if err := os.RemoveAll(filepath.Join(w.path, "writer")); err != nil {
		return nil, fmt.Errorf("remove writer scratch dir: %w", err)
	}

	return OpenEdgeStore(w.path, w.polarity, w.compression)
}

// dedupBySecondary applies a second dedup pass when building a group:
// keeps the first edge seen for each secondary node.
func dedupBySecondary(group []WriterEdge, polarity Polarity) []WriterEdge {
	seen := make(map[NodeID]bool, len(group))
	out := make([]WriterEdge, 0, len(group))
	for _, e := range group {
		sec := polarity.secondaryNode(e.toEdge())
		if seen[sec] {
			continue
		}
		seen[sec] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return polarity.secondaryNode(out[i].toEdge()) < polarity.secondaryNode(out[j].toEdge())
	})
	return out
}

// finalEdgeStoreWriter streams sorted, deduped groups into the
// persisted label/node streams and updates ranges + the prefix/edge
// logs as it goes.
type finalEdgeStoreWriter struct {
	logger      *zap.Logger
	path        string
	polarity    Polarity
	compression Compression

	ranges *rangesDb

	labelsFile *os.File
	nodesFile  *os.File
	edgesFile  *os.File
	namesFile  *os.File

	labelsOffset int64
	nodesOffset  int64
}

func openFinalEdgeStoreWriter(logger *zap.Logger, compression Compression, polarity Polarity, path string) (*finalEdgeStoreWriter, error) {
	ranges, err := openRangesDb(filepath.Join(path, "ranges"))
	if err != nil {
		return nil, err
	}

	labelsFile, err := os.OpenFile(filepath.Join(path, "labels"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open labels stream: %w", err)
	}
	nodesFile, err := os.OpenFile(filepath.Join(path, "nodes"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open nodes stream: %w", err)
	}
	edgesFile, err := os.OpenFile(filepath.Join(path, "edges.log"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open edges log: %w", err)
	}
	namesFile, err := os.OpenFile(filepath.Join(path, "names.log"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open names log: %w", err)
	}

	labelsStat, _ := labelsFile.Stat()
	nodesStat, _ := nodesFile.Stat()

	return &finalEdgeStoreWriter{
		logger:       logger,
		path:         path,
		polarity:     polarity,
		compression:  compression,
		ranges:       ranges,
		labelsFile:   labelsFile,
		nodesFile:    nodesFile,
		edgesFile:    edgesFile,
		namesFile:    namesFile,
		labelsOffset: labelsStat.Size(),
		nodesOffset:  nodesStat.Size(),
	}, nil
}

// putStore writes one sort-node group. edges must already be
// deduplicated by secondary node and is not empty.
func (w *finalEdgeStoreWriter) putStore(sortNode NodeID, edges []WriterEdge) error {
	if len(edges) == 0 {
		return nil
	}

	var labels []string
	secondaries := make([]NodeID, 0, len(edges))
	for _, e := range edges {
		labels = append(labels, e.Label)
		secondaries = append(secondaries, w.polarity.secondaryNode(e.toEdge()))
	}

	var sortName string
	if w.polarity == Forward {
		sortName = edges[0].From.Name
	} else {
		sortName = edges[0].To.Name
	}
	nameRaw, err := sonic.Marshal(Node{ID: sortNode, Name: sortName})
	if err != nil {
		return fmt.Errorf("encode node name entry: %w", err)
	}
	if _, err := w.namesFile.Write(append(nameRaw, '\n')); err != nil {
		return fmt.Errorf("write names log: %w", err)
	}

	labelStart := w.labelsOffset
	for _, chunk := range chunkLabels(labels) {
		block, err := LabelBlock{Labels: chunk}.Compress(w.compression)
		if err != nil {
			return err
		}
		n, err := w.writeLabelBlock(block)
		if err != nil {
			return err
		}
		w.labelsOffset += int64(n)
	}

	nodeStart := w.nodesOffset
	for i, id := range secondaries {
		var rec [nodeRecordSize]byte
		binary.LittleEndian.PutUint64(rec[0:8], uint64(id))
		binary.LittleEndian.PutUint64(rec[8:16], edges[i].RelFlags)
		binary.LittleEndian.PutUint64(rec[16:24], math.Float64bits(edges[i].CombinedCentrality))
		if _, err := w.nodesFile.Write(rec[:]); err != nil {
			return fmt.Errorf("write node stream: %w", err)
		}
		w.nodesOffset += nodeRecordSize
	}

	w.ranges.insertNodeRange(sortNode, byteRange{Start: nodeStart, End: w.nodesOffset})
	w.ranges.insertLabelRange(sortNode, byteRange{Start: labelStart, End: w.labelsOffset})

	for _, e := range edges {
		raw, err := sonic.Marshal(e.toEdge())
		if err != nil {
			return fmt.Errorf("encode edge log entry: %w", err)
		}
		if _, err := w.edgesFile.Write(append(raw, '\n')); err != nil {
			return fmt.Errorf("write edge log: %w", err)
		}
	}

	return nil
}

func (w *finalEdgeStoreWriter) writeLabelBlock(block CompressedLabelBlock) (int, error) {
	header := make([]byte, 5)
	header[0] = byte(block.Compression)
	binary.LittleEndian.PutUint32(header[1:], uint32(len(block.Data)))
	if _, err := w.labelsFile.Write(header); err != nil {
		return 0, fmt.Errorf("write label block header: %w", err)
	}
	if _, err := w.labelsFile.Write(block.Data); err != nil {
		return 0, fmt.Errorf("write label block: %w", err)
	}
	return len(header) + len(block.Data), nil
}

func (w *finalEdgeStoreWriter) flush() error {
	if err := w.ranges.commit(); err != nil {
		return err
	}
	if err := w.nodesFile.Sync(); err != nil {
		return fmt.Errorf("flush nodes stream: %w", err)
	}
	if err := w.labelsFile.Sync(); err != nil {
		return fmt.Errorf("flush labels stream: %w", err)
	}
	if err := w.edgesFile.Sync(); err != nil {
		return fmt.Errorf("flush edges log: %w", err)
	}
	if err := w.namesFile.Sync(); err != nil {
		return fmt.Errorf("flush names log: %w", err)
	}
	return nil
}

func (w *finalEdgeStoreWriter) close() {
	w.labelsFile.Close()
	w.nodesFile.Close()
	w.edgesFile.Close()
	w.namesFile.Close()
}
