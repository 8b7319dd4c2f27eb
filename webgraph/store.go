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
)

// EdgeStore is the read path over a finalized (or still-open, for
// online single-edge inserts) edge store directory: forward or reverse
// adjacency depending on the polarity it was built with.
type EdgeStore struct {
	path        string
	polarity    Polarity
	compression Compression

	ranges   *rangesDb
	prefixes *prefixTrie

	labelsPath string
	nodesPath  string
	edgesPath  string

	online *EdgeStoreWriter // non-nil once Insert has been called without a matching Commit
}

// OpenEdgeStore opens an existing (possibly empty) store directory,
// rebuilding its prefix trie from the names log written by the final
// writer.
func OpenEdgeStore(path string, polarity Polarity, compression Compression) (*EdgeStore, error) {
	ranges, err := openRangesDb(filepath.Join(path, "ranges"))
	if err != nil {
		return nil, err
	}

	s := &EdgeStore{
		path:        path,
		polarity:    polarity,
		compression: compression,
		ranges:      ranges,
		prefixes:    newPrefixTrie(),
		labelsPath:  filepath.Join(path, "labels"),
		nodesPath:   filepath.Join(path, "nodes"),
		edgesPath:   filepath.Join(path, "edges.log"),
	}

	if err := s.loadPrefixes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EdgeStore) loadPrefixes() error {
	f, err := os.Open(filepath.Join(s.path, "names.log"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open names log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var n Node
		if err := sonic.Unmarshal(sc.Bytes(), &n); err != nil {
			return fmt.Errorf("decode names log: %w", err)
		}
		s.prefixes.insert(n)
	}
	return nil
}

// Insert adds a single edge directly to the store for online use,
// buffering through a short-lived EdgeStoreWriter that
// Commit finalizes. Mixing Insert/Commit with a store built purely by
// EdgeStoreWriter.Finalize is supported but intended for small
// incremental updates, not bulk ingest.
func (s *EdgeStore) Insert(edge WriterEdge) error {
	if s.online == nil {
		w, err := NewEdgeStoreWriter(nil, s.path, s.compression, s.polarity)
		if err != nil {
			return err
		}
		s.online = w
	}
	return s.online.Put(edge)
}

// Commit finalizes any edges buffered by Insert since the last Commit.
func (s *EdgeStore) Commit() error {
	if s.online == nil {
		return nil
	}
	merged, err := s.online.Finalize()
	if err != nil {
		return err
	}
	s.online = nil
	*s = *merged
	return nil
}

// Merge absorbs other's groups into s. Both stores must share a
// polarity and must not share any sort node — a conflicting sort node trips the
// ranges table's at-most-one-entry invariant. Host names for the
// merged edges are not recovered (other's names.log is not replayed),
// so the destination's prefix trie will not resolve these nodes by
// prefix until they are reinserted with their names.
func (s *EdgeStore) Merge(other *EdgeStore) error {
	if s.polarity != other.polarity {
		return fmt.Errorf("merge: polarity mismatch")
	}
	edges, err := other.AllEdges()
	if err != nil {
		return err
	}
	for _, e := range edges {
		from := Node{ID: e.From}
		to := Node{ID: e.To}
		if err := s.Insert(WriterEdge{From: from, To: to, Label: e.Label, RelFlags: e.RelFlags, CombinedCentrality: e.CombinedCentrality}); err != nil {
			return err
		}
	}
	return s.Commit()
}

// Query selects the sort node an EdgeStore lookup targets.
type Query interface {
	SortNode() NodeID
}

// HostBacklinksQuery finds every edge whose sort node (the "to" side of
// a reverse-polarity store) is Node — the canonical backlink lookup.
type HostBacklinksQuery struct{ Node NodeID }

func (q HostBacklinksQuery) SortNode() NodeID { return q.Node }

// OutgoingQuery finds every edge whose sort node (the "from" side of a
// forward-polarity store) is Node.
type OutgoingQuery struct{ Node NodeID }

func (q OutgoingQuery) SortNode() NodeID { return q.Node }

// Search returns the raw group of edges rooted at q's sort node — the
// "fruit" a caller passes on to Retrieve.
func (s *EdgeStore) Search(q Query) ([]Edge, error) {
	return s.adjacency(q.SortNode())
}

// Retrieve orders fruit by descending combined centrality, the output
// shape a backlink query's callers expect.
func (s *EdgeStore) Retrieve(q Query, fruit []Edge) []Edge {
	out := append([]Edge(nil), fruit...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedCentrality > out[j].CombinedCentrality })
	return out
}

// adjacency reads the full group for sortNode directly off disk.
func (s *EdgeStore) adjacency(sortNode NodeID) ([]Edge, error) {
	nodeRange, ok := s.ranges.nodeRange(sortNode)
	if !ok {
		return nil, nil
	}
	labelRange, ok := s.ranges.labelRange(sortNode)
	if !ok {
		return nil, nil
	}

	secondaries, err := s.readNodeRange(nodeRange)
	if err != nil {
		return nil, err
	}
	labels, err := s.readLabelRange(labelRange)
	if err != nil {
		return nil, err
	}
	if len(secondaries) != len(labels) {
		return nil, fmt.Errorf("webgraph: group %d has %d nodes but %d labels", sortNode, len(secondaries), len(labels))
	}

	edges := make([]Edge, len(secondaries))
	for i, sec := range secondaries {
		e := Edge{Label: labels[i], RelFlags: sec.RelFlags, CombinedCentrality: sec.CombinedCentrality}
		if s.polarity == Forward {
			e.From, e.To = sortNode, sec.ID
		} else {
			e.From, e.To = sec.ID, sortNode
		}
		edges[i] = e
	}
	return edges, nil
}

// nodeRecord is one decoded entry of the node stream: the secondary
// node id plus its RelFlags/CombinedCentrality columns.
type nodeRecord struct {
	ID                 NodeID
	RelFlags           uint64
	CombinedCentrality float64
}

func (s *EdgeStore) readNodeRange(r byteRange) ([]nodeRecord, error) {
	f, err := os.Open(s.nodesPath)
	if err != nil {
		return nil, fmt.Errorf("open nodes stream: %w", err)
	}
	defer f.Close()

	buf := make([]byte, r.End-r.Start)
	if _, err := f.ReadAt(buf, r.Start); err != nil {
		return nil, fmt.Errorf("read node range: %w", err)
	}

	out := make([]nodeRecord, len(buf)/nodeRecordSize)
	for i := range out {
		off := i * nodeRecordSize
		out[i] = nodeRecord{
			ID:                 NodeID(binary.LittleEndian.Uint64(buf[off : off+8])),
			RelFlags:           binary.LittleEndian.Uint64(buf[off+8 : off+16]),
			CombinedCentrality: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+16 : off+24])),
		}
	}
	return out, nil
}

func (s *EdgeStore) readLabelRange(r byteRange) ([]string, error) {
	f, err := os.Open(s.labelsPath)
	if err != nil {
		return nil, fmt.Errorf("open labels stream: %w", err)
	}
	defer f.Close()

	buf := make([]byte, r.End-r.Start)
	if _, err := f.ReadAt(buf, r.Start); err != nil {
		return nil, fmt.Errorf("read label range: %w", err)
	}

	var labels []string
	for off := 0; off < len(buf); {
		compression := Compression(buf[off])
		n := binary.LittleEndian.Uint32(buf[off+1 : off+5])
		off += 5
		block := CompressedLabelBlock{Compression: compression, Data: buf[off : off+int(n)]}
		off += int(n)
		decoded, err := block.Decompress()
		if err != nil {
			return nil, err
		}
		labels = append(labels, decoded...)
	}
	return labels, nil
}

// AllEdges streams every edge recorded in the store's flat edge log, in
// build order.
func (s *EdgeStore) AllEdges() ([]Edge, error) {
	f, err := os.Open(s.edgesPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open edges log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var edges []Edge
	for sc.Scan() {
		var e Edge
		if err := sonic.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode edges log: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// IterPagesSmall returns every edge's page-level endpoints, one entry
// per stored edge.
func (s *EdgeStore) IterPagesSmall() ([]SmallEdge, error) {
	edges, err := s.AllEdges()
	if err != nil {
		return nil, err
	}
	out := make([]SmallEdge, len(edges))
	for i, e := range edges {
		out[i] = e.Small()
	}
	return out, nil
}

// IterHostsSmall returns every distinct (from_host, to_host) pair,
// deduplicated across the whole store. Host ids are
// derived by hashing each endpoint's registered-domain-less host form
// via the caller's own canonicalization before the edge is inserted —
// this package has no opinion on URL parsing, so here it simply reuses
// From/To as the host identity when a dedicated host id isn't tracked.
func (s *EdgeStore) IterHostsSmall() ([]SmallEdge, error) {
	edges, err := s.AllEdges()
	if err != nil {
		return nil, err
	}
	seen := make(map[SmallEdge]bool, len(edges))
	var out []SmallEdge
	for _, e := range edges {
		se := e.Small()
		if seen[se] {
			continue
		}
		seen[se] = true
		out = append(out, se)
	}
	return out, nil
}

// IterPageNodeIDs returns every distinct node id touched by edges in
// [offset, offset+limit) of the flat edge log.
func (s *EdgeStore) IterPageNodeIDs(offset, limit uint32) ([]NodeID, error) {
	return s.iterNodeIDsInRange(offset, limit)
}

// IterHostNodeIDs is IterPageNodeIDs' host-level counterpart; this
// implementation does not distinguish page and host ids (see
// IterHostsSmall), so it delegates directly.
func (s *EdgeStore) IterHostNodeIDs(offset, limit uint32) ([]NodeID, error) {
	return s.iterNodeIDsInRange(offset, limit)
}

func (s *EdgeStore) iterNodeIDsInRange(offset, limit uint32) ([]NodeID, error) {
	edges, err := s.AllEdges()
	if err != nil {
		return nil, err
	}
	end := offset + limit
	if end > uint32(len(edges)) {
		end = uint32(len(edges))
	}
	if offset > end {
		offset = end
	}

	seen := make(map[NodeID]bool)
	var out []NodeID
	for _, e := range edges[offset:end] {
		for _, id := range [2]NodeID{e.From, e.To} {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// WithHostPrefix returns the node ids of every group whose sort-node
// name starts with prefix.
func (s *EdgeStore) WithHostPrefix(prefix string) []NodeID {
	return s.prefixes.withPrefix(prefix)
}
