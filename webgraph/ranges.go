package webgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// byteRange is a half-open [Start, End) span into one of the store's
// append-only streams.
type byteRange struct {
	Start int64
	End   int64
}

// rangesDb maps a sort node to the byte range of its group within the
// node stream and the label stream, keyed by the 8-byte sort-node id.
// Kept in memory and snapshotted to disk on commit; no embedded-KV
// library is wired elsewhere in this codebase to reach for instead
// (see DESIGN.md), so this is a small hand-rolled index over two maps,
// same spirit as the prefix trie.
type rangesDb struct {
	mu     sync.RWMutex
	path   string
	nodes  map[NodeID]byteRange
	labels map[NodeID]byteRange
}

func openRangesDb(dir string) (*rangesDb, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open ranges db: %w", err)
	}
	db := &rangesDb{
		path:   dir,
		nodes:  make(map[NodeID]byteRange),
		labels: make(map[NodeID]byteRange),
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

type rangesSnapshot struct {
	Nodes  map[NodeID]byteRange
	Labels map[NodeID]byteRange
}

func (db *rangesDb) load() error {
	raw, err := os.ReadFile(filepath.Join(db.path, "snapshot.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ranges db: %w", err)
	}
	var snap rangesSnapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode ranges db: %w", err)
	}
	db.nodes = snap.Nodes
	db.labels = snap.Labels
	return nil
}

// insertNodeRange records r as node-stream range for the group rooted
// at sortNode. At most one entry is kept per node.
func (db *rangesDb) insertNodeRange(sortNode NodeID, r byteRange) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.nodes[sortNode]; exists {
		panic(fmt.Sprintf("webgraph: duplicate node range for %d", sortNode))
	}
	db.nodes[sortNode] = r
}

func (db *rangesDb) insertLabelRange(sortNode NodeID, r byteRange) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.labels[sortNode]; exists {
		panic(fmt.Sprintf("webgraph: duplicate label range for %d", sortNode))
	}
	db.labels[sortNode] = r
}

func (db *rangesDb) nodeRange(sortNode NodeID) (byteRange, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.nodes[sortNode]
	return r, ok
}

func (db *rangesDb) labelRange(sortNode NodeID) (byteRange, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.labels[sortNode]
	return r, ok
}

// commit persists the current in-memory state, the point at which a
// crash can no longer lose already-flushed groups.
func (db *rangesDb) commit() error {
	db.mu.RLock()
	snap := rangesSnapshot{Nodes: db.nodes, Labels: db.labels}
	db.mu.RUnlock()

	raw, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode ranges db: %w", err)
	}
	tmp := filepath.Join(db.path, "snapshot.json.tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("commit ranges db: %w", err)
	}
	return os.Rename(tmp, filepath.Join(db.path, "snapshot.json"))
}
