// Package webgraph implements the sorted, compressed edge store: bulk
// ingest via external-memory sort (EdgeStoreWriter) and a read path over
// the finalized store (EdgeStore) supporting forward/reverse adjacency,
// host-level aggregation and backlink queries.
package webgraph

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NodeID identifies a page or host: the xxhash64 of its canonicalized
// URL or host string. Using a well-known non-cryptographic hash here
// (rather than md5, reserved for DHT key routing) follows the rest of
// the corpus's xxhash usage for content-addressed identifiers.
type NodeID uint64

// NewNodeID lower-cases and trims s, then hashes it; any further
// canonicalization policy lives with the crawler/indexer, not the graph
// store.
func NewNodeID(s string) NodeID {
	return NodeID(xxhash.Sum64String(strings.ToLower(strings.TrimSpace(s))))
}

// Less orders NodeIDs numerically, the ordering every sorted column and
// RangesDb lookup in this package relies on.
func (n NodeID) Less(other NodeID) bool { return n < other }

// Node pairs a NodeID with the canonical string it was hashed from. The
// public Edge type is NodeID-only; Node exists for the
// writer's ingest path, which needs the original string to populate the
// host-prefix trie — a NodeID alone carries no
// recoverable prefix.
type Node struct {
	ID   NodeID
	Name string
}

// NewNode canonicalizes and hashes name into a Node.
func NewNode(name string) Node {
	return Node{ID: NewNodeID(name), Name: strings.ToLower(strings.TrimSpace(name))}
}
