// Package dht implements the sharded, Raft-replicated key-value store
// used as the AMPC substrate: a client that routes
// by consistent hashing to per-shard Raft groups, and the node-side
// state machine those groups replicate.
package dht

import "context"

// ShardID names one Raft group owning a slice of the DHT's key space.
type ShardID uint32

// ServiceKind discriminates a cluster member's advertised service;
// the DHT client only cares about ServiceDHT entries.
type ServiceKind uint8

const (
	ServiceUnknown ServiceKind = iota
	ServiceDHT
)

// Member is one entry of a cluster's membership list.
type Member struct {
	Service ServiceKind
	Shard   ShardID
	Host    string
}

// Cluster yields the current membership list; grounded on the
// teacher's admin.InternalClient.GetMetadataStatus, which answers the
// same kind of question ("who are the raft peers right now"). This
// package declares the interface only and ships no implementation.
type Cluster interface {
	Members(ctx context.Context) ([]Member, error)
}
