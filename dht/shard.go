package dht

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/stract/stract/rpc"
)

// node is one DHT server reachable within a shard.
type node struct {
	addr   string
	client *rpc.Client
}

func newNode(addr string) *node {
	return &node{addr: addr, client: rpc.NewClient(addr)}
}

// shard is the set of nodes replicating one key-space slice. pick
// chooses any node for reads and writes alike. A node serves reads from
// its local state, but applies a write only if it is the shard's
// current Raft leader; any other node rejects the write with a
// not-leader error and does not forward it, and nothing here retries.
type shard struct {
	nodes []*node
}

func newShard() *shard {
	return &shard{}
}

func (s *shard) addNode(addr string) {
	s.nodes = append(s.nodes, newNode(addr))
}

// pick returns a uniformly random node of the shard.
func (s *shard) pick() (*node, error) {
	if len(s.nodes) == 0 {
		return nil, fmt.Errorf("dht: shard has no nodes")
	}
	return s.nodes[rand.Intn(len(s.nodes))], nil
}

func (s *shard) get(ctx context.Context, table, key string) (rpc.GetResponse, error) {
	n, err := s.pick()
	if err != nil {
		return rpc.GetResponse{}, err
	}
	var resp rpc.GetResponse
	err = n.client.Call(ctx, rpc.TagGet, rpc.GetRequest{Table: table, Key: key}, &resp)
	return resp, err
}

func (s *shard) set(ctx context.Context, table, key string, value []byte) error {
	n, err := s.pick()
	if err != nil {
		return err
	}
	var resp rpc.SetResponse
	return n.client.Call(ctx, rpc.TagSet, rpc.SetRequest{Table: table, Key: key, Value: value}, &resp)
}

func (s *shard) batchGet(ctx context.Context, table string, keys []string) ([]rpc.KV, error) {
	n, err := s.pick()
	if err != nil {
		return nil, err
	}
	var resp rpc.BatchGetResponse
	err = n.client.Call(ctx, rpc.TagBatchGet, rpc.BatchGetRequest{Table: table, Keys: keys}, &resp)
	return resp.Pairs, err
}

func (s *shard) batchSet(ctx context.Context, table string, pairs []rpc.KV) error {
	n, err := s.pick()
	if err != nil {
		return err
	}
	var resp rpc.BatchSetResponse
	return n.client.Call(ctx, rpc.TagBatchSet, rpc.BatchSetRequest{Table: table, Pairs: pairs}, &resp)
}
