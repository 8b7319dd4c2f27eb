package dht

import (
	"context"
	"testing"

	"github.com/stract/stract/rpc"
)

func newTestClient(shardIDs ...ShardID) *Client {
	shards := make(map[ShardID]*shard, len(shardIDs))
	for _, id := range shardIDs {
		shards[id] = newShard()
	}
	return &Client{ids: sortedShardIDs(shards), shards: shards}
}

func TestShardForKeyIsDeterministic(t *testing.T) {
	c := newTestClient(0, 1, 2)

	first, err := c.ShardForKey([]byte("abc"))
	if err != nil {
		t.Fatalf("shard for key: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := c.ShardForKey([]byte("abc"))
		if err != nil {
			t.Fatalf("shard for key: %v", err)
		}
		if got != first {
			t.Fatalf("expected deterministic shard assignment, got %d then %d", first, got)
		}
	}
}

func TestShardForKeyFailsWithNoShards(t *testing.T) {
	c := newTestClient()
	if _, err := c.ShardForKey([]byte("abc")); err == nil {
		t.Fatalf("expected an error routing with no shards")
	}
}

func TestDedupByKeySortedInput(t *testing.T) {
	in := []rpc.KV{
		{Key: "a", Value: []byte("1")},
		{Key: "a", Value: []byte("2")},
		{Key: "b", Value: []byte("3")},
	}
	out := dedupByKey(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries after dedup, got %d", len(out))
	}
	if out[0].Key != "a" || out[1].Key != "b" {
		t.Fatalf("unexpected dedup order: %+v", out)
	}
}

func TestClientAddNodeRebuildsIDList(t *testing.T) {
	c := newTestClient()
	c.AddNode(ShardID(5), "127.0.0.1:9000")
	if len(c.ids) != 1 || c.ids[0] != ShardID(5) {
		t.Fatalf("expected ids [5], got %v", c.ids)
	}

	id, err := c.ShardForKey([]byte("any-key"))
	if err != nil {
		t.Fatalf("shard for key: %v", err)
	}
	if id != ShardID(5) {
		t.Fatalf("expected the only shard (5), got %d", id)
	}
}

type fakeCluster struct {
	members []Member
}

func (f fakeCluster) Members(_ context.Context) ([]Member, error) {
	return f.members, nil
}

func TestNewClientFiltersToDhtMembers(t *testing.T) {
	cluster := fakeCluster{members: []Member{
		{Service: ServiceDHT, Shard: 0, Host: "127.0.0.1:9000"},
		{Service: ServiceDHT, Shard: 0, Host: "127.0.0.1:9001"},
		{Service: ServiceDHT, Shard: 1, Host: "127.0.0.1:9002"},
		{Service: ServiceUnknown, Shard: 2, Host: "127.0.0.1:9003"},
	}}

	c, err := NewClient(context.Background(), cluster)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if len(c.ids) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(c.ids))
	}
	if len(c.shards[ShardID(0)].nodes) != 2 {
		t.Fatalf("expected 2 nodes in shard 0, got %d", len(c.shards[ShardID(0)].nodes))
	}
}
