package dht

import (
	"context"
	"crypto/md5" //nolint:gosec // fidelity to pinned routing hash, not used for anything security-sensitive
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/stract/stract/rpc"
)

// Client routes Get/Set/batch and table-lifecycle operations to the
// shard owning each key, consistent-hashed over a sorted shard id list.
type Client struct {
	ids    []ShardID
	shards map[ShardID]*shard
}

// NewClient enumerates cluster, keeps only Dht members, groups their
// addresses by shard, and builds the routing table.
func NewClient(ctx context.Context, cluster Cluster) (*Client, error) {
	members, err := cluster.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("dht: list cluster members: %w", err)
	}

	shards := make(map[ShardID]*shard)
	for _, m := range members {
		if m.Service != ServiceDHT {
			continue
		}
		sh, ok := shards[m.Shard]
		if !ok {
			sh = newShard()
			shards[m.Shard] = sh
		}
		sh.addNode(m.Host)
	}

	return &Client{ids: sortedShardIDs(shards), shards: shards}, nil
}

// AddNode extends shardID's member list live and rebuilds the sorted
// id list used for routing.
func (c *Client) AddNode(shardID ShardID, addr string) {
	sh, ok := c.shards[shardID]
	if !ok {
		sh = newShard()
		c.shards[shardID] = sh
	}
	sh.addNode(addr)
	c.ids = sortedShardIDs(c.shards)
}

func sortedShardIDs(shards map[ShardID]*shard) []ShardID {
	ids := make([]ShardID, 0, len(shards))
	for id := range shards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ShardForKey computes h = u64_le(md5(key)[0:8]); ids[h % len(ids)]
// is the owning shard.
func (c *Client) ShardForKey(key []byte) (ShardID, error) {
	if len(c.ids) == 0 {
		return 0, fmt.Errorf("dht: no shards available to route %q", key)
	}
	sum := md5.Sum(key)
	h := binary.LittleEndian.Uint64(sum[:8])
	return c.ids[h%uint64(len(c.ids))], nil
}

func (c *Client) shardFor(key []byte) (*shard, error) {
	id, err := c.ShardForKey(key)
	if err != nil {
		return nil, err
	}
	return c.shards[id], nil
}

// Get fetches key from table.
func (c *Client) Get(ctx context.Context, table, key string) (rpc.GetResponse, error) {
	sh, err := c.shardFor([]byte(key))
	if err != nil {
		return rpc.GetResponse{}, err
	}
	return sh.get(ctx, table, key)
}

// Set stores value under key in table.
func (c *Client) Set(ctx context.Context, table, key string, value []byte) error {
	sh, err := c.shardFor([]byte(key))
	if err != nil {
		return err
	}
	return sh.set(ctx, table, key, value)
}

// BatchGet groups keys by shard, fans out concurrently, and returns the
// flattened results sorted by key with consecutive duplicates removed.
// A failing shard request fails the whole batch.
func (c *Client) BatchGet(ctx context.Context, table string, keys []string) ([]rpc.KV, error) {
	byShard := make(map[ShardID][]string)
	for _, key := range keys {
		id, err := c.ShardForKey([]byte(key))
		if err != nil {
			return nil, err
		}
		byShard[id] = append(byShard[id], key)
	}

	results, err := c.fanOutBatch(ctx, byShard, func(sh *shard, shardKeys []string) ([]rpc.KV, error) {
		return sh.batchGet(ctx, table, shardKeys)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return dedupByKey(results), nil
}

// BatchSet groups (key, value) pairs by shard and fans out concurrently.
func (c *Client) BatchSet(ctx context.Context, table string, pairs []rpc.KV) error {
	byShard := make(map[ShardID][]rpc.KV)
	for _, kv := range pairs {
		id, err := c.ShardForKey([]byte(kv.Key))
		if err != nil {
			return err
		}
		byShard[id] = append(byShard[id], kv)
	}

	g, gctx := errgroup.WithContext(ctx)
	for id, shardPairs := range byShard {
		sh := c.shards[id]
		shardPairs := shardPairs
		g.Go(func() error { return sh.batchSet(gctx, table, shardPairs) })
	}
	return g.Wait()
}

func (c *Client) fanOutBatch(_ context.Context, byShard map[ShardID][]string, call func(*shard, []string) ([]rpc.KV, error)) ([]rpc.KV, error) {
	var g errgroup.Group
	resultsByShard := make([][]rpc.KV, len(byShard))

	i := 0
	type job struct {
		idx   int
		shard *shard
		keys  []string
	}
	jobs := make([]job, 0, len(byShard))
	for id, keys := range byShard {
		jobs = append(jobs, job{idx: i, shard: c.shards[id], keys: keys})
		i++
	}

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res, err := call(j.shard, j.keys)
			if err != nil {
				return err
			}
			resultsByShard[j.idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []rpc.KV
	for _, res := range resultsByShard {
		flat = append(flat, res...)
	}
	return flat, nil
}

func dedupByKey(sorted []rpc.KV) []rpc.KV {
	out := sorted[:0]
	var lastKey string
	haveLast := false
	for _, kv := range sorted {
		if haveLast && kv.Key == lastKey {
			continue
		}
		out = append(out, kv)
		lastKey = kv.Key
		haveLast = true
	}
	return out
}

// DropTable fans out to every node of every shard sequentially.
func (c *Client) DropTable(ctx context.Context, table string) error {
	return c.forEveryNode(ctx, func(n *node) error {
		var resp rpc.DropTableResponse
		return n.client.Call(ctx, rpc.TagDropTable, rpc.DropTableRequest{Table: table}, &resp)
	})
}

// CreateTable fans out to every node of every shard sequentially.
func (c *Client) CreateTable(ctx context.Context, table string) error {
	return c.forEveryNode(ctx, func(n *node) error {
		var resp rpc.CreateTableResponse
		return n.client.Call(ctx, rpc.TagCreateTable, rpc.CreateTableRequest{Table: table}, &resp)
	})
}

// CloneTable fans out to every node of every shard sequentially.
func (c *Client) CloneTable(ctx context.Context, from, to string) error {
	return c.forEveryNode(ctx, func(n *node) error {
		var resp rpc.CloneTableResponse
		return n.client.Call(ctx, rpc.TagCloneTable, rpc.CloneTableRequest{From: from, To: to}, &resp)
	})
}

// AllTables fans out to every node of every shard sequentially,
// returning the sorted, deduplicated union of their table lists.
func (c *Client) AllTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := c.forEveryNode(ctx, func(n *node) error {
		var resp rpc.AllTablesResponse
		if err := n.client.Call(ctx, rpc.TagAllTables, rpc.AllTablesRequest{}, &resp); err != nil {
			return err
		}
		tables = append(tables, resp.Tables...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return dedupStrings(tables), nil
}

func dedupStrings(sorted []string) []string {
	out := sorted[:0]
	var last string
	haveLast := false
	for _, s := range sorted {
		if haveLast && s == last {
			continue
		}
		out = append(out, s)
		last = s
		haveLast = true
	}
	return out
}

func (c *Client) forEveryNode(_ context.Context, fn func(*node) error) error {
	for _, id := range c.ids {
		for _, n := range c.shards[id].nodes {
			if err := fn(n); err != nil {
				return err
			}
		}
	}
	return nil
}
