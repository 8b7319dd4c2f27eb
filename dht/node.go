package dht

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"go.uber.org/zap"

	"github.com/stract/stract/rpc"
)

// NodeConfig describes one DHT server's identity and where it persists
// its Raft state.
type NodeConfig struct {
	ID        string
	RaftAddr  string // host:port the Raft transport binds/advertises
	RPCAddr   string // host:port the KV rpc.Server listens on
	DataDir   string
	Bootstrap bool // true for the first node of a brand new shard
	Logger    *zap.Logger
}

// Node owns a Raft-replicated FSM and exposes its KV surface over
// rpc.Server. State-contract RPCs split across two transports: Raft's
// own AppendEntries/InstallSnapshot/Vote traffic rides
// hashicorp/raft's NetworkTransport (see DESIGN.md), while Get/Set and
// the table lifecycle calls ride this package's rpc.Server.
type Node struct {
	cfg    NodeConfig
	raft   *raft.Raft
	fsm    *FSM
	server *rpc.Server
}

// NewNode constructs the Raft group's local participant: bolt-backed
// log/stable stores, a file snapshot store, and a TCP transport for
// Raft's own AppendEntries/InstallSnapshot/Vote RPCs, wrapped in a
// small admin-facing surface over a Raft group the rest of the package
// treats as a black box.
func NewNode(cfg NodeConfig) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("dht: create data dir: %w", err)
	}

	fsm := NewFSM()

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.bolt"))
	if err != nil {
		return nil, fmt.Errorf("dht: open raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.bolt"))
	if err != nil {
		return nil, fmt.Errorf("dht: open raft stable store: %w", err)
	}
	snapStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("dht: open snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.RaftAddr)
	if err != nil {
		return nil, fmt.Errorf("dht: resolve raft addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.RaftAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("dht: open raft transport: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.ID)

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapStore, transport)
	if err != nil {
		return nil, fmt.Errorf("dht: start raft: %w", err)
	}

	if cfg.Bootstrap {
		future := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
		})
		if err := future.Error(); err != nil {
			return nil, fmt.Errorf("dht: bootstrap cluster: %w", err)
		}
	}

	n := &Node{cfg: cfg, raft: r, fsm: fsm, server: rpc.NewServer(cfg.Logger)}
	n.registerHandlers()
	return n, nil
}

// Serve opens the KV listener and blocks, serving requests until the
// listener is closed.
func (n *Node) Serve() error {
	ln, err := net.Listen("tcp", n.cfg.RPCAddr)
	if err != nil {
		return fmt.Errorf("dht: listen on %s: %w", n.cfg.RPCAddr, err)
	}
	return n.server.Serve(ln)
}

// AddVoter adds id/addr as a voting member of this node's Raft group,
// mirroring a peer-add admin endpoint.
func (n *Node) AddVoter(id, addr string, timeout time.Duration) error {
	return n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, timeout).Error()
}

// RemoveServer removes id from this node's Raft group, mirroring a
// peer-remove admin endpoint.
func (n *Node) RemoveServer(id string, timeout time.Duration) error {
	return n.raft.RemoveServer(raft.ServerID(id), 0, timeout).Error()
}

// RaftStatus reports the current leader and voter set.
type RaftStatus struct {
	Leader string
	Voters []string
}

func (n *Node) RaftStatus() (RaftStatus, error) {
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return RaftStatus{}, fmt.Errorf("dht: get raft configuration: %w", err)
	}

	leaderAddr, _ := n.raft.LeaderWithID()
	status := RaftStatus{Leader: string(leaderAddr)}
	for _, srv := range future.Configuration().Servers {
		status.Voters = append(status.Voters, string(srv.ID))
	}
	return status, nil
}

func (n *Node) isLeader() bool {
	return n.raft.State() == raft.Leader
}

func (n *Node) apply(cmd command, timeout time.Duration) error {
	if !n.isLeader() {
		return fmt.Errorf("dht: node %s is not the leader", n.cfg.ID)
	}
	data, err := sonic.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("dht: encode command: %w", err)
	}
	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("dht: apply command: %w", err)
	}
	if errResp, ok := future.Response().(error); ok && errResp != nil {
		return fmt.Errorf("dht: fsm rejected command: %w", errResp)
	}
	return nil
}

const applyTimeout = 10 * time.Second

func (n *Node) registerHandlers() {
	n.server.Handle(rpc.TagGet, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.GetRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		value, found := n.fsm.Get(req.Table, req.Key)
		out, err := sonic.Marshal(rpc.GetResponse{Value: value, Found: found})
		return rpc.TagGet, out, err
	})

	n.server.Handle(rpc.TagSet, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.SetRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		if err := n.apply(command{Kind: cmdSet, Table: req.Table, Key: req.Key, Value: req.Value}, applyTimeout); err != nil {
			return 0, nil, err
		}
		out, err := sonic.Marshal(rpc.SetResponse{})
		return rpc.TagSet, out, err
	})

	n.server.Handle(rpc.TagBatchGet, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.BatchGetRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		pairs := n.fsm.BatchGet(req.Table, req.Keys)
		kvs := make([]rpc.KV, len(pairs))
		for i, p := range pairs {
			kvs[i] = rpc.KV{Key: p.Key, Value: p.Value}
		}
		out, err := sonic.Marshal(rpc.BatchGetResponse{Pairs: kvs})
		return rpc.TagBatchGet, out, err
	})

	n.server.Handle(rpc.TagBatchSet, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.BatchSetRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		pairs := make([]rpcKV, len(req.Pairs))
		for i, p := range req.Pairs {
			pairs[i] = rpcKV{Key: p.Key, Value: p.Value}
		}
		if err := n.apply(command{Kind: cmdBatchSet, Table: req.Table, Pairs: pairs}, applyTimeout); err != nil {
			return 0, nil, err
		}
		out, err := sonic.Marshal(rpc.BatchSetResponse{})
		return rpc.TagBatchSet, out, err
	})

	n.server.Handle(rpc.TagDropTable, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.DropTableRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		if err := n.apply(command{Kind: cmdDropTable, Table: req.Table}, applyTimeout); err != nil {
			return 0, nil, err
		}
		out, err := sonic.Marshal(rpc.DropTableResponse{})
		return rpc.TagDropTable, out, err
	})

	n.server.Handle(rpc.TagCreateTable, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.CreateTableRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		if err := n.apply(command{Kind: cmdCreateTable, Table: req.Table}, applyTimeout); err != nil {
			return 0, nil, err
		}
		out, err := sonic.Marshal(rpc.CreateTableResponse{})
		return rpc.TagCreateTable, out, err
	})

	n.server.Handle(rpc.TagCloneTable, func(_ context.Context, body []byte) (rpc.Tag, []byte, error) {
		var req rpc.CloneTableRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			return 0, nil, err
		}
		if err := n.apply(command{Kind: cmdCloneTable, From: req.From, To: req.To}, applyTimeout); err != nil {
			return 0, nil, err
		}
		out, err := sonic.Marshal(rpc.CloneTableResponse{})
		return rpc.TagCloneTable, out, err
	})

	n.server.Handle(rpc.TagAllTables, func(_ context.Context, _ []byte) (rpc.Tag, []byte, error) {
		out, err := sonic.Marshal(rpc.AllTablesResponse{Tables: n.fsm.AllTables()})
		return rpc.TagAllTables, out, err
	})
}
