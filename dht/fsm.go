package dht

import (
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/decoder"
	"github.com/hashicorp/raft"
)

// commandKind discriminates the closed set of mutations the FSM
// replicates.
type commandKind uint8

const (
	cmdSet commandKind = iota
	cmdBatchSet
	cmdDropTable
	cmdCreateTable
	cmdCloneTable
)

type command struct {
	Kind  commandKind
	Table string
	Key   string
	Value []byte
	Pairs []rpcKV
	From  string
	To    string
}

// rpcKV mirrors rpc.KV without importing the rpc package into the
// replicated log format, keeping the two free to evolve independently.
type rpcKV struct {
	Key   string
	Value []byte
}

// FSM is the per-node state machine a Raft group replicates: one map
// per table, mutated only by committed log entries.
type FSM struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// NewFSM returns an empty state machine.
func NewFSM() *FSM {
	return &FSM{tables: make(map[string]map[string][]byte)}
}

// Get reads a committed value directly, bypassing Raft — callers decide
// whether a direct read on this node is linearizable enough for their
// use.
func (f *FSM) Get(table, key string) ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.tables[table]
	if !ok {
		return nil, false
	}
	v, ok := t[key]
	return v, ok
}

func (f *FSM) BatchGet(table string, keys []string) []rpcKV {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t := f.tables[table]
	out := make([]rpcKV, 0, len(keys))
	for _, k := range keys {
		if v, ok := t[k]; ok {
			out = append(out, rpcKV{Key: k, Value: v})
		}
	}
	return out
}

func (f *FSM) AllTables() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.tables))
	for name := range f.tables {
		out = append(out, name)
	}
	return out
}

// Apply applies one committed log entry. Returned errors are surfaced
// to the caller of Raft.Apply via the ApplyFuture.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := sonic.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("dht: decode log entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Kind {
	case cmdSet:
		f.tableLocked(cmd.Table)[cmd.Key] = cmd.Value
	case cmdBatchSet:
		t := f.tableLocked(cmd.Table)
		for _, kv := range cmd.Pairs {
			t[kv.Key] = kv.Value
		}
	case cmdDropTable:
		delete(f.tables, cmd.Table)
	case cmdCreateTable:
		f.tableLocked(cmd.Table)
	case cmdCloneTable:
		src := f.tables[cmd.From]
		dst := make(map[string][]byte, len(src))
		for k, v := range src {
			dst[k] = v
		}
		f.tables[cmd.To] = dst
	default:
		return fmt.Errorf("dht: unknown command kind %d", cmd.Kind)
	}
	return nil
}

// tableLocked returns table's map, creating it if absent. Caller must
// hold f.mu.
func (f *FSM) tableLocked(table string) map[string][]byte {
	t, ok := f.tables[table]
	if !ok {
		t = make(map[string][]byte)
		f.tables[table] = t
	}
	return t
}

// Snapshot captures a point-in-time copy of every table for Raft's
// compaction/install-snapshot machinery.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cp := make(map[string]map[string][]byte, len(f.tables))
	for table, kv := range f.tables {
		tcp := make(map[string][]byte, len(kv))
		for k, v := range kv {
			tcp[k] = v
		}
		cp[table] = tcp
	}
	return &fsmSnapshot{tables: cp}, nil
}

// Restore replaces the state machine's contents with a previously
// persisted snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var tables map[string]map[string][]byte
	if err := decoder.NewStreamDecoder(rc).Decode(&tables); err != nil {
		return fmt.Errorf("dht: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = tables
	return nil
}

type fsmSnapshot struct {
	tables map[string]map[string][]byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	data, err := sonic.Marshal(s.tables)
	if err != nil {
		sink.Cancel()
		return fmt.Errorf("dht: encode snapshot: %w", err)
	}
	if _, err := sink.Write(data); err != nil {
		sink.Cancel()
		return fmt.Errorf("dht: write snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
