package dht

import (
	"bytes"
	"io"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/raft"
)

func applyCmd(t *testing.T, fsm *FSM, cmd command) {
	t.Helper()
	data, err := sonic.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	if res := fsm.Apply(&raft.Log{Data: data}); res != nil {
		if err, ok := res.(error); ok {
			t.Fatalf("apply: %v", err)
		}
	}
}

func TestFSMSetAndGet(t *testing.T) {
	fsm := NewFSM()
	applyCmd(t, fsm, command{Kind: cmdSet, Table: "t", Key: "k", Value: []byte("v")})

	v, ok := fsm.Get("t", "k")
	if !ok || string(v) != "v" {
		t.Fatalf("expected (v, true), got (%s, %v)", v, ok)
	}

	if _, ok := fsm.Get("t", "missing"); ok {
		t.Fatalf("expected missing key to report not found")
	}
}

func TestFSMBatchSetAndBatchGet(t *testing.T) {
	fsm := NewFSM()
	applyCmd(t, fsm, command{Kind: cmdBatchSet, Table: "t", Pairs: []rpcKV{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}})

	got := fsm.BatchGet("t", []string{"a", "b", "missing"})
	if len(got) != 2 {
		t.Fatalf("expected 2 found entries, got %d", len(got))
	}
}

func TestFSMDropTableRemovesAllKeys(t *testing.T) {
	fsm := NewFSM()
	applyCmd(t, fsm, command{Kind: cmdSet, Table: "t", Key: "k", Value: []byte("v")})
	applyCmd(t, fsm, command{Kind: cmdDropTable, Table: "t"})

	if _, ok := fsm.Get("t", "k"); ok {
		t.Fatalf("expected table to be empty after drop")
	}
}

func TestFSMCloneTableCopiesSnapshot(t *testing.T) {
	fsm := NewFSM()
	applyCmd(t, fsm, command{Kind: cmdSet, Table: "src", Key: "k", Value: []byte("v")})
	applyCmd(t, fsm, command{Kind: cmdCloneTable, From: "src", To: "dst"})
	applyCmd(t, fsm, command{Kind: cmdSet, Table: "src", Key: "k2", Value: []byte("v2")})

	if _, ok := fsm.Get("dst", "k2"); ok {
		t.Fatalf("clone should not see writes made to src after the clone")
	}
	if v, ok := fsm.Get("dst", "k"); !ok || string(v) != "v" {
		t.Fatalf("expected cloned key to be present, got (%s, %v)", v, ok)
	}
}

func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	fsm := NewFSM()
	applyCmd(t, fsm, command{Kind: cmdSet, Table: "t", Key: "k", Value: []byte("v")})

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	var buf bytes.Buffer
	if err := snap.Persist(&fakeSnapshotSink{Buffer: &buf}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := NewFSM()
	if err := restored.Restore(io.NopCloser(&buf)); err != nil {
		t.Fatalf("restore: %v", err)
	}

	v, ok := restored.Get("t", "k")
	if !ok || string(v) != "v" {
		t.Fatalf("expected restored value v, got (%s, %v)", v, ok)
	}
}

type fakeSnapshotSink struct {
	*bytes.Buffer
}

func (s *fakeSnapshotSink) ID() string    { return "test" }
func (s *fakeSnapshotSink) Cancel() error { return nil }
func (s *fakeSnapshotSink) Close() error  { return nil }
