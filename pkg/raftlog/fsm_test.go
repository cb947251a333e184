package raftlog

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/store"
)

// fakeSink is a minimal raft.SnapshotSink backed by an in-memory buffer,
// just enough for exercising fsmSnapshot.Persist without a real raft
// transport.
type fakeSink struct {
	*bytes.Buffer
}

func (fakeSink) ID() string       { return "test-sink" }
func (fakeSink) Cancel() error    { return nil }
func (fakeSink) Close() error     { return nil }

type fakeApplier struct {
	applied  []string
	snapshot json.RawMessage
	restored json.RawMessage
	applyErr error
}

func (f *fakeApplier) Apply(b store.Batch, op string, data json.RawMessage, dedupKey string) (interface{}, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applied = append(f.applied, op)
	return op, nil
}

func (f *fakeApplier) Snapshot(b store.Batch) (interface{}, error) {
	return f.snapshot, nil
}

func (f *fakeApplier) Restore(b store.Batch, raw json.RawMessage) error {
	f.restored = raw
	return nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func encodeLog(t *testing.T, index uint64, target, op string, data interface{}) *raft.Log {
	t.Helper()
	raw, err := encodeCommand(target, op, data, "")
	require.NoError(t, err)
	return &raft.Log{Index: index, Data: raw}
}

func TestFSMApplyDispatchesToRegisteredApplier(t *testing.T) {
	st := newTestStore(t)
	node := &fakeApplier{}
	f := New(st, map[string]Applier{TargetNode: node}, zerolog.Nop())

	result := f.Apply(encodeLog(t, 1, TargetNode, "register", map[string]string{"id": "dn-1"}))
	require.Equal(t, "register", result)
	require.Equal(t, []string{"register"}, node.applied)
}

func TestFSMApplyAdvancesLastAppliedIndex(t *testing.T) {
	st := newTestStore(t)
	node := &fakeApplier{}
	f := New(st, map[string]Applier{TargetNode: node}, zerolog.Nop())

	f.Apply(encodeLog(t, 7, TargetNode, "register", map[string]string{}))
	require.EqualValues(t, 7, f.LastAppliedIndex())
}

func TestFSMApplyUnknownTargetPanics(t *testing.T) {
	st := newTestStore(t)
	f := New(st, map[string]Applier{}, zerolog.Nop())

	require.Panics(t, func() {
		f.Apply(encodeLog(t, 1, "GHOST", "op", map[string]string{}))
	})
}

func TestFSMApplyUndecodableEntryPanics(t *testing.T) {
	st := newTestStore(t)
	f := New(st, map[string]Applier{}, zerolog.Nop())

	require.Panics(t, func() {
		f.Apply(&raft.Log{Index: 1, Data: []byte("not json")})
	})
}

func TestFSMApplyFatalApplierErrorPanics(t *testing.T) {
	st := newTestStore(t)
	node := &fakeApplier{applyErr: scmerrors.New(scmerrors.Corruption, "boom")}
	f := New(st, map[string]Applier{TargetNode: node}, zerolog.Nop())

	require.Panics(t, func() {
		f.Apply(encodeLog(t, 1, TargetNode, "register", map[string]string{}))
	})
}

func TestFSMApplyNonFatalApplierErrorReturnsError(t *testing.T) {
	st := newTestStore(t)
	node := &fakeApplier{applyErr: scmerrors.New(scmerrors.NotFound, "missing")}
	f := New(st, map[string]Applier{TargetNode: node}, zerolog.Nop())

	result := f.Apply(encodeLog(t, 1, TargetNode, "register", map[string]string{}))
	err, ok := result.(error)
	require.True(t, ok)
	require.Equal(t, scmerrors.NotFound, scmerrors.KindOf(err))
}

func TestFSMSnapshotAndRestoreRoundTrip(t *testing.T) {
	st := newTestStore(t)
	node := &fakeApplier{snapshot: json.RawMessage(`{"nodes":1}`)}
	f := New(st, map[string]Applier{TargetNode: node}, zerolog.Nop())

	f.Apply(encodeLog(t, 3, TargetNode, "register", map[string]string{}))

	snap, err := f.Snapshot()
	require.NoError(t, err)

	sink := fakeSink{&bytes.Buffer{}}
	require.NoError(t, snap.(*fsmSnapshot).Persist(sink))

	node2 := &fakeApplier{}
	f2 := New(newTestStore(t), map[string]Applier{TargetNode: node2}, zerolog.Nop())
	require.NoError(t, f2.Restore(io.NopCloser(sink.Buffer)))

	require.EqualValues(t, 3, f2.LastAppliedIndex())
	require.JSONEq(t, `{"nodes":1}`, string(node2.restored))
}
