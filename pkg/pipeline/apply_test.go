package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/store"
	"github.com/apache/ozone-scm/pkg/types"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newApplyManager() *Manager {
	return &Manager{
		log:       zerolog.Nop(),
		pipelines: make(map[types.PipelineID]*types.Pipeline),
		byHash:    make(map[uint64][]types.PipelineID),
	}
}

func applyOp(t *testing.T, m *Manager, st store.Store, op string, cmd interface{}) (interface{}, error) {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)

	var result interface{}
	var applyErr error
	err = st.Update(func(b store.Batch) error {
		result, applyErr = m.Apply(b, op, raw, "")
		return applyErr
	})
	if applyErr != nil {
		return nil, applyErr
	}
	require.NoError(t, err)
	return result, nil
}

func TestApplyAllocateAddsPipeline(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", Type: types.ReplicationReplicated, Factor: 3, State: types.PipelineAllocated, MemberSetHash: 42, CreatedAt: time.Now()}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	require.Contains(t, m.pipelines, types.PipelineID("p1"))
	require.Contains(t, m.byHash[42], types.PipelineID("p1"))
}

func TestApplyAllocateIsIdempotent(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineAllocated, MemberSetHash: 1}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)
	_, err = applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)
	require.Len(t, m.byHash[1], 1, "re-applying the same allocation must not duplicate the hash index entry")
}

func TestApplyOpenFromAllocated(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineAllocated}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opOpen, openCmd{ID: "p1"})
	require.NoError(t, err)
	require.Equal(t, types.PipelineOpen, m.pipelines["p1"].State)
}

func TestApplyOpenRejectsInvalidTransition(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineClosed}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opOpen, openCmd{ID: "p1"})
	require.Error(t, err)
}

func TestApplyOpenSelfLoopIsNoOp(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineOpen}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opOpen, openCmd{ID: "p1"})
	require.NoError(t, err)
	require.Equal(t, types.PipelineOpen, m.pipelines["p1"].State)
}

func TestApplyCloseRemovesFromHashIndex(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineOpen, MemberSetHash: 7}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opClose, closeCmd{ID: "p1"})
	require.NoError(t, err)
	require.Equal(t, types.PipelineClosed, m.pipelines["p1"].State)
	require.NotContains(t, m.byHash[7], types.PipelineID("p1"))
}

func TestApplyRemoveRejectsNonClosedPipeline(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineOpen}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opRemove, removeCmd{ID: "p1"})
	require.Error(t, err)
	require.Contains(t, m.pipelines, types.PipelineID("p1"))
}

func TestApplyRemoveDeletesClosedPipeline(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineClosed}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opRemove, removeCmd{ID: "p1"})
	require.NoError(t, err)
	require.NotContains(t, m.pipelines, types.PipelineID("p1"))
}

func TestPipelineSnapshotRestoreRoundTrip(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	p := types.Pipeline{ID: "p1", State: types.PipelineOpen, MemberSetHash: 9}
	_, err := applyOp(t, m, st, opAllocate, allocateCmd{Pipeline: p})
	require.NoError(t, err)

	var snap interface{}
	require.NoError(t, st.View(func(b store.Batch) error {
		var err error
		snap, err = m.Snapshot(b)
		return err
	}))
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	m2 := newApplyManager()
	st2 := newTestStore(t)
	require.NoError(t, st2.Update(func(b store.Batch) error {
		return m2.Restore(b, raw)
	}))

	require.Contains(t, m2.pipelines, types.PipelineID("p1"))
	require.Contains(t, m2.byHash[9], types.PipelineID("p1"))
}
