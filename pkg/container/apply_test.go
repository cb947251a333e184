package container

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
		log:        zerolog.Nop(),
		containers: make(map[types.ContainerID]*types.ContainerInfo),
		dedup:      make(map[string]types.ContainerID),
		byPipeline: make(map[types.PipelineID]map[types.ContainerID]struct{}),
		replicas:   make(map[types.ContainerID]map[types.NodeID]*types.ContainerReplica),
	}
}

func applyOp(t *testing.T, m *Manager, st store.Store, op string, cmd interface{}, dedupKey string) (interface{}, error) {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)

	var result interface{}
	var applyErr error
	err = st.Update(func(b store.Batch) error {
		result, applyErr = m.Apply(b, op, raw, dedupKey)
		return applyErr
	})
	if applyErr != nil {
		return nil, applyErr
	}
	require.NoError(t, err)
	return result, nil
}

func TestApplyAllocateAssignsMonotoneID(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	cmd := allocateCmd{PipelineID: "p1", Owner: "svc", Type: types.ReplicationReplicated, Factor: 3, CreatedAt: time.Now().UnixNano()}
	res1, err := applyOp(t, m, st, opAllocate, cmd, "")
	require.NoError(t, err)
	c1 := res1.(*types.ContainerInfo)
	require.Equal(t, types.ContainerID(1), c1.ID)
	require.Equal(t, types.ContainerOpen, c1.State)

	res2, err := applyOp(t, m, st, opAllocate, cmd, "")
	require.NoError(t, err)
	c2 := res2.(*types.ContainerInfo)
	require.Equal(t, types.ContainerID(2), c2.ID)
}

func TestApplyAllocateDedupReturnsSameContainer(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	cmd := allocateCmd{PipelineID: "p1", Type: types.ReplicationReplicated, Factor: 3, CreatedAt: time.Now().UnixNano()}
	res1, err := applyOp(t, m, st, opAllocate, cmd, "dedup-key-1")
	require.NoError(t, err)
	id1 := res1.(*types.ContainerInfo).ID

	res2, err := applyOp(t, m, st, opAllocate, cmd, "dedup-key-1")
	require.NoError(t, err)
	id2 := res2.(*types.ContainerInfo).ID
	require.Equal(t, id1, id2)
	require.Equal(t, 1, m.Count())
}

func TestApplyAllocateTracksByPipeline(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	cmd := allocateCmd{PipelineID: "p1", Type: types.ReplicationReplicated, Factor: 3, CreatedAt: time.Now().UnixNano()}
	_, err := applyOp(t, m, st, opAllocate, cmd, "")
	require.NoError(t, err)

	require.Len(t, m.byPipeline["p1"], 1)
}

func TestApplyTransitionFinalizeRemovesFromByPipeline(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	cmd := allocateCmd{PipelineID: "p1", Type: types.ReplicationReplicated, Factor: 3, CreatedAt: time.Now().UnixNano()}
	res, err := applyOp(t, m, st, opAllocate, cmd, "")
	require.NoError(t, err)
	id := res.(*types.ContainerInfo).ID

	_, err = applyOp(t, m, st, opTransition, transitionCmd{ID: id, Event: EventFinalize}, "")
	require.NoError(t, err)
	require.Equal(t, types.ContainerClosing, m.containers[id].State)
	require.NotContains(t, m.byPipeline, types.PipelineID("p1"))
}

func TestApplyTransitionUnknownContainerErrors(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	_, err := applyOp(t, m, st, opTransition, transitionCmd{ID: 999, Event: EventFinalize}, "")
	require.Error(t, err)
}

func TestApplyTransitionInvalidEventErrors(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	cmd := allocateCmd{PipelineID: "p1", Type: types.ReplicationReplicated, Factor: 3, CreatedAt: time.Now().UnixNano()}
	res, err := applyOp(t, m, st, opAllocate, cmd, "")
	require.NoError(t, err)
	id := res.(*types.ContainerInfo).ID

	_, err = applyOp(t, m, st, opTransition, transitionCmd{ID: id, Event: EventCleanup}, "")
	require.Error(t, err)
}

func TestContainerSnapshotRestoreRoundTrip(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	cmd := allocateCmd{PipelineID: "p1", Type: types.ReplicationReplicated, Factor: 3, CreatedAt: time.Now().UnixNano()}
	res, err := applyOp(t, m, st, opAllocate, cmd, "dk")
	require.NoError(t, err)
	id := res.(*types.ContainerInfo).ID

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

	require.Contains(t, m2.containers, id)
	require.Equal(t, m.nextID, m2.nextID)
	require.Contains(t, m2.dedup, "dk")
	require.Contains(t, m2.byPipeline["p1"], id)
}
