package nodemanager

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
	return New(Config{ClusterID: "CID-test", SCMID: "scm-1"}, nil, nil, nil, zerolog.Nop())
}

func marshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func applyOp(t *testing.T, m *Manager, st store.Store, op string, cmd interface{}) (interface{}, error) {
	t.Helper()
	var result interface{}
	var applyErr error
	err := st.Update(func(b store.Batch) error {
		result, applyErr = m.Apply(b, op, marshal(t, cmd), "")
		return applyErr
	})
	if applyErr != nil {
		return nil, applyErr
	}
	require.NoError(t, err)
	return result, nil
}

func TestApplyRegisterAddsNodeAndIsIdempotent(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	node := types.NodeInfo{ID: "dn-1", Hostname: "dn1", IP: "10.0.0.1", Port: 9859, PipelineIDs: map[types.PipelineID]struct{}{}, ContainerIDs: map[types.ContainerID]struct{}{}}
	cmd := registerCmd{Node: node, AssignedAt: time.Now().UnixNano()}

	res, err := applyOp(t, m, st, opRegister, cmd)
	require.NoError(t, err)
	require.True(t, res.(RegisterResult).Success)

	require.Len(t, m.nodes, 1)
	require.Contains(t, m.byIP, "10.0.0.1")
	require.Contains(t, m.byHost, "dn1")

	// Re-applying the same registration (e.g. replayed on a follower
	// catching up) must not duplicate or error.
	res2, err := applyOp(t, m, st, opRegister, cmd)
	require.NoError(t, err)
	require.True(t, res2.(RegisterResult).Success)
	require.Len(t, m.nodes, 1)
}

func TestApplyHeartbeatClearsStaleHealth(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	node := types.NodeInfo{ID: "dn-1", IP: "10.0.0.1", Hostname: "dn1", PipelineIDs: map[types.PipelineID]struct{}{}, ContainerIDs: map[types.ContainerID]struct{}{}}
	_, err := applyOp(t, m, st, opRegister, registerCmd{Node: node, AssignedAt: time.Now().UnixNano()})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opSetHealth, setHealthCmd{NodeID: "dn-1", Health: types.NodeStale})
	require.NoError(t, err)
	require.Equal(t, types.NodeStale, m.nodes["dn-1"].Health)

	_, err = applyOp(t, m, st, opHeartbeat, heartbeatCmd{NodeID: "dn-1", AtNanos: time.Now().UnixNano()})
	require.NoError(t, err)
	require.Equal(t, types.NodeHealthy, m.nodes["dn-1"].Health)
}

func TestApplyHeartbeatUnknownNodeErrors(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	_, err := applyOp(t, m, st, opHeartbeat, heartbeatCmd{NodeID: "ghost", AtNanos: time.Now().UnixNano()})
	require.Error(t, err)
}

func TestApplySetHealthDeadInvokesCloser(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	node := types.NodeInfo{ID: "dn-1", IP: "10.0.0.1", Hostname: "dn1", PipelineIDs: map[types.PipelineID]struct{}{}, ContainerIDs: map[types.ContainerID]struct{}{}}
	_, err := applyOp(t, m, st, opRegister, registerCmd{Node: node, AssignedAt: time.Now().UnixNano()})
	require.NoError(t, err)

	closer := &fakeCloser{}
	m.SetPipelineCloser(closer)

	_, err = applyOp(t, m, st, opSetHealth, setHealthCmd{NodeID: "dn-1", Health: types.NodeDead})
	require.NoError(t, err)
	require.Equal(t, []types.NodeID{"dn-1"}, closer.closed)
}

type fakeCloser struct {
	closed []types.NodeID
}

func (f *fakeCloser) CloseContainingNode(id types.NodeID) {
	f.closed = append(f.closed, id)
}

func TestApplyRemoveDeletesNodeAndIndexes(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	node := types.NodeInfo{ID: "dn-1", IP: "10.0.0.1", Hostname: "dn1", PipelineIDs: map[types.PipelineID]struct{}{}, ContainerIDs: map[types.ContainerID]struct{}{}}
	_, err := applyOp(t, m, st, opRegister, registerCmd{Node: node, AssignedAt: time.Now().UnixNano()})
	require.NoError(t, err)

	_, err = applyOp(t, m, st, opRemove, removeCmd{NodeID: "dn-1"})
	require.NoError(t, err)

	require.NotContains(t, m.nodes, types.NodeID("dn-1"))
	require.NotContains(t, m.byIP, "10.0.0.1")
	require.NotContains(t, m.byHost, "dn1")
}

func TestApplyNodeReportUpdatesStorageReports(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	node := types.NodeInfo{ID: "dn-1", IP: "10.0.0.1", Hostname: "dn1", PipelineIDs: map[types.PipelineID]struct{}{}, ContainerIDs: map[types.ContainerID]struct{}{}}
	_, err := applyOp(t, m, st, opRegister, registerCmd{Node: node, AssignedAt: time.Now().UnixNano()})
	require.NoError(t, err)

	reports := []types.StorageReport{{Path: "/data0", Type: types.VolumeTypeDisk, Capacity: 1000, Used: 200, Remaining: 800}}
	_, err = applyOp(t, m, st, opNodeReport, nodeReportCmd{NodeID: "dn-1", StorageReports: reports, MetadataVolumeCount: 1, HealthyVolumeCount: 2})
	require.NoError(t, err)

	require.Equal(t, reports, m.nodes["dn-1"].StorageReports)
	require.Equal(t, 1, m.nodes["dn-1"].MetadataVolumeCount)
	require.Equal(t, 2, m.nodes["dn-1"].HealthyVolumeCount)
}

func TestApplyNodeReportUnknownNodeDiscardedWithoutError(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	_, err := applyOp(t, m, st, opNodeReport, nodeReportCmd{NodeID: "ghost", MetadataVolumeCount: 1})
	require.NoError(t, err)
	require.NotContains(t, m.nodes, types.NodeID("ghost"))
}

func TestApplyUnknownOpReturnsMetadataError(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	_, err := applyOp(t, m, st, "not-a-real-op", struct{}{})
	require.Error(t, err)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := newApplyManager()
	st := newTestStore(t)

	node := types.NodeInfo{ID: "dn-1", IP: "10.0.0.1", Hostname: "dn1", PipelineIDs: map[types.PipelineID]struct{}{}, ContainerIDs: map[types.ContainerID]struct{}{}}
	_, err := applyOp(t, m, st, opRegister, registerCmd{Node: node, AssignedAt: time.Now().UnixNano()})
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

	require.Len(t, m2.nodes, 1)
	require.Equal(t, types.NodeID("dn-1"), m2.nodes["dn-1"].ID)
	require.Contains(t, m2.byHost, "dn1")
}
