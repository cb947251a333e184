package container

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/types"
)

func newTestManager() *Manager {
	return &Manager{
		containers: map[types.ContainerID]*types.ContainerInfo{
			1: {ID: 1, State: types.ContainerOpen},
			2: {ID: 2, State: types.ContainerOpen},
			3: {ID: 3, State: types.ContainerClosed},
		},
		replicas: map[types.ContainerID]map[types.NodeID]*types.ContainerReplica{
			1: {"dn1": {ContainerID: 1, NodeID: "dn1", State: types.ReplicaOpen}},
		},
	}
}

func TestCountReturnsEveryContainer(t *testing.T) {
	m := newTestManager()
	require.Equal(t, 3, m.Count())
}

func TestReportedCountOnlyCountsContainersWithReplicas(t *testing.T) {
	m := newTestManager()
	require.Equal(t, 1, m.ReportedCount())
}

func TestReportedCountZeroWhenNoReplicasReported(t *testing.T) {
	m := &Manager{
		containers: map[types.ContainerID]*types.ContainerInfo{1: {ID: 1}},
		replicas:   map[types.ContainerID]map[types.NodeID]*types.ContainerReplica{},
	}
	require.Equal(t, 0, m.ReportedCount())
}

func TestGetContainerReturnsClone(t *testing.T) {
	m := newTestManager()
	got := m.GetContainer(1)
	require.NotNil(t, got)
	require.Equal(t, types.ContainerID(1), got.ID)

	got.State = types.ContainerClosed
	require.Equal(t, types.ContainerOpen, m.containers[1].State, "GetContainer must return a defensive copy")
}

func TestGetContainerMissing(t *testing.T) {
	m := newTestManager()
	require.Nil(t, m.GetContainer(999))
}
