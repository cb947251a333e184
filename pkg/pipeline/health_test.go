package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/types"
)

func newTestManager(pipelines map[types.PipelineID]*types.Pipeline) *Manager {
	return &Manager{pipelines: pipelines}
}

func TestReplicatedTotalAndHealthy(t *testing.T) {
	m := newTestManager(map[types.PipelineID]*types.Pipeline{
		"p1": {Type: types.ReplicationReplicated, State: types.PipelineOpen},
		"p2": {Type: types.ReplicationReplicated, State: types.PipelineAllocated},
		"p3": {Type: types.ReplicationReplicated, State: types.PipelineClosed},
		"p4": {Type: types.ReplicationStandalone, State: types.PipelineOpen},
	})

	require.Equal(t, 2, m.ReplicatedTotal())
	require.Equal(t, 1, m.ReplicatedHealthy())
}

func TestReplicatedTotalEmpty(t *testing.T) {
	m := newTestManager(map[types.PipelineID]*types.Pipeline{})
	require.Equal(t, 0, m.ReplicatedTotal())
	require.Equal(t, 0, m.ReplicatedHealthy())
}

func TestReplicatedHealthyExcludesDormant(t *testing.T) {
	m := newTestManager(map[types.PipelineID]*types.Pipeline{
		"p1": {Type: types.ReplicationReplicated, State: types.PipelineDormant},
	})
	require.Equal(t, 1, m.ReplicatedTotal())
	require.Equal(t, 0, m.ReplicatedHealthy())
}
