package pipeline

import "github.com/apache/ozone-scm/pkg/types"

// ReplicatedTotal and ReplicatedHealthy feed the Safe-Mode Controller's
// optional pipeline-availability rules. A pipeline only
// ever reaches OPEN once its creation quorum (majority of members)
// has acknowledged it (quorum.go), so "OPEN" is already the signal
// both HealthyPipelineRule and OneReplicaPipelineRule need — a
// majority ack implies at least one ack, so a single OPEN-count pair
// serves both rules without tracking per-member liveness separately.

// ReplicatedTotal counts every non-CLOSED replicated pipeline.
func (m *Manager) ReplicatedTotal() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.pipelines {
		if p.Type == types.ReplicationReplicated && p.State != types.PipelineClosed {
			n++
		}
	}
	return n
}

// ReplicatedHealthy counts replicated pipelines currently OPEN.
func (m *Manager) ReplicatedHealthy() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.pipelines {
		if p.Type == types.ReplicationReplicated && p.State == types.PipelineOpen {
			n++
		}
	}
	return n
}
