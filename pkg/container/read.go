package container

import "github.com/apache/ozone-scm/pkg/types"

// GetContainer returns a defensive copy of one container's record, or
// nil.
func (m *Manager) GetContainer(id types.ContainerID) *types.ContainerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.containers[id].Clone()
}

// ListContainers returns a defensive copy of every container. It also
// satisfies pkg/metrics.ContainerSource.
func (m *Manager) ListContainers() []*types.ContainerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.ContainerInfo, 0, len(m.containers))
	for _, c := range m.containers {
		out = append(out, c.Clone())
	}
	return out
}

// Count returns the number of known containers, used by the Safe-Mode
// Controller's ContainerReplicaRule denominator.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.containers)
}

// ReportedCount returns the number of containers with at least one
// reported replica, the Safe-Mode Controller's ContainerReplicaRule
// numerator.
func (m *Manager) ReportedCount() int {
	m.mu.RLock()
	ids := make([]types.ContainerID, 0, len(m.containers))
	for id := range m.containers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	m.replicaMu.RLock()
	defer m.replicaMu.RUnlock()
	n := 0
	for _, id := range ids {
		if len(m.replicas[id]) > 0 {
			n++
		}
	}
	return n
}
