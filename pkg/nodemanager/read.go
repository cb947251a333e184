package nodemanager

import "github.com/apache/ozone-scm/pkg/types"

// GetNode returns a defensive copy of one node's record, or nil.
func (m *Manager) GetNode(id types.NodeID) *types.NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[id].Clone()
}

// GetByIP resolves a node id by its registered IP.
func (m *Manager) GetByIP(ip string) (types.NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIP[ip]
	return id, ok
}

// GetByHost resolves a node id by its registered hostname.
func (m *Manager) GetByHost(host string) (types.NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHost[host]
	return id, ok
}

// ListNodes returns a defensive copy of every node record. It also
// satisfies pkg/metrics.NodeSource.
func (m *Manager) ListNodes() []*types.NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.NodeInfo, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.Clone())
	}
	return out
}

// ListHealthy returns every node currently HEALTHY, for the Pipeline
// Manager's placement candidate pool.
func (m *Manager) ListHealthy() []*types.NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.NodeInfo, 0)
	for _, n := range m.nodes {
		if n.Health == types.NodeHealthy {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Count returns the number of registered nodes, used by the Safe-Mode
// Controller's MinDatanodesRule.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// MinHealthyVolumeNum is the smallest healthy-volume count across the
// given nodes, a placement input for pipeline creation.
func MinHealthyVolumeNum(nodes []*types.NodeInfo) int {
	min := -1
	for _, n := range nodes {
		if min == -1 || n.HealthyVolumeCount < min {
			min = n.HealthyVolumeCount
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

// PipelineLimit returns the maximum number of open pipelines a node may
// participate in: either the cluster-wide override, or
// pipelines_per_metadata_volume × metadata_volume_count when the node
// has at least one healthy data volume.
func (m *Manager) PipelineLimit(n *types.NodeInfo) int {
	if m.cfg.PipelineLimitOverride > 0 {
		return m.cfg.PipelineLimitOverride
	}
	if n.HealthyVolumeCount == 0 {
		return 0
	}
	return m.cfg.PipelinesPerMetadataVolume * n.MetadataVolumeCount
}

// MinPipelineLimit is the smallest per-node pipeline limit across the
// given nodes.
func (m *Manager) MinPipelineLimit(nodes []*types.NodeInfo) int {
	min := -1
	for _, n := range nodes {
		limit := m.PipelineLimit(n)
		if min == -1 || limit < min {
			min = limit
		}
	}
	if min == -1 {
		return 0
	}
	return min
}
