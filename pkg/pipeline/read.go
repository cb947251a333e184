package pipeline

import "github.com/apache/ozone-scm/pkg/types"

// GetPipeline returns a defensive copy of one pipeline's record, or
// nil.
func (m *Manager) GetPipeline(id types.PipelineID) *types.Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipelines[id].Clone()
}

// ListPipelines returns a defensive copy of every pipeline. It also
// satisfies pkg/metrics.PipelineSource.
func (m *Manager) ListPipelines() []*types.Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, p.Clone())
	}
	return out
}

// FindOpen returns an arbitrary OPEN pipeline of the given (type,
// factor), or nil if none exists — the Container Manager's allocate()
// consults this before falling back to CreatePipeline.
func (m *Manager) FindOpen(rtype types.ReplicationType, factor int) *types.Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pipelines {
		if p.State == types.PipelineOpen && p.Type == rtype && p.Factor == factor {
			return p.Clone()
		}
	}
	return nil
}

// IsOpen reports whether a pipeline exists and is OPEN, the invariant
// container allocation depends on (: "for all containers C with
// state OPEN: the owning pipeline is OPEN").
func (m *Manager) IsOpen(id types.PipelineID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	return ok && p.State == types.PipelineOpen
}
