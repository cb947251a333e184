package pipeline

import (
	"sync"
	"time"

	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/types"
)

// quorumTracker holds the in-memory, unreplicated bookkeeping of which
// members have acknowledged a freshly allocated pipeline. It exists
// only on the replica that initiated CreatePipeline (the leader at
// that moment) and is never persisted: the ALLOCATED→OPEN transition
// waits on it asynchronously and with a bound, never as a log entry.
type quorumTracker struct {
	mu      sync.Mutex
	entries map[types.PipelineID]*trackEntry
}

type trackEntry struct {
	needed int
	acked  map[types.NodeID]struct{}
	done   chan struct{}
	once   sync.Once
}

func newQuorumTracker() *quorumTracker {
	return &quorumTracker{entries: make(map[types.PipelineID]*trackEntry)}
}

func (q *quorumTracker) start(id types.PipelineID, memberCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	needed := memberCount/2 + 1
	q.entries[id] = &trackEntry{needed: needed, acked: make(map[types.NodeID]struct{}), done: make(chan struct{})}
}

// ack records one member's pipeline-report acknowledgment. Returns
// true the moment quorum is first reached.
func (q *quorumTracker) ack(id types.PipelineID, node types.NodeID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return false
	}
	e.acked[node] = struct{}{}
	if len(e.acked) >= e.needed {
		reached := false
		e.once.Do(func() { close(e.done); reached = true })
		return reached
	}
	return false
}

func (q *quorumTracker) wait(id types.PipelineID, timeout time.Duration) bool {
	q.mu.Lock()
	e, ok := q.entries[id]
	q.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (q *quorumTracker) forget(id types.PipelineID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
}

// RecordPipelineReport is called from the datanode-facing RPC surface
// (ReportPipeline) when a member acknowledges a newly created
// pipeline. It has no effect on pipelines this replica did not itself
// create the quorum tracker for — followers simply drop the report on
// the floor here, since only the leader that ran CreatePipeline is
// waiting on it.
func (m *Manager) RecordPipelineReport(id types.PipelineID, node types.NodeID) {
	m.quorum.ack(id, node)
}

func (m *Manager) waitForQuorum(id types.PipelineID) {
	defer m.quorum.forget(id)

	timeout := m.cfg.CreateTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if m.quorum.wait(id, timeout) {
		if _, err := m.gw.Submit(raftlog.TargetPipeline, opOpen, openCmd{ID: id}, ""); err != nil {
			m.log.Warn().Err(err).Str("pipeline_id", string(id)).Msg("pipeline open submit failed")
		}
		return
	}

	m.log.Warn().Str("pipeline_id", string(id)).Msg("pipeline creation quorum wait timed out, closing")
	if err := m.ClosePipeline(id); err != nil {
		m.log.Warn().Err(err).Str("pipeline_id", string(id)).Msg("pipeline timeout close failed")
	}
}
