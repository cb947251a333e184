package nodemanager

import (
	"sync"

	"github.com/apache/ozone-scm/pkg/types"
)

// mailboxes is the bounded, multi-producer/single-consumer command
// queue per node: a full queue drops its oldest entry rather than
// blocking the producer.
type mailboxes struct {
	mu    sync.Mutex
	depth int
	byID  map[types.NodeID][]types.DatanodeCommand
}

func newMailboxes(depth int) *mailboxes {
	if depth <= 0 {
		depth = 100
	}
	return &mailboxes{depth: depth, byID: make(map[types.NodeID][]types.DatanodeCommand)}
}

func (m *mailboxes) enqueue(id types.NodeID, cmd types.DatanodeCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.byID[id]
	q = append(q, cmd)
	if len(q) > m.depth {
		q = q[len(q)-m.depth:] // drop oldest
	}
	m.byID[id] = q
}

// drain removes and returns every queued command for id, in submission
// order, exactly once — the heartbeat reply path is the single
// consumer.
func (m *mailboxes) drain(id types.NodeID) []types.DatanodeCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.byID[id]
	if len(q) == 0 {
		return nil
	}
	delete(m.byID, id)
	return q
}

func (m *mailboxes) forget(id types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}
