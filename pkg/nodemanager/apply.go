package nodemanager

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/store"
	"github.com/apache/ozone-scm/pkg/types"
)

// Apply is the local, non-replicating entry point the FSM (pkg/raftlog)
// invokes once per committed command, identically on every replica.
// It runs inside a single store.Update batch shared with the
// last_applied_index write.
func (m *Manager) Apply(b store.Batch, op string, data json.RawMessage, dedupKey string) (interface{}, error) {
	switch op {
	case opRegister:
		return m.applyRegister(b, data)
	case opHeartbeat:
		return m.applyHeartbeat(b, data)
	case opNodeReport:
		return m.applyNodeReport(b, data)
	case opSetHealth:
		return m.applySetHealth(b, data)
	case opRemove:
		return m.applyRemove(b, data)
	default:
		return nil, scmerrors.New(scmerrors.MetadataError, fmt.Sprintf("nodemanager: unknown op %q", op))
	}
}

func (m *Manager) applyRegister(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[registerCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode register")
	}

	m.mu.Lock()
	if _, exists := m.nodes[cmd.Node.ID]; exists {
		m.mu.Unlock()
		return RegisterResult{Success: true, AssignedClusterID: m.cfg.ClusterID}, nil
	}

	node := cmd.Node
	node.RegisteredAt = time.Unix(0, cmd.AssignedAt).UTC()
	node.LastHeartbeat = node.RegisteredAt
	m.nodes[node.ID] = &node
	m.byIP[node.IP] = node.ID
	m.byHost[node.Hostname] = node.ID
	m.mu.Unlock()

	if err := putNode(b, &node); err != nil {
		return nil, err
	}

	m.publish(events.EventNodeRegistered, string(node.ID), "node registered")
	return RegisterResult{Success: true, AssignedClusterID: m.cfg.ClusterID}, nil
}

func (m *Manager) applyHeartbeat(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[heartbeatCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode heartbeat")
	}

	m.mu.Lock()
	node, ok := m.nodes[cmd.NodeID]
	if !ok {
		m.mu.Unlock()
		return nil, scmerrors.New(scmerrors.NotFound, fmt.Sprintf("unknown node %s", cmd.NodeID))
	}
	node.LastHeartbeat = time.Unix(0, cmd.AtNanos).UTC()
	wasStale := node.Health == types.NodeStale || node.Health == types.NodeDead
	if wasStale {
		node.Health = types.NodeHealthy
	}
	snapshot := *node
	m.mu.Unlock()

	if err := putNode(b, &snapshot); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *Manager) applyNodeReport(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[nodeReportCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode node report")
	}

	m.mu.Lock()
	node, ok := m.nodes[cmd.NodeID]
	if !ok {
		m.mu.Unlock()
		m.log.Warn().Str("node_id", string(cmd.NodeID)).Msg("node report applied for unknown node, discarding")
		return nil, nil
	}
	node.StorageReports = cmd.StorageReports
	node.MetadataVolumeCount = cmd.MetadataVolumeCount
	node.HealthyVolumeCount = cmd.HealthyVolumeCount
	snapshot := *node
	m.mu.Unlock()

	return nil, putNode(b, &snapshot)
}

func (m *Manager) applySetHealth(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[setHealthCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode set health")
	}

	m.mu.Lock()
	node, ok := m.nodes[cmd.NodeID]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	prev := node.Health
	node.Health = cmd.Health
	snapshot := *node
	m.mu.Unlock()

	if err := putNode(b, &snapshot); err != nil {
		return nil, err
	}

	if prev != cmd.Health {
		switch cmd.Health {
		case types.NodeStale:
			m.publish(events.EventNodeStale, string(cmd.NodeID), "node stale")
		case types.NodeDead:
			m.publish(events.EventNodeDead, string(cmd.NodeID), "node dead")
			if m.closer != nil {
				m.closer.CloseContainingNode(cmd.NodeID)
			}
		case types.NodeDecommissioned:
			m.publish(events.EventNodeDecommissioned, string(cmd.NodeID), "node decommissioned")
		}
	}
	return nil, nil
}

func (m *Manager) applyRemove(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[removeCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode remove")
	}

	m.mu.Lock()
	node, ok := m.nodes[cmd.NodeID]
	if ok {
		delete(m.nodes, cmd.NodeID)
		delete(m.byIP, node.IP)
		delete(m.byHost, node.Hostname)
	}
	m.mu.Unlock()
	m.queues.forget(cmd.NodeID)

	if !ok {
		return nil, nil
	}
	return nil, b.Table(store.TableNodes).Delete([]byte(cmd.NodeID))
}

func (m *Manager) publish(t events.EventType, id, msg string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(&events.Event{Type: t, Message: msg, Subject: events.Subject{Kind: "node", ID: id}})
}

func putNode(b store.Batch, n *types.NodeInfo) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "marshal node")
	}
	return b.Table(store.TableNodes).Put([]byte(n.ID), raw)
}

// Snapshot returns every persisted NodeInfo for inclusion in a full
// FSM snapshot.
func (m *Manager) Snapshot(b store.Batch) (interface{}, error) {
	nodes := make([]types.NodeInfo, 0)
	err := b.Table(store.TableNodes).Range(nil, false, func(_, value []byte) (bool, error) {
		var n types.NodeInfo
		if err := json.Unmarshal(value, &n); err != nil {
			return false, err
		}
		nodes = append(nodes, n)
		return true, nil
	})
	return nodes, err
}

// Restore replaces the node table (and the in-memory indexes derived
// from it) with a decoded snapshot section.
func (m *Manager) Restore(b store.Batch, raw json.RawMessage) error {
	var nodes []types.NodeInfo
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return scmerrors.Wrap(scmerrors.MetadataError, err, "decode node snapshot")
	}

	m.mu.Lock()
	m.nodes = make(map[types.NodeID]*types.NodeInfo, len(nodes))
	m.byIP = make(map[string]types.NodeID, len(nodes))
	m.byHost = make(map[string]types.NodeID, len(nodes))
	for i := range nodes {
		n := nodes[i]
		m.nodes[n.ID] = &n
		m.byIP[n.IP] = n.ID
		m.byHost[n.Hostname] = n.ID
	}
	m.mu.Unlock()

	for i := range nodes {
		if err := putNode(b, &nodes[i]); err != nil {
			return err
		}
	}
	return nil
}
