// Package nodemanager implements the Node Manager: the authoritative
// record of every registered datanode, the heartbeat and report
// ingestion path, the health FSM sweeper, and the per-node command
// mailbox drained on heartbeat reply.
//
// Every write travels through the HA Invocation Gateway before it is
// visible; the in-memory indexes
// (byIP, byHost) are rebuilt from the persisted table on load and kept
// current inside Apply, which runs single-threaded on the apply
// pipeline so no lock is needed against other writers — only
// against concurrent readers.
package nodemanager

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/ha"
	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/store"
	"github.com/apache/ozone-scm/pkg/topology"
	"github.com/apache/ozone-scm/pkg/types"
)

// PipelineCloser is the narrow capability the Node Manager needs on the
// Pipeline Manager to cascade a DEAD-node transition into pipeline
// closure. Defined here, not in pkg/pipeline, so that
// package can depend on this one without a cycle.
type PipelineCloser interface {
	CloseContainingNode(nodeID types.NodeID)
}

// Config carries the tunables of the configuration surface that
// this manager consults.
type Config struct {
	ClusterID       string
	SCMID           string
	SoftwareVersion string

	StaleAfter  time.Duration
	DeadAfter   time.Duration
	DeadGrace   time.Duration // how long a DEAD node stays in the table before removal
	SweepTick   time.Duration
	QueueDepth  int

	PipelineLimitOverride      int // 0 means "unset, derive from metadata volumes"
	PipelinesPerMetadataVolume int
}

// Manager is the Node Manager. It implements raftlog.Applier for
// raftlog.TargetNode.
type Manager struct {
	cfg Config
	gw  *ha.Gateway
	log zerolog.Logger

	topology topology.Resolver
	bus      *events.Broker

	mu     sync.RWMutex
	nodes  map[types.NodeID]*types.NodeInfo
	byIP   map[string]types.NodeID
	byHost map[string]types.NodeID

	queues *mailboxes

	closer   PipelineCloser
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, gw *ha.Gateway, resolver topology.Resolver, bus *events.Broker, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		gw:       gw,
		log:      logger,
		topology: resolver,
		bus:      bus,
		nodes:    make(map[types.NodeID]*types.NodeInfo),
		byIP:     make(map[string]types.NodeID),
		byHost:   make(map[string]types.NodeID),
		queues:   newMailboxes(cfg.QueueDepth),
		stopCh:   make(chan struct{}),
	}
}

// SetPipelineCloser wires the Pipeline Manager in after construction,
// breaking the natural import cycle (Pipeline Manager already holds a
// reference to this Manager for healthy-node queries).
func (m *Manager) SetPipelineCloser(c PipelineCloser) {
	m.closer = c
}

// GetVersion is a pure read: cluster-id, scm-id, software version.
func (m *Manager) GetVersion() (clusterID, scmID, version string) {
	return m.cfg.ClusterID, m.cfg.SCMID, m.cfg.SoftwareVersion
}

// RegisterResult mirrors the register() return shape.
type RegisterResult struct {
	Success            bool
	AssignedClusterID  string
}

// Register persists a new NodeInfo (or is a no-op if the node already
// exists), then processes the node report carried on the same
// registration call. Topology resolution and idempotent-return
// timestamps must be produced here, before Submit, per the gateway's
// determinism contract — the apply-side handler never resolves
// topology or reads the clock itself. The report is applied through
// ProcessNodeReport rather than folded into the register command, so
// registration and a standalone report update run through the
// identical apply path.
func (m *Manager) Register(node types.NodeInfo, report []types.StorageReport, metaVolumes, healthyVolumes int) (RegisterResult, error) {
	m.mu.RLock()
	_, exists := m.nodes[node.ID]
	m.mu.RUnlock()
	if exists {
		return RegisterResult{Success: true, AssignedClusterID: m.cfg.ClusterID}, nil
	}

	node.Location = m.topology.Resolve(node.Hostname, node.IP)
	node.Health = types.NodeHealthy
	node.PipelineIDs = map[types.PipelineID]struct{}{}
	node.ContainerIDs = map[types.ContainerID]struct{}{}

	cmd := registerCmd{Node: node, AssignedAt: time.Now().UnixNano()}
	if _, err := m.gw.Submit(raftlog.TargetNode, opRegister, cmd, string(node.ID)); err != nil {
		return RegisterResult{}, err
	}

	if err := m.ProcessNodeReport(node.ID, report, metaVolumes, healthyVolumes); err != nil {
		m.log.Warn().Err(err).Str("node_id", string(node.ID)).Msg("failed to persist node report on registration")
	}
	return RegisterResult{Success: true, AssignedClusterID: m.cfg.ClusterID}, nil
}

// ProcessHeartbeat records the heartbeat timestamp through the gateway,
// processes the storage report piggybacked on the same call (if any),
// then locally drains the node's command mailbox. The drain step is
// not replicated: the mailbox is leader-only ephemeral state.
func (m *Manager) ProcessHeartbeat(nodeID types.NodeID, report []types.StorageReport, metaVolumes, healthyVolumes int) ([]types.DatanodeCommand, error) {
	m.mu.RLock()
	_, ok := m.nodes[nodeID]
	m.mu.RUnlock()
	if !ok {
		return nil, scmerrors.New(scmerrors.NotFound, fmt.Sprintf("unknown node %s", nodeID))
	}

	if len(report) > 0 {
		if err := m.ProcessNodeReport(nodeID, report, metaVolumes, healthyVolumes); err != nil {
			return nil, err
		}
	}

	cmd := heartbeatCmd{NodeID: nodeID, AtNanos: time.Now().UnixNano()}
	if _, err := m.gw.Submit(raftlog.TargetNode, opHeartbeat, cmd, ""); err != nil {
		return nil, err
	}
	return m.queues.drain(nodeID), nil
}

// ProcessNodeReport updates storage reports and volume counts. Reports
// from an unknown node are discarded with a warning, not an error, per
// the failure-handling note.
func (m *Manager) ProcessNodeReport(nodeID types.NodeID, reports []types.StorageReport, metaVolumes, healthyVolumes int) error {
	m.mu.RLock()
	_, ok := m.nodes[nodeID]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn().Str("node_id", string(nodeID)).Msg("node report from unknown node discarded")
		return nil
	}

	cmd := nodeReportCmd{NodeID: nodeID, StorageReports: reports, MetadataVolumeCount: metaVolumes, HealthyVolumeCount: healthyVolumes}
	_, err := m.gw.Submit(raftlog.TargetNode, opNodeReport, cmd, "")
	return err
}

// AddDatanodeCommand enqueues a command into a node's mailbox. Only the
// current leader may enqueue: a term-less command is
// dropped outright on a follower; a term-stamped command is checked
// for freshness against the gateway's current term.
func (m *Manager) AddDatanodeCommand(nodeID types.NodeID, cmd types.DatanodeCommand) error {
	if !m.gw.IsLeader() {
		if cmd.Term == 0 {
			return nil // dropped: no term, not leader
		}
		return scmerrors.NotLeaderErr(m.gw.LeaderHint())
	}
	term := m.gw.Term()
	if cmd.Term != 0 && cmd.Term < term {
		return nil // dropped: stale term
	}
	cmd.Term = term
	cmd.IssuedAt = time.Now()

	m.mu.RLock()
	_, ok := m.nodes[nodeID]
	m.mu.RUnlock()
	if !ok {
		return scmerrors.New(scmerrors.NotFound, fmt.Sprintf("unknown node %s", nodeID))
	}

	m.queues.enqueue(nodeID, cmd)
	return nil
}

// Remove submits a command deleting the node record outright, used by
// the sweeper once a DEAD node's grace period has elapsed.
func (m *Manager) Remove(nodeID types.NodeID) error {
	_, err := m.gw.Submit(raftlog.TargetNode, opRemove, removeCmd{NodeID: nodeID}, "")
	return err
}

// Stop halts the health sweeper goroutine, if running.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

var _ raftlog.Applier = (*Manager)(nil)

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
