package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/ha"
	"github.com/apache/ozone-scm/pkg/nodemanager"
	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/types"
)

// ContainerRefChecker is the narrow capability this manager needs on
// the Container Manager to defer store removal of a CLOSED pipeline
// until no OPEN container still references it.
type ContainerRefChecker interface {
	HasOpenContainerOn(pipelineID types.PipelineID) bool
}

// ContainerFinalizer is the narrow capability this manager needs on the
// Container Manager to drive every OPEN container on a pipeline
// through FINALIZE when that pipeline leaves OPEN.
type ContainerFinalizer interface {
	FinalizeContainersOnPipeline(pipelineID types.PipelineID)
}

// Config carries the tunables this manager consults.
type Config struct {
	CreateTimeout time.Duration
}

// Manager is the Pipeline Manager. It implements raftlog.Applier for
// raftlog.TargetPipeline.
type Manager struct {
	cfg    Config
	gw     *ha.Gateway
	nodes  *nodemanager.Manager
	policy PlacementPolicy
	bus    *events.Broker
	log    zerolog.Logger

	mu        sync.RWMutex
	pipelines map[types.PipelineID]*types.Pipeline
	// byHash indexes non-CLOSED pipelines by member-set hash, for the
	// duplicate-creation short circuit.
	byHash map[uint64][]types.PipelineID

	quorum *quorumTracker

	containerRefs      ContainerRefChecker
	containerFinalizer ContainerFinalizer
}

func New(cfg Config, gw *ha.Gateway, nodes *nodemanager.Manager, policy PlacementPolicy, bus *events.Broker, logger zerolog.Logger) *Manager {
	if policy == nil {
		policy = RandomPlacement
	}
	m := &Manager{
		cfg:       cfg,
		gw:        gw,
		nodes:     nodes,
		policy:    policy,
		bus:       bus,
		log:       logger,
		pipelines: make(map[types.PipelineID]*types.Pipeline),
		byHash:    make(map[uint64][]types.PipelineID),
		quorum:    newQuorumTracker(),
	}
	nodes.SetPipelineCloser(m)
	return m
}

// SetContainerRefChecker wires the Container Manager in after
// construction, mirroring nodemanager.Manager.SetPipelineCloser.
func (m *Manager) SetContainerRefChecker(c ContainerRefChecker) {
	m.containerRefs = c
}

// SetContainerFinalizer wires in the close-cascade callback.
func (m *Manager) SetContainerFinalizer(c ContainerFinalizer) {
	m.containerFinalizer = c
}

var _ raftlog.Applier = (*Manager)(nil)
var _ nodemanager.PipelineCloser = (*Manager)(nil)

// CreatePipeline is the single entrypoint for allocating a new pipeline.
func (m *Manager) CreatePipeline(rtype types.ReplicationType, factor int) (*types.Pipeline, error) {
	exclude := m.exclusionSet(rtype, factor)

	candidates := m.nodes.ListHealthy()
	chosen, err := m.policy(candidates, exclude, factor, 0)
	if err != nil {
		return nil, scmerrors.New(scmerrors.InsufficientDatanodes, err.Error())
	}
	if len(chosen) != factor {
		return nil, scmerrors.New(scmerrors.InsufficientDatanodes, fmt.Sprintf("need %d nodes, placement returned %d", factor, len(chosen)))
	}

	hash := memberSetHash(chosen)
	if existing := m.findNonClosedByHash(rtype, factor, hash); existing != nil {
		return existing, nil
	}

	p := types.Pipeline{
		ID:            types.PipelineID(uuid.NewString()),
		Type:          rtype,
		Factor:        factor,
		Members:       chosen,
		State:         types.PipelineAllocated,
		CreatedAt:     time.Now(),
		MemberSetHash: hash,
		ContainerIDs:  map[types.ContainerID]struct{}{},
	}

	if _, err := m.gw.Submit(raftlog.TargetPipeline, opAllocate, allocateCmd{Pipeline: p}, string(p.ID)); err != nil {
		return nil, err
	}

	for _, member := range chosen {
		cmd := types.DatanodeCommand{Type: types.CmdCreatePipeline, PipelineID: p.ID, Members: chosen}
		if err := m.nodes.AddDatanodeCommand(member, cmd); err != nil {
			m.log.Warn().Err(err).Str("pipeline_id", string(p.ID)).Str("node_id", string(member)).Msg("CreatePipeline command enqueue failed")
		}
	}

	m.quorum.start(p.ID, len(chosen))
	go m.waitForQuorum(p.ID)

	got := m.GetPipeline(p.ID)
	return got, nil
}

// exclusionSet is the union of NodeIds across every ALLOCATED/OPEN/
// DORMANT pipeline of this (type, factor).
func (m *Manager) exclusionSet(rtype types.ReplicationType, factor int) map[types.NodeID]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[types.NodeID]struct{})
	for _, p := range m.pipelines {
		if p.Type != rtype || p.Factor != factor {
			continue
		}
		switch p.State {
		case types.PipelineAllocated, types.PipelineOpen, types.PipelineDormant:
			for _, n := range p.Members {
				set[n] = struct{}{}
			}
		}
	}
	return set
}

func (m *Manager) findNonClosedByHash(rtype types.ReplicationType, factor int, hash uint64) *types.Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.byHash[hash] {
		p, ok := m.pipelines[id]
		if !ok || p.State == types.PipelineClosed {
			continue
		}
		if p.Type == rtype && p.Factor == factor {
			return p.Clone()
		}
	}
	return nil
}

// ClosePipeline drives a pipeline to CLOSED and enqueues ClosePipeline
// on every member. Idempotent: closing an already-CLOSED pipeline is a
// no-op.
func (m *Manager) ClosePipeline(id types.PipelineID) error {
	p := m.GetPipeline(id)
	if p == nil {
		return scmerrors.New(scmerrors.NotFound, string(id))
	}
	if p.State == types.PipelineClosed {
		return nil
	}
	if _, err := m.gw.Submit(raftlog.TargetPipeline, opClose, closeCmd{ID: id}, ""); err != nil {
		return err
	}
	for _, member := range p.Members {
		cmd := types.DatanodeCommand{Type: types.CmdClosePipeline, PipelineID: id}
		if err := m.nodes.AddDatanodeCommand(member, cmd); err != nil {
			m.log.Warn().Err(err).Str("pipeline_id", string(id)).Msg("ClosePipeline command enqueue failed")
		}
	}
	return nil
}

// DeactivatePipeline transitions OPEN → DORMANT on transient member
// unavailability.
func (m *Manager) DeactivatePipeline(id types.PipelineID) error {
	_, err := m.gw.Submit(raftlog.TargetPipeline, opDormant, dormantCmd{ID: id}, "")
	return err
}

// ActivatePipeline transitions DORMANT → OPEN on recovery.
func (m *Manager) ActivatePipeline(id types.PipelineID) error {
	_, err := m.gw.Submit(raftlog.TargetPipeline, opActivate, activateCmd{ID: id}, "")
	return err
}

// CloseContainingNode implements nodemanager.PipelineCloser. It is
// invoked from inside the Node Manager's Apply on a DEAD transition;
// dispatch runs on a fresh goroutine, never inline, because Submit
// blocks on a raft.Apply future that the very apply goroutine calling
// this method is responsible for resolving — a synchronous call here
// would deadlock the replica.
func (m *Manager) CloseContainingNode(nodeID types.NodeID) {
	m.mu.RLock()
	var affected []types.PipelineID
	for id, p := range m.pipelines {
		if p.State == types.PipelineClosed {
			continue
		}
		for _, member := range p.Members {
			if member == nodeID {
				affected = append(affected, id)
				break
			}
		}
	}
	m.mu.RUnlock()

	for _, id := range affected {
		go func(id types.PipelineID) {
			if err := m.ClosePipeline(id); err != nil && scmerrors.KindOf(err) != scmerrors.NotLeader {
				m.log.Warn().Err(err).Str("pipeline_id", string(id)).Msg("cascade close on dead node failed")
			}
		}(id)
	}
}

// RemoveIfUnreferenced submits removal of a CLOSED pipeline once the
// Container Manager confirms no OPEN container references it.
func (m *Manager) RemoveIfUnreferenced(id types.PipelineID) {
	if m.containerRefs != nil && m.containerRefs.HasOpenContainerOn(id) {
		return
	}
	if _, err := m.gw.Submit(raftlog.TargetPipeline, opRemove, removeCmd{ID: id}, ""); err != nil {
		m.log.Warn().Err(err).Str("pipeline_id", string(id)).Msg("pipeline removal submit failed")
	}
}
