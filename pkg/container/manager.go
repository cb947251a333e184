// Package container implements the Container Manager: the exhaustive
// lifecycle FSM over OPEN/CLOSING/QUASI_CLOSED/CLOSED/DELETING/DELETED,
// allocation against an OPEN pipeline of matching (type, factor),
// pre-allocation thresholding for get_matching, the close-cascade when
// a pipeline leaves OPEN, and the in-memory-only replica index.
package container

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/ha"
	"github.com/apache/ozone-scm/pkg/pipeline"
	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/types"
)

// PipelineSource is the narrow capability this manager needs on the
// Pipeline Manager: find or create an OPEN pipeline.
type PipelineSource interface {
	FindOpen(rtype types.ReplicationType, factor int) *types.Pipeline
	CreatePipeline(rtype types.ReplicationType, factor int) (*types.Pipeline, error)
}

// Config carries the tunables this manager consults.
type Config struct {
	ContainerSizeBytes    int64
	MinContainersPerDN    int
	MinPipelineCountPerDN int
}

// Manager is the Container Manager. It implements raftlog.Applier for
// raftlog.TargetContainer.
type Manager struct {
	cfg       Config
	gw        *ha.Gateway
	pipelines PipelineSource
	bus       *events.Broker
	log       zerolog.Logger

	mu         sync.RWMutex
	containers map[types.ContainerID]*types.ContainerInfo
	nextID     types.ContainerID // mirrors the persisted counter, advanced only in Apply
	dedup      map[string]types.ContainerID
	byPipeline map[types.PipelineID]map[types.ContainerID]struct{} // OPEN containers only

	replicaMu sync.RWMutex
	replicas  map[types.ContainerID]map[types.NodeID]*types.ContainerReplica
}

func New(cfg Config, gw *ha.Gateway, pipelines *pipeline.Manager, bus *events.Broker, logger zerolog.Logger) *Manager {
	m := &Manager{
		cfg:        cfg,
		gw:         gw,
		pipelines:  pipelines,
		bus:        bus,
		log:        logger,
		containers: make(map[types.ContainerID]*types.ContainerInfo),
		dedup:      make(map[string]types.ContainerID),
		byPipeline: make(map[types.PipelineID]map[types.ContainerID]struct{}),
		replicas:   make(map[types.ContainerID]map[types.NodeID]*types.ContainerReplica),
	}
	pipelines.SetContainerRefChecker(m)
	pipelines.SetContainerFinalizer(m)
	return m
}

var _ raftlog.Applier = (*Manager)(nil)
var _ pipeline.ContainerRefChecker = (*Manager)(nil)
var _ pipeline.ContainerFinalizer = (*Manager)(nil)

// Allocate implements the allocate(type, factor, owner). If no
// OPEN pipeline of matching (type, factor) exists, one is created
// first via the Pipeline Manager.
func (m *Manager) Allocate(rtype types.ReplicationType, factor int, owner string, dedupKey string) (*types.ContainerInfo, error) {
	p := m.pipelines.FindOpen(rtype, factor)
	if p == nil {
		created, err := m.pipelines.CreatePipeline(rtype, factor)
		if err != nil {
			return nil, err
		}
		p = created
	}

	cmd := allocateCmd{PipelineID: p.ID, Owner: owner, Type: rtype, Factor: factor, CreatedAt: time.Now().UnixNano()}
	result, err := m.gw.Submit(raftlog.TargetContainer, opAllocate, cmd, dedupKey)
	if err != nil {
		return nil, err
	}
	info, _ := result.(*types.ContainerInfo)
	return info, nil
}

// GetMatching implements the get_matching. If the OPEN container count
// on the pipeline is below the pre-allocation threshold, a new
// container is allocated first, so the candidate set selection runs
// against includes it; only if nothing in that refreshed set matches
// does a second container get allocated.
func (m *Manager) GetMatching(size int64, owner string, pipelineID types.PipelineID, exclude map[types.ContainerID]struct{}) (*types.ContainerInfo, error) {
	threshold := m.preallocationThreshold()

	p := m.pipelineOf(pipelineID)
	if p == nil {
		return nil, scmerrors.New(scmerrors.NotFound, string(pipelineID))
	}

	if m.openCount(pipelineID) < threshold {
		if _, err := m.Allocate(p.Type, p.Factor, owner, ""); err != nil {
			m.log.Warn().Err(err).Str("pipeline_id", string(pipelineID)).Msg("pre-allocation failed")
		}
	}

	if match := m.findMatch(size, owner, pipelineID, exclude); match != nil {
		return match, nil
	}

	return m.Allocate(p.Type, p.Factor, owner, "")
}

func (m *Manager) openCount(pipelineID types.PipelineID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPipeline[pipelineID])
}

func (m *Manager) findMatch(size int64, owner string, pipelineID types.PipelineID, exclude map[types.ContainerID]struct{}) *types.ContainerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id := range m.byPipeline[pipelineID] {
		if _, excluded := exclude[id]; excluded {
			continue
		}
		c := m.containers[id]
		if c == nil || c.Owner != owner {
			continue
		}
		if m.cfg.ContainerSizeBytes-c.UsedBytes < size {
			continue
		}
		return c.Clone()
	}
	return nil
}

func (m *Manager) pipelineOf(id types.PipelineID) *types.Pipeline {
	if src, ok := m.pipelines.(interface {
		GetPipeline(types.PipelineID) *types.Pipeline
	}); ok {
		return src.GetPipeline(id)
	}
	return nil
}

// preallocationThreshold is ceil(min_containers_per_dn /
// min_pipeline_count_per_dn).
func (m *Manager) preallocationThreshold() int {
	if m.cfg.MinPipelineCountPerDN <= 0 {
		return m.cfg.MinContainersPerDN
	}
	return int(math.Ceil(float64(m.cfg.MinContainersPerDN) / float64(m.cfg.MinPipelineCountPerDN)))
}

// Transition drives a container through one lifecycle event.
func (m *Manager) Transition(id types.ContainerID, event string) error {
	_, err := m.gw.Submit(raftlog.TargetContainer, opTransition, transitionCmd{ID: id, Event: event}, "")
	return err
}

// FinalizeContainersOnPipeline implements pipeline.ContainerFinalizer.
// It is invoked from a goroutine spawned by the Pipeline Manager's
// applyClose, never inline (see that file's comment on why), so
// calling Submit here is safe.
func (m *Manager) FinalizeContainersOnPipeline(pipelineID types.PipelineID) {
	m.mu.RLock()
	ids := make([]types.ContainerID, 0, len(m.byPipeline[pipelineID]))
	for id := range m.byPipeline[pipelineID] {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Transition(id, EventFinalize); err != nil && scmerrors.KindOf(err) != scmerrors.NotLeader {
			m.log.Warn().Err(err).Uint64("container_id", uint64(id)).Msg("close-cascade finalize failed")
		}
	}
}

// HasOpenContainerOn implements pipeline.ContainerRefChecker.
func (m *Manager) HasOpenContainerOn(pipelineID types.PipelineID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPipeline[pipelineID]) > 0
}

// UpdateReplica and RemoveReplica mutate the in-memory replica set
// only: they are never persisted to the replicated log,
// idempotent on (ContainerId, NodeId).
func (m *Manager) UpdateReplica(r types.ContainerReplica) {
	m.replicaMu.Lock()
	defer m.replicaMu.Unlock()
	set, ok := m.replicas[r.ContainerID]
	if !ok {
		set = make(map[types.NodeID]*types.ContainerReplica)
		m.replicas[r.ContainerID] = set
	}
	rc := r
	rc.LastSeen = time.Now()
	set[r.NodeID] = &rc
}

func (m *Manager) RemoveReplica(containerID types.ContainerID, nodeID types.NodeID) {
	m.replicaMu.Lock()
	defer m.replicaMu.Unlock()
	if set, ok := m.replicas[containerID]; ok {
		delete(set, nodeID)
		if len(set) == 0 {
			delete(m.replicas, containerID)
		}
	}
}

// Replicas returns a defensive copy of a container's known replicas.
func (m *Manager) Replicas(containerID types.ContainerID) []*types.ContainerReplica {
	m.replicaMu.RLock()
	defer m.replicaMu.RUnlock()
	set := m.replicas[containerID]
	out := make([]*types.ContainerReplica, 0, len(set))
	for _, r := range set {
		rc := *r
		out = append(out, &rc)
	}
	return out
}

// ReplicaCount is the number of distinct nodes reporting a replica of
// containerID, used by the Safe-Mode Controller's ContainerReplicaRule.
func (m *Manager) ReplicaCount(containerID types.ContainerID) int {
	m.replicaMu.RLock()
	defer m.replicaMu.RUnlock()
	return len(m.replicas[containerID])
}
