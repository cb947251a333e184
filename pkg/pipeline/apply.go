package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/store"
	"github.com/apache/ozone-scm/pkg/types"
)

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Apply dispatches one committed pipeline command. It runs on the
// single-threaded apply pipeline: no lock is needed against
// other writers, only against concurrent readers of the in-memory
// indexes.
func (m *Manager) Apply(b store.Batch, op string, data json.RawMessage, dedupKey string) (interface{}, error) {
	switch op {
	case opAllocate:
		return m.applyAllocate(b, data)
	case opOpen:
		return m.applyTransition(b, data, types.PipelineOpen, []types.PipelineState{types.PipelineAllocated, types.PipelineDormant})
	case opClose:
		return m.applyClose(b, data)
	case opDormant:
		return m.applyTransition(b, data, types.PipelineDormant, []types.PipelineState{types.PipelineOpen})
	case opActivate:
		return m.applyTransition(b, data, types.PipelineOpen, []types.PipelineState{types.PipelineDormant})
	case opRemove:
		return m.applyRemove(b, data)
	default:
		return nil, scmerrors.New(scmerrors.MetadataError, fmt.Sprintf("pipeline: unknown op %q", op))
	}
}

func (m *Manager) applyAllocate(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[allocateCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode allocate")
	}
	p := cmd.Pipeline

	m.mu.Lock()
	if _, exists := m.pipelines[p.ID]; exists {
		m.mu.Unlock()
		return nil, nil
	}
	m.pipelines[p.ID] = &p
	m.byHash[p.MemberSetHash] = append(m.byHash[p.MemberSetHash], p.ID)
	m.mu.Unlock()

	if err := putPipeline(b, &p); err != nil {
		return nil, err
	}
	m.publish(events.EventPipelineCreated, string(p.ID))
	return nil, nil
}

// applyTransition applies a simple state change guarded by a set of
// permitted "from" states. An idempotent self-loop (already in `to`)
// is a silent no-op, matching the container FSM's idempotence rule
//.
func (m *Manager) applyTransition(b store.Batch, data json.RawMessage, to types.PipelineState, from []types.PipelineState) (interface{}, error) {
	var idHolder struct {
		ID types.PipelineID
	}
	if err := json.Unmarshal(data, &idHolder); err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode pipeline transition")
	}

	m.mu.Lock()
	p, ok := m.pipelines[idHolder.ID]
	if !ok {
		m.mu.Unlock()
		return nil, scmerrors.New(scmerrors.NotFound, string(idHolder.ID))
	}
	if p.State == to {
		m.mu.Unlock()
		return nil, nil
	}
	allowed := false
	for _, s := range from {
		if p.State == s {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return nil, scmerrors.New(scmerrors.InvalidStateTransition, fmt.Sprintf("pipeline %s: %s -> %s not permitted", idHolder.ID, p.State, to))
	}
	p.State = to
	snapshot := p.Clone()
	m.mu.Unlock()

	if err := putPipeline(b, snapshot); err != nil {
		return nil, err
	}

	switch to {
	case types.PipelineOpen:
		m.publish(events.EventPipelineOpened, string(idHolder.ID))
	case types.PipelineDormant:
		m.publish(events.EventPipelineDormant, string(idHolder.ID))
	}
	return nil, nil
}

func (m *Manager) applyClose(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[closeCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode close")
	}

	m.mu.Lock()
	p, ok := m.pipelines[cmd.ID]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	if p.State == types.PipelineClosed {
		m.mu.Unlock()
		return nil, nil
	}
	p.State = types.PipelineClosed
	m.removeFromHashIndexLocked(p)
	snapshot := p.Clone()
	m.mu.Unlock()

	if err := putPipeline(b, snapshot); err != nil {
		return nil, err
	}
	m.publish(events.EventPipelineClosed, string(cmd.ID))

	// Dispatched on a fresh goroutine: the finalizer's own writes go
	// through the Container Manager's gateway Submit, which must never
	// be called synchronously from inside this apply callback (
	// lock/suspension discipline — see CloseContainingNode's comment).
	if m.containerFinalizer != nil {
		go m.containerFinalizer.FinalizeContainersOnPipeline(cmd.ID)
	}
	return nil, nil
}

// removeFromHashIndexLocked must be called with m.mu held.
func (m *Manager) removeFromHashIndexLocked(p *types.Pipeline) {
	ids := m.byHash[p.MemberSetHash]
	for i, id := range ids {
		if id == p.ID {
			m.byHash[p.MemberSetHash] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func (m *Manager) applyRemove(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[removeCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode remove")
	}

	m.mu.Lock()
	p, ok := m.pipelines[cmd.ID]
	if ok {
		if p.State != types.PipelineClosed {
			m.mu.Unlock()
			return nil, scmerrors.New(scmerrors.InvalidStateTransition, "cannot remove a non-CLOSED pipeline")
		}
		delete(m.pipelines, cmd.ID)
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return nil, b.Table(store.TablePipelines).Delete([]byte(cmd.ID))
}

func (m *Manager) publish(t events.EventType, id string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(&events.Event{Type: t, Subject: events.Subject{Kind: "pipeline", ID: id}})
}

func putPipeline(b store.Batch, p *types.Pipeline) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "marshal pipeline")
	}
	return b.Table(store.TablePipelines).Put([]byte(p.ID), raw)
}

// Snapshot returns every persisted pipeline for a full FSM snapshot.
func (m *Manager) Snapshot(b store.Batch) (interface{}, error) {
	pipelines := make([]types.Pipeline, 0)
	err := b.Table(store.TablePipelines).Range(nil, false, func(_, value []byte) (bool, error) {
		var p types.Pipeline
		if err := json.Unmarshal(value, &p); err != nil {
			return false, err
		}
		pipelines = append(pipelines, p)
		return true, nil
	})
	return pipelines, err
}

// Restore replaces the pipeline table and its derived indexes.
func (m *Manager) Restore(b store.Batch, raw json.RawMessage) error {
	var pipelines []types.Pipeline
	if err := json.Unmarshal(raw, &pipelines); err != nil {
		return scmerrors.Wrap(scmerrors.MetadataError, err, "decode pipeline snapshot")
	}

	m.mu.Lock()
	m.pipelines = make(map[types.PipelineID]*types.Pipeline, len(pipelines))
	m.byHash = make(map[uint64][]types.PipelineID)
	for i := range pipelines {
		p := pipelines[i]
		m.pipelines[p.ID] = &p
		if p.State != types.PipelineClosed {
			m.byHash[p.MemberSetHash] = append(m.byHash[p.MemberSetHash], p.ID)
		}
	}
	m.mu.Unlock()

	for i := range pipelines {
		if err := putPipeline(b, &pipelines[i]); err != nil {
			return err
		}
	}
	return nil
}
