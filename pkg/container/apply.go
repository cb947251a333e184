package container

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/store"
	"github.com/apache/ozone-scm/pkg/types"
)

const metaNextContainerIDKey = "next_container_id"

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Apply dispatches one committed container command.
func (m *Manager) Apply(b store.Batch, op string, data json.RawMessage, dedupKey string) (interface{}, error) {
	switch op {
	case opAllocate:
		return m.applyAllocate(b, data, dedupKey)
	case opTransition:
		return m.applyTransition(b, data)
	default:
		return nil, scmerrors.New(scmerrors.MetadataError, fmt.Sprintf("container: unknown op %q", op))
	}
}

func (m *Manager) applyAllocate(b store.Batch, data json.RawMessage, dedupKey string) (interface{}, error) {
	cmd, err := decode[allocateCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode allocate")
	}

	m.mu.Lock()
	if dedupKey != "" {
		if existing, ok := m.dedup[dedupKey]; ok {
			c := m.containers[existing]
			m.mu.Unlock()
			return c.Clone(), nil
		}
	}

	meta := b.Table(store.TableMeta)
	m.nextID++
	id := m.nextID

	c := &types.ContainerInfo{
		ID:             id,
		PipelineID:     cmd.PipelineID,
		State:          types.ContainerOpen,
		Owner:          cmd.Owner,
		Type:           cmd.Type,
		Factor:         cmd.Factor,
		StateEnteredAt: time.Unix(0, cmd.CreatedAt).UTC(),
		CreatedAt:      time.Unix(0, cmd.CreatedAt).UTC(),
	}
	m.containers[id] = c
	if dedupKey != "" {
		m.dedup[dedupKey] = id
	}
	set, ok := m.byPipeline[cmd.PipelineID]
	if !ok {
		set = make(map[types.ContainerID]struct{})
		m.byPipeline[cmd.PipelineID] = set
	}
	set[id] = struct{}{}
	snapshot := c.Clone()
	m.mu.Unlock()

	if err := meta.Put([]byte(metaNextContainerIDKey), []byte(strconv.FormatUint(uint64(id), 10))); err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "persist container id counter")
	}
	if err := putContainer(b, snapshot); err != nil {
		return nil, err
	}

	m.publish(events.EventContainerAllocated, id)
	return snapshot, nil
}

func (m *Manager) applyTransition(b store.Batch, data json.RawMessage) (interface{}, error) {
	cmd, err := decode[transitionCmd](data)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.MetadataError, err, "decode transition")
	}

	m.mu.Lock()
	c, ok := m.containers[cmd.ID]
	if !ok {
		m.mu.Unlock()
		return nil, scmerrors.New(scmerrors.NotFound, fmt.Sprintf("container %d", cmd.ID))
	}

	next, err := applyEvent(c.State, cmd.Event)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	changed := next != c.State
	if changed {
		c.State = next
		c.StateEnteredAt = time.Now()
		if next != types.ContainerOpen {
			if set, ok := m.byPipeline[c.PipelineID]; ok {
				delete(set, c.ID)
				if len(set) == 0 {
					delete(m.byPipeline, c.PipelineID)
				}
			}
		}
	}
	snapshot := c.Clone()
	m.mu.Unlock()

	if !changed {
		return snapshot, nil
	}
	if err := putContainer(b, snapshot); err != nil {
		return nil, err
	}

	switch next {
	case types.ContainerClosed:
		m.publish(events.EventContainerClosed, cmd.ID)
	case types.ContainerDeleted:
		m.publish(events.EventContainerDeleted, cmd.ID)
	}
	return snapshot, nil
}

func (m *Manager) publish(t events.EventType, id types.ContainerID) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(&events.Event{Type: t, Subject: events.Subject{Kind: "container", ID: strconv.FormatUint(uint64(id), 10)}})
}

func putContainer(b store.Batch, c *types.ContainerInfo) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "marshal container")
	}
	key := strconv.FormatUint(uint64(c.ID), 10)
	return b.Table(store.TableContainers).Put([]byte(key), raw)
}

type containerSnapshot struct {
	NextID     types.ContainerID
	Dedup      map[string]types.ContainerID
	Containers []types.ContainerInfo
}

// Snapshot returns every persisted container plus the id counter and
// dedup index, for inclusion in a full FSM snapshot.
func (m *Manager) Snapshot(b store.Batch) (interface{}, error) {
	m.mu.RLock()
	dedupCopy := make(map[string]types.ContainerID, len(m.dedup))
	for k, v := range m.dedup {
		dedupCopy[k] = v
	}
	nextID := m.nextID
	m.mu.RUnlock()

	containers := make([]types.ContainerInfo, 0)
	err := b.Table(store.TableContainers).Range(nil, false, func(_, value []byte) (bool, error) {
		var c types.ContainerInfo
		if err := json.Unmarshal(value, &c); err != nil {
			return false, err
		}
		containers = append(containers, c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return containerSnapshot{NextID: nextID, Dedup: dedupCopy, Containers: containers}, nil
}

// Restore replaces the container table and every derived in-memory
// index from a decoded snapshot section.
func (m *Manager) Restore(b store.Batch, raw json.RawMessage) error {
	var snap containerSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return scmerrors.Wrap(scmerrors.MetadataError, err, "decode container snapshot")
	}

	m.mu.Lock()
	m.containers = make(map[types.ContainerID]*types.ContainerInfo, len(snap.Containers))
	m.byPipeline = make(map[types.PipelineID]map[types.ContainerID]struct{})
	m.dedup = snap.Dedup
	if m.dedup == nil {
		m.dedup = make(map[string]types.ContainerID)
	}
	m.nextID = snap.NextID
	for i := range snap.Containers {
		c := snap.Containers[i]
		m.containers[c.ID] = &c
		if c.State == types.ContainerOpen {
			set, ok := m.byPipeline[c.PipelineID]
			if !ok {
				set = make(map[types.ContainerID]struct{})
				m.byPipeline[c.PipelineID] = set
			}
			set[c.ID] = struct{}{}
		}
	}
	m.mu.Unlock()

	for i := range snap.Containers {
		if err := putContainer(b, &snap.Containers[i]); err != nil {
			return err
		}
	}
	return b.Table(store.TableMeta).Put([]byte(metaNextContainerIDKey), []byte(strconv.FormatUint(uint64(snap.NextID), 10)))
}
