package container

import (
	"github.com/looplab/fsm"

	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/types"
)

// Lifecycle events accepted by the container state table.
const (
	EventFinalize   = "FINALIZE"
	EventQuasiClose = "QUASI_CLOSE"
	EventClose      = "CLOSE"
	EventForceClose = "FORCE_CLOSE"
	EventDelete     = "DELETE"
	EventCleanup    = "CLEANUP"
)

// lifecycleEvents is the exhaustive transition table. It is built once
// and used as a stateless validator: a fresh fsm.FSM is constructed
// per call, seeded at the container's persisted state, so no
// looplab/fsm instance is itself long-lived or persisted.
var lifecycleEvents = fsm.Events{
	{Name: EventFinalize, Src: []string{string(types.ContainerOpen)}, Dst: string(types.ContainerClosing)},
	{Name: EventQuasiClose, Src: []string{string(types.ContainerClosing)}, Dst: string(types.ContainerQuasiClosed)},
	{Name: EventClose, Src: []string{string(types.ContainerClosing)}, Dst: string(types.ContainerClosed)},
	{Name: EventForceClose, Src: []string{string(types.ContainerQuasiClosed)}, Dst: string(types.ContainerClosed)},
	{Name: EventDelete, Src: []string{string(types.ContainerClosed)}, Dst: string(types.ContainerDeleting)},
	{Name: EventCleanup, Src: []string{string(types.ContainerDeleting)}, Dst: string(types.ContainerDeleted)},
}

// eventTarget maps each event to the state rank it drives toward, used
// to detect the idempotent self-loop / already-passed case before
// consulting looplab/fsm at all.
var eventTarget = map[string]types.ContainerState{
	EventFinalize:   types.ContainerClosing,
	EventQuasiClose: types.ContainerQuasiClosed,
	EventClose:      types.ContainerClosed,
	EventForceClose: types.ContainerClosed,
	EventDelete:     types.ContainerDeleting,
	EventCleanup:    types.ContainerDeleted,
}

// applyEvent validates and computes the next state for a container
// lifecycle event, per : an event whose target state has
// already been reached or passed (by monotone rank) is accepted as a
// no-op; every other disallowed transition is InvalidStateTransition.
func applyEvent(current types.ContainerState, event string) (types.ContainerState, error) {
	target, ok := eventTarget[event]
	if !ok {
		return current, scmerrors.New(scmerrors.InvalidStateTransition, "unknown container lifecycle event "+event)
	}
	if current.Rank() >= target.Rank() {
		return current, nil
	}

	f := fsm.NewFSM(string(current), lifecycleEvents, fsm.Callbacks{})
	if err := f.Event(event); err != nil {
		return current, scmerrors.New(scmerrors.InvalidStateTransition, err.Error())
	}
	return types.ContainerState(f.Current()), nil
}
