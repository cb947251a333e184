package container

import "github.com/apache/ozone-scm/pkg/types"

const (
	opAllocate  = "allocate"
	opTransition = "transition"
)

// allocateCmd is the payload for allocate(). Unlike node/pipeline
// creation, the ContainerId itself is NOT precomputed by the caller:
// it comes from the gateway-owned monotone counter, advanced
// deterministically inside Apply so every replica derives the
// identical id from the identical log position.
type allocateCmd struct {
	PipelineID types.PipelineID
	Owner      string
	Type       types.ReplicationType
	Factor     int
	CreatedAt  int64 // unix nanos, precomputed for determinism
}

// transitionCmd drives one lifecycle event against a container.
type transitionCmd struct {
	ID    types.ContainerID
	Event string
}
