package pipeline

import "github.com/apache/ozone-scm/pkg/types"

const (
	opAllocate = "allocate"
	opOpen     = "open"
	opClose    = "close"
	opDormant  = "dormant"
	opActivate = "activate"
	opRemove   = "remove"
)

// allocateCmd is the payload for constructing a pipeline in ALLOCATED
// state. ID and CreatedAt are generated by the public CreatePipeline
// method before Submit, per the gateway's determinism contract.
type allocateCmd struct {
	Pipeline types.Pipeline
}

type openCmd struct {
	ID types.PipelineID
}

type closeCmd struct {
	ID types.PipelineID
}

type dormantCmd struct {
	ID types.PipelineID
}

type activateCmd struct {
	ID types.PipelineID
}

type removeCmd struct {
	ID types.PipelineID
}
