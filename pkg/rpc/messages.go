package rpc

import "github.com/apache/ozone-scm/pkg/types"

// ErrorCode is the discriminated result code carried on every
// response instead of a transport-level error so that a typed
// failure (NotFound, NotLeader, ...) survives marshaling intact.
type ErrorCode string

const (
	ErrNone                   ErrorCode = ""
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrAlreadyExists          ErrorCode = "ALREADY_EXISTS"
	ErrInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrInsufficientDatanodes  ErrorCode = "INSUFFICIENT_DATANODES"
	ErrNotLeader              ErrorCode = "NOT_LEADER"
	ErrTimeout                ErrorCode = "TIMEOUT"
	ErrConflict               ErrorCode = "CONFLICT"
	ErrInternal               ErrorCode = "INTERNAL_ERROR"
)

// NodeDetails identifies the calling datanode on every RPC.
type NodeDetails struct {
	NodeID   types.NodeID
	Hostname string
	IP       string
	Port     int
}

// RegisterRequest is Register(NodeDetails, NodeReport, PipelineReport).
// PipelineReport is empty on a brand-new datanode and non-empty when a
// previously-registered node is re-registering after Reregister.
type RegisterRequest struct {
	Node                NodeDetails
	StorageReports      []types.StorageReport
	MetadataVolumeCount int
	HealthyVolumeCount  int
	PipelineIDs         []types.PipelineID
}

// RegisterResponse mirrors the RegisterResponse shape exactly.
type RegisterResponse struct {
	ClusterID       string
	SCMID           string
	AssignedNodeID  types.NodeID
	ErrorCode       ErrorCode
	ErrorMessage    string
	LeaderHint      string
}

// HeartbeatRequest is SendHeartbeat(NodeDetails, NodeReport). The
// report fields are optional: a datanode with nothing new to report
// sends a zero-value slice and the leader skips the report-processing
// step entirely.
type HeartbeatRequest struct {
	Node                NodeDetails
	StorageReports      []types.StorageReport
	MetadataVolumeCount int
	HealthyVolumeCount  int
}

// HeartbeatResponse carries the queued command batch.
type HeartbeatResponse struct {
	Commands     []types.DatanodeCommand
	ErrorCode    ErrorCode
	ErrorMessage string
	LeaderHint   string
}

// ContainerReportRequest is ReportContainer(NodeDetails,
// ContainerReport) — fire-and-forget, so the response carries no
// payload beyond acknowledgement of receipt.
type ContainerReportRequest struct {
	Node     NodeDetails
	Replicas []types.ContainerReplica
}

// PipelineReportRequest is ReportPipeline(NodeDetails, PipelineReport).
type PipelineReportRequest struct {
	Node        NodeDetails
	PipelineIDs []types.PipelineID
}

// Ack is the empty acknowledgement returned by the two fire-and-forget
// report RPCs.
type Ack struct{}

// Admin surface (client to SCM leader).

type ListNodesRequest struct{}

type ListNodesResponse struct {
	Nodes []types.NodeInfo
}

type ListPipelinesRequest struct{}

type ListPipelinesResponse struct {
	Pipelines []types.Pipeline
}

type GetContainerRequest struct {
	ID types.ContainerID
}

type GetContainerResponse struct {
	Container    *types.ContainerInfo
	Replicas     []types.ContainerReplica
	ErrorCode    ErrorCode
	ErrorMessage string
}

type SafeModeStatusRequest struct{}

type SafeModeStatusResponse struct {
	Status types.SafeModeStatus
	Rules  []string
}

// TriggerContainerEventRequest drives a container lifecycle event by
// admin command, per the "triggering container lifecycle events".
type TriggerContainerEventRequest struct {
	ID    types.ContainerID
	Event string
}

type TriggerContainerEventResponse struct {
	ErrorCode    ErrorCode
	ErrorMessage string
	LeaderHint   string
}
