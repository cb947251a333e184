package nodemanager

import "github.com/apache/ozone-scm/pkg/types"

// Command ops dispatched through raftlog.Command{Target: raftlog.TargetNode}.
const (
	opRegister    = "register"
	opHeartbeat   = "heartbeat"
	opNodeReport  = "node_report"
	opSetHealth   = "set_health"
	opRemove      = "remove"
	opEnqueue     = "enqueue" // not dispatched by Apply: the command mailbox is not replicated
)

// registerCmd is the payload for a register write. AssignedAt is filled
// in by the public Register method before Submit — apply-time code
// never calls time.Now.
type registerCmd struct {
	Node       types.NodeInfo
	AssignedAt int64 // unix nanos
}

type heartbeatCmd struct {
	NodeID  types.NodeID
	AtNanos int64
}

type nodeReportCmd struct {
	NodeID              types.NodeID
	StorageReports      []types.StorageReport
	MetadataVolumeCount int
	HealthyVolumeCount  int
}

type setHealthCmd struct {
	NodeID types.NodeID
	Health types.HealthState
}

type removeCmd struct {
	NodeID types.NodeID
}
