// Package types holds the data model shared across the SCM managers.
//
// Cross-component references are identifiers only (NodeID, PipelineID,
// ContainerID) — never direct handles — so that nodes, pipelines and
// containers can refer to each other without forming an ownership cycle.
package types

import "time"

// NodeID is the opaque identifier assigned to a storage node on first
// registration. It is persisted by the node itself and never changes.
type NodeID string

// PipelineID is a randomly generated identifier for a replication
// quorum.
type PipelineID string

// ContainerID is a monotonically increasing identifier, unique for the
// lifetime of the cluster.
type ContainerID uint64

// VolumeType distinguishes the physical medium backing a storage report.
type VolumeType string

const (
	VolumeTypeDisk VolumeType = "disk"
	VolumeTypeSSD  VolumeType = "ssd"
)

// HealthState is the node health FSM state driven by the heartbeat
// sweeper.
type HealthState string

const (
	NodeHealthy         HealthState = "HEALTHY"
	NodeStale           HealthState = "STALE"
	NodeDead            HealthState = "DEAD"
	NodeDecommissioning HealthState = "DECOMMISSIONING"
	NodeDecommissioned  HealthState = "DECOMMISSIONED"
)

// StorageReport is one volume's capacity/usage snapshot as reported by a
// datanode's node report.
type StorageReport struct {
	Path      string
	Type      VolumeType
	Capacity  int64
	Used      int64
	Remaining int64
}

// NodeInfo is the authoritative record for one storage node, owned
// exclusively by the Node Manager.
type NodeInfo struct {
	ID       NodeID
	Hostname string
	IP       string
	Port     int
	Location string // topology/rack string, resolved via topology.Resolver

	LastHeartbeat time.Time
	Health        HealthState

	StorageReports      []StorageReport
	MetadataVolumeCount int
	HealthyVolumeCount  int

	PipelineIDs  map[PipelineID]struct{}
	ContainerIDs map[ContainerID]struct{}

	RegisteredAt time.Time
}

// Clone returns a deep-enough copy for safe handoff across the read/write
// boundary (maps and slices are copied, scalar fields by value).
func (n *NodeInfo) Clone() *NodeInfo {
	if n == nil {
		return nil
	}
	c := *n
	c.StorageReports = append([]StorageReport(nil), n.StorageReports...)
	c.PipelineIDs = make(map[PipelineID]struct{}, len(n.PipelineIDs))
	for k := range n.PipelineIDs {
		c.PipelineIDs[k] = struct{}{}
	}
	c.ContainerIDs = make(map[ContainerID]struct{}, len(n.ContainerIDs))
	for k := range n.ContainerIDs {
		c.ContainerIDs[k] = struct{}{}
	}
	return &c
}

// ReplicationType distinguishes single-copy pipelines from replicated
// ones.
type ReplicationType string

const (
	ReplicationStandalone ReplicationType = "STANDALONE"
	ReplicationReplicated ReplicationType = "RATIS" // named after the original's Ratis-backed replication protocol
)

// PipelineState is the lifecycle state of a replication quorum.
type PipelineState string

const (
	PipelineAllocated PipelineState = "ALLOCATED"
	PipelineOpen      PipelineState = "OPEN"
	PipelineDormant   PipelineState = "DORMANT"
	PipelineClosed    PipelineState = "CLOSED"
)

// Pipeline is a replicated write-quorum over a fixed set of nodes.
type Pipeline struct {
	ID            PipelineID
	Type          ReplicationType
	Factor        int
	Members       []NodeID // leader first, for a replicated pipeline
	State         PipelineState
	CreatedAt     time.Time
	MemberSetHash uint64 // murmur3 hash of the sorted member set
	ContainerIDs  map[ContainerID]struct{}
}

// Clone returns a copy safe to hand to a caller outside the write lock.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	c := *p
	c.Members = append([]NodeID(nil), p.Members...)
	c.ContainerIDs = make(map[ContainerID]struct{}, len(p.ContainerIDs))
	for k := range p.ContainerIDs {
		c.ContainerIDs[k] = struct{}{}
	}
	return &c
}

// ContainerState is the lifecycle state of a logical container.
type ContainerState string

const (
	ContainerOpen        ContainerState = "OPEN"
	ContainerClosing     ContainerState = "CLOSING"
	ContainerQuasiClosed ContainerState = "QUASI_CLOSED"
	ContainerClosed      ContainerState = "CLOSED"
	ContainerDeleting    ContainerState = "DELETING"
	ContainerDeleted     ContainerState = "DELETED"
)

// containerStateRank gives the monotone ordering invariant: the
// lifecycle state rank of a container never decreases.
var containerStateRank = map[ContainerState]int{
	ContainerOpen:        0,
	ContainerClosing:     1,
	ContainerQuasiClosed: 2,
	ContainerClosed:      3,
	ContainerDeleting:    4,
	ContainerDeleted:     5,
}

// Rank returns the monotone lifecycle rank of a container state.
func (s ContainerState) Rank() int {
	return containerStateRank[s]
}

// ContainerInfo is the authoritative record for one logical container.
type ContainerInfo struct {
	ID             ContainerID
	PipelineID     PipelineID
	State          ContainerState
	UsedBytes      int64
	KeyCount       int64
	StateEnteredAt time.Time
	Owner          string
	Type           ReplicationType
	Factor         int
	DeleteTxnID    uint64
	CreatedAt      time.Time
}

// Clone returns a shallow copy (ContainerInfo has no reference fields
// that need deep copying).
func (c *ContainerInfo) Clone() *ContainerInfo {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ReplicaState is the datanode-reported state of a physical replica.
type ReplicaState string

const (
	ReplicaUnhealthy  ReplicaState = "UNHEALTHY"
	ReplicaClosed     ReplicaState = "CLOSED"
	ReplicaOpen       ReplicaState = "OPEN"
	ReplicaQuasiClosed ReplicaState = "QUASI_CLOSED"
)

// ContainerReplica is a physical copy of a container on one node. It is
// derived purely from datanode reports and is never persisted in the
// replicated log.
type ContainerReplica struct {
	ContainerID ContainerID
	NodeID      NodeID
	State       ReplicaState
	BytesUsed   int64
	KeyCount    int64
	LastSeen    time.Time
}

// SafeModeStatus is the cluster-wide admission gate.
type SafeModeStatus struct {
	InSafeMode       bool
	PreCheckComplete bool
}

// DatanodeCommandType enumerates the commands SCM may push to a
// datanode's heartbeat reply queue.
type DatanodeCommandType string

const (
	CmdCreatePipeline     DatanodeCommandType = "CreatePipeline"
	CmdClosePipeline      DatanodeCommandType = "ClosePipeline"
	CmdCloseContainer     DatanodeCommandType = "CloseContainer"
	CmdReplicateContainer DatanodeCommandType = "ReplicateContainer"
	CmdDeleteContainer    DatanodeCommandType = "DeleteContainer"
	CmdDeleteBlocks       DatanodeCommandType = "DeleteBlocks"
	CmdReregister         DatanodeCommandType = "Reregister"
)

// DatanodeCommand is one queued instruction for a datanode, term-stamped
// so the datanode (and the command queue itself) can discard stale
// instructions from a deposed leader.
type DatanodeCommand struct {
	Type        DatanodeCommandType
	Term        uint64
	PipelineID  PipelineID
	ContainerID ContainerID
	Members     []NodeID // CreatePipeline
	SourceNodes []NodeID // ReplicateContainer
	TxnID       uint64   // DeleteBlocks
	BlockIDs    []int64  // DeleteBlocks
	IssuedAt    time.Time
}
