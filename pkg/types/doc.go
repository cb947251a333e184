// Package types defines the SCM data model: NodeInfo, Pipeline and
// ContainerInfo, plus the identifiers (NodeID, PipelineID, ContainerID)
// that let the three managers in pkg/nodemanager, pkg/pipeline and
// pkg/container refer to each other's records without holding direct
// pointers into one another's tables.
package types
