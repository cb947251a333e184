package metrics

import (
	"time"

	"github.com/apache/ozone-scm/pkg/types"
)

// NodeSource, PipelineSource and ContainerSource are the small slices
// of the Node/Pipeline/Container Managers' query surfaces the collector
// needs; each manager satisfies its interface without pkg/metrics
// importing any of them back.
type NodeSource interface {
	ListNodes() []*types.NodeInfo
}

type PipelineSource interface {
	ListPipelines() []*types.Pipeline
}

type ContainerSource interface {
	ListContainers() []*types.ContainerInfo
}

// RaftSource exposes the replicated log's leadership and progress
// state for periodic gauge updates.
type RaftSource interface {
	IsLeader() bool
	Term() uint64
	LastAppliedIndex() uint64
}

// Collector periodically samples the managers into the Registry's
// gauges on a ticker-driven sweep.
type Collector struct {
	reg        *Registry
	nodes      NodeSource
	pipelines  PipelineSource
	containers ContainerSource
	raft       RaftSource
	safeMode   func() bool

	interval time.Duration
	stopCh   chan struct{}
}

func NewCollector(reg *Registry, nodes NodeSource, pipelines PipelineSource, containers ContainerSource, raft RaftSource, safeMode func() bool) *Collector {
	return &Collector{
		reg:        reg,
		nodes:      nodes,
		pipelines:  pipelines,
		containers: containers,
		raft:       raft,
		safeMode:   safeMode,
		interval:   15 * time.Second,
		stopCh:     make(chan struct{}),
	}
}

func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodes()
	c.collectPipelines()
	c.collectContainers()
	c.collectRaft()
	if c.safeMode != nil {
		if c.safeMode() {
			c.reg.SafeMode.Set(1)
		} else {
			c.reg.SafeMode.Set(0)
		}
	}
}

func (c *Collector) collectNodes() {
	counts := make(map[types.HealthState]int)
	for _, n := range c.nodes.ListNodes() {
		counts[n.Health]++
	}
	for _, h := range []types.HealthState{types.NodeHealthy, types.NodeStale, types.NodeDead, types.NodeDecommissioning, types.NodeDecommissioned} {
		c.reg.NodesTotal.WithLabelValues(string(h)).Set(float64(counts[h]))
	}
}

func (c *Collector) collectPipelines() {
	counts := make(map[types.PipelineState]int)
	for _, p := range c.pipelines.ListPipelines() {
		counts[p.State]++
	}
	for _, s := range []types.PipelineState{types.PipelineAllocated, types.PipelineOpen, types.PipelineDormant, types.PipelineClosed} {
		c.reg.PipelinesTotal.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

func (c *Collector) collectContainers() {
	counts := make(map[types.ContainerState]int)
	for _, ci := range c.containers.ListContainers() {
		counts[ci.State]++
	}
	for _, s := range []types.ContainerState{types.ContainerOpen, types.ContainerClosing, types.ContainerQuasiClosed, types.ContainerClosed, types.ContainerDeleting, types.ContainerDeleted} {
		c.reg.ContainersTotal.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

func (c *Collector) collectRaft() {
	if c.raft.IsLeader() {
		c.reg.RaftIsLeader.Set(1)
	} else {
		c.reg.RaftIsLeader.Set(0)
	}
	c.reg.RaftTerm.Set(float64(c.raft.Term()))
	c.reg.RaftAppliedIndex.Set(float64(c.raft.LastAppliedIndex()))
}
