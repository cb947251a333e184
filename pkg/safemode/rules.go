// Package safemode implements the Safe-Mode Controller: a set of
// independently pluggable rules, each re-evaluated after every report
// that could satisfy it, gating read traffic on pre-check completion
// and background work (replication, pipeline creation) on the one-way
// flip of in_safe_mode to false.
package safemode

import "fmt"

// Rule is the narrow capability every rule implements: refresh
// recomputes the rule's internal counters from its data source,
// validate reports whether the rule currently passes, and statusText
// renders a human-readable summary for the safe-mode status RPC.
type Rule interface {
	Refresh()
	Validate() bool
	StatusText() string
}

// MinDatanodesRule is a pre-check rule: at least MinDN nodes must have
// registered.
type MinDatanodesRule struct {
	MinDN       int
	CountFunc   func() int
	current     int
}

func NewMinDatanodesRule(minDN int, countFunc func() int) *MinDatanodesRule {
	return &MinDatanodesRule{MinDN: minDN, CountFunc: countFunc}
}

func (r *MinDatanodesRule) Refresh() { r.current = r.CountFunc() }

func (r *MinDatanodesRule) Validate() bool { return r.current >= r.MinDN }

func (r *MinDatanodesRule) StatusText() string {
	return statusLine("MinDatanodesRule", r.current, r.MinDN, r.Validate())
}

// ContainerReplicaRule passes once at least Threshold (a fraction in
// [0,1]) of known containers have at least one reported replica.
type ContainerReplicaRule struct {
	Threshold       float64
	TotalFunc       func() int
	ReportedFunc    func() int
	total, reported int
}

func NewContainerReplicaRule(threshold float64, totalFunc, reportedFunc func() int) *ContainerReplicaRule {
	return &ContainerReplicaRule{Threshold: threshold, TotalFunc: totalFunc, ReportedFunc: reportedFunc}
}

func (r *ContainerReplicaRule) Refresh() {
	r.total = r.TotalFunc()
	r.reported = r.ReportedFunc()
}

// Validate is vacuously true with zero containers in the cluster.
func (r *ContainerReplicaRule) Validate() bool {
	if r.total == 0 {
		return true
	}
	return float64(r.reported)/float64(r.total) >= r.Threshold
}

func (r *ContainerReplicaRule) StatusText() string {
	return statusLine("ContainerReplicaRule", r.reported, r.total, r.Validate())
}

// HealthyPipelineRule (optional) passes once at least Threshold of
// replicated pipelines are OPEN with a full member set.
type HealthyPipelineRule struct {
	Threshold           float64
	TotalFunc           func() int
	HealthyFunc         func() int
	total, healthy      int
}

func NewHealthyPipelineRule(threshold float64, totalFunc, healthyFunc func() int) *HealthyPipelineRule {
	return &HealthyPipelineRule{Threshold: threshold, TotalFunc: totalFunc, HealthyFunc: healthyFunc}
}

func (r *HealthyPipelineRule) Refresh() {
	r.total = r.TotalFunc()
	r.healthy = r.HealthyFunc()
}

func (r *HealthyPipelineRule) Validate() bool {
	if r.total == 0 {
		return true
	}
	return float64(r.healthy)/float64(r.total) >= r.Threshold
}

func (r *HealthyPipelineRule) StatusText() string {
	return statusLine("HealthyPipelineRule", r.healthy, r.total, r.Validate())
}

// OneReplicaPipelineRule (optional) passes once every replicated
// pipeline has at least one member reporting.
type OneReplicaPipelineRule struct {
	TotalFunc            func() int
	ReportingFunc        func() int
	total, reporting int
}

func NewOneReplicaPipelineRule(totalFunc, reportingFunc func() int) *OneReplicaPipelineRule {
	return &OneReplicaPipelineRule{TotalFunc: totalFunc, ReportingFunc: reportingFunc}
}

func (r *OneReplicaPipelineRule) Refresh() {
	r.total = r.TotalFunc()
	r.reporting = r.ReportingFunc()
}

func (r *OneReplicaPipelineRule) Validate() bool { return r.reporting >= r.total }

func (r *OneReplicaPipelineRule) StatusText() string {
	return statusLine("OneReplicaPipelineRule", r.reporting, r.total, r.Validate())
}

func statusLine(name string, have, need int, ok bool) string {
	verb := "pending"
	if ok {
		verb = "satisfied"
	}
	return fmt.Sprintf("%s: %s (%d/%d)", name, verb, have, need)
}
