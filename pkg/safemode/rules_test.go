package safemode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinDatanodesRule(t *testing.T) {
	n := 0
	r := NewMinDatanodesRule(3, func() int { return n })

	r.Refresh()
	require.False(t, r.Validate())

	n = 3
	r.Refresh()
	require.True(t, r.Validate())
}

func TestContainerReplicaRuleVacuouslyTrueWithZeroContainers(t *testing.T) {
	r := NewContainerReplicaRule(0.99, func() int { return 0 }, func() int { return 0 })
	r.Refresh()
	require.True(t, r.Validate())
}

func TestContainerReplicaRuleThreshold(t *testing.T) {
	total, reported := 100, 90
	r := NewContainerReplicaRule(0.95, func() int { return total }, func() int { return reported })
	r.Refresh()
	require.False(t, r.Validate(), "90/100 should not satisfy a 0.95 threshold")

	reported = 96
	r.Refresh()
	require.True(t, r.Validate())
}

func TestHealthyPipelineRuleVacuouslyTrueWithZeroPipelines(t *testing.T) {
	r := NewHealthyPipelineRule(0.90, func() int { return 0 }, func() int { return 0 })
	r.Refresh()
	require.True(t, r.Validate())
}

func TestOneReplicaPipelineRuleRequiresEveryPipelineReporting(t *testing.T) {
	total, reporting := 5, 4
	r := NewOneReplicaPipelineRule(func() int { return total }, func() int { return reporting })
	r.Refresh()
	require.False(t, r.Validate())

	reporting = 5
	r.Refresh()
	require.True(t, r.Validate())
}

func TestStatusTextReflectsSatisfiedState(t *testing.T) {
	r := NewMinDatanodesRule(1, func() int { return 1 })
	r.Refresh()
	require.Contains(t, r.StatusText(), "satisfied")

	r2 := NewMinDatanodesRule(5, func() int { return 1 })
	r2.Refresh()
	require.Contains(t, r2.StatusText(), "pending")
}
