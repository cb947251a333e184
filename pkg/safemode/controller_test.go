package safemode

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestControllerStartsInSafeMode(t *testing.T) {
	c := New(nil, nil, nil, zerolog.Nop())
	require.True(t, c.InSafeMode())
	require.False(t, c.PreCheckComplete())
}

func TestControllerExitsSafeModeOnceEveryRulePasses(t *testing.T) {
	minDN := 0
	preCheck := NewMinDatanodesRule(3, func() int { return minDN })

	total, reported := 10, 0
	other := NewContainerReplicaRule(0.99, func() int { return total }, func() int { return reported })

	c := New([]Rule{preCheck}, []Rule{other}, nil, zerolog.Nop())

	c.Notify()
	require.True(t, c.InSafeMode())
	require.False(t, c.PreCheckComplete())

	minDN = 3
	c.Notify()
	require.True(t, c.PreCheckComplete(), "pre-check rules alone should flip preCheckComplete")
	require.True(t, c.InSafeMode(), "should remain in safe mode until every rule, not just pre-check, passes")

	reported = 10
	c.Notify()
	require.False(t, c.InSafeMode())
}

func TestControllerNeverReenterSafeMode(t *testing.T) {
	minDN := 3
	preCheck := NewMinDatanodesRule(3, func() int { return minDN })
	c := New([]Rule{preCheck}, nil, nil, zerolog.Nop())

	c.Notify()
	require.False(t, c.InSafeMode())

	minDN = 0
	c.Notify()
	require.False(t, c.InSafeMode(), "in_safe_mode is a one-way flip; it must not re-enter once cleared")
}

func TestStatusTextListsEveryRule(t *testing.T) {
	a := NewMinDatanodesRule(1, func() int { return 1 })
	b := NewOneReplicaPipelineRule(func() int { return 0 }, func() int { return 0 })
	c := New([]Rule{a}, []Rule{b}, nil, zerolog.Nop())
	c.Notify()

	lines := c.StatusText()
	require.Len(t, lines, 2)
}
