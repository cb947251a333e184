package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientAppliesFailoverDefaults(t *testing.T) {
	c := NewClient("127.0.0.1:9861", nil, FailoverConfig{})
	require.Equal(t, 3, c.failover.MaxAttempts)
	require.Equal(t, 2, c.failover.SameNodeRetries)
	require.NotZero(t, c.failover.WaitBetween)
	require.NoError(t, c.Close())
}

func TestNewClientPreservesExplicitFailoverConfig(t *testing.T) {
	c := NewClient("127.0.0.1:9861", nil, FailoverConfig{MaxAttempts: 5, SameNodeRetries: 4, WaitBetween: 0})
	require.Equal(t, 5, c.failover.MaxAttempts)
	require.Equal(t, 4, c.failover.SameNodeRetries)
	require.NoError(t, c.Close())
}

func TestConnForCachesByAddress(t *testing.T) {
	c := NewClient("127.0.0.1:9861", nil, FailoverConfig{})
	defer c.Close()

	cc1, err := c.connFor("127.0.0.1:9861")
	require.NoError(t, err)
	cc2, err := c.connFor("127.0.0.1:9861")
	require.NoError(t, err)
	require.Same(t, cc1, cc2)

	cc3, err := c.connFor("127.0.0.1:9862")
	require.NoError(t, err)
	require.NotSame(t, cc1, cc3)
}

func TestRedirectToUpdatesCurrentAddr(t *testing.T) {
	c := NewClient("127.0.0.1:9861", nil, FailoverConfig{})
	defer c.Close()

	require.Equal(t, "127.0.0.1:9861", c.currentAddr())
	c.redirectTo("127.0.0.1:9862")
	require.Equal(t, "127.0.0.1:9862", c.currentAddr())
}

func TestRedirectToIgnoresEmptyHint(t *testing.T) {
	c := NewClient("127.0.0.1:9861", nil, FailoverConfig{})
	defer c.Close()

	c.redirectTo("")
	require.Equal(t, "127.0.0.1:9861", c.currentAddr())
}
