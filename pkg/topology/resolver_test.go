package topology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	calls int
	loc   string
}

func (c *countingResolver) Resolve(hostname, ip string) string {
	c.calls++
	return c.loc
}

func TestReverseDNSResolverUsesMappingOverride(t *testing.T) {
	r := &ReverseDNSResolver{Mapping: map[string]string{"dn1.example.com": "/dc1/rack1", "10.0.0.5": "/dc1/rack2"}}

	require.Equal(t, "/dc1/rack1", r.Resolve("dn1.example.com", "10.0.0.9"))
	require.Equal(t, "/dc1/rack2", r.Resolve("unmapped-host", "10.0.0.5"))
}

func TestReverseDNSResolverFallsBackToDefaultRack(t *testing.T) {
	r := &ReverseDNSResolver{}
	// 192.0.2.0/24 is reserved (TEST-NET-1) and never resolves.
	require.Equal(t, DefaultRack, r.Resolve("unused", "192.0.2.123"))
}

func TestCachedResolvesOnceThenUsesCache(t *testing.T) {
	inner := &countingResolver{loc: "/dc1/rack3"}
	c := NewCached(inner)

	require.Equal(t, "/dc1/rack3", c.Resolve("dn1", "10.0.0.1"))
	require.Equal(t, "/dc1/rack3", c.Resolve("dn1", "10.0.0.1"))
	require.Equal(t, "/dc1/rack3", c.Resolve("dn1", "10.0.0.1"))
	require.Equal(t, 1, inner.calls, "a cached host must not re-invoke the inner resolver")
}

func TestCachedKeysByHostnameNotIP(t *testing.T) {
	inner := &countingResolver{loc: "/dc1/rack1"}
	c := NewCached(inner)

	c.Resolve("dn1", "10.0.0.1")
	inner.loc = "/dc1/rack2"
	c.Resolve("dn2", "10.0.0.1") // different hostname, same IP: not cached
	require.Equal(t, 2, inner.calls)
}
