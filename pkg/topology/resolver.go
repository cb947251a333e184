// Package topology resolves a datanode's hostname/IP to a rack-topology
// location string for the Node Manager's register path.
//
// There is no ready-made hostname→rack mapping library available to
// build on here, so this resolver is built directly on the standard
// library's net package; see DESIGN.md for the rationale.
package topology

import (
	"net"
	"strings"
	"sync"
)

// DefaultRack is returned when resolution fails, per 's
// "topology resolution failures fall back to a default rack string".
const DefaultRack = "/default-rack"

// Resolver maps a datanode's hostname or IP to a topology location
// string, e.g. "/dc1/rack3". Implementations are expected to be cheap
// to call repeatedly; Cached wraps one with a map-based cache.
type Resolver interface {
	Resolve(hostname, ip string) string
}

// ReverseDNSResolver resolves topology by reverse-DNS lookup of the IP,
// taking the last two dot-separated labels of the canonical name, last
// label first, as "/dc/rack" — a reasonable stand-in for the DNS-administered topology
// mapping scripts real Hadoop-family clusters configure, without
// depending on any particular naming convention.
type ReverseDNSResolver struct {
	// Mapping optionally overrides resolution for specific hosts/IPs,
	// for static topology configuration supplied via pkg/config.
	Mapping map[string]string
}

func (r *ReverseDNSResolver) Resolve(hostname, ip string) string {
	if r.Mapping != nil {
		if loc, ok := r.Mapping[hostname]; ok {
			return loc
		}
		if loc, ok := r.Mapping[ip]; ok {
			return loc
		}
	}

	names, err := net.LookupAddr(ip)
	if err != nil || len(names) == 0 {
		return DefaultRack
	}

	labels := strings.Split(strings.TrimSuffix(names[0], "."), ".")
	if len(labels) < 2 {
		return DefaultRack
	}
	return "/" + labels[len(labels)-1] + "/" + labels[len(labels)-2]
}

// Cached wraps a Resolver with an unbounded, never-expiring cache keyed
// by hostname — topology assignments are effectively static for the
// life of a cluster, so the "cached" qualifier needs nothing
// fancier than a guarded map.
type Cached struct {
	mu       sync.RWMutex
	inner    Resolver
	byHost   map[string]string
}

func NewCached(inner Resolver) *Cached {
	return &Cached{inner: inner, byHost: make(map[string]string)}
}

func (c *Cached) Resolve(hostname, ip string) string {
	c.mu.RLock()
	if loc, ok := c.byHost[hostname]; ok {
		c.mu.RUnlock()
		return loc
	}
	c.mu.RUnlock()

	loc := c.inner.Resolve(hostname, ip)

	c.mu.Lock()
	c.byHost[hostname] = loc
	c.mu.Unlock()
	return loc
}
