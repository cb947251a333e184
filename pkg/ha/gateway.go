// Package ha implements the HA invocation gateway: the thin layer every
// state manager's write path goes through before it reaches
// pkg/raftlog, and the layer read calls bypass entirely.
package ha

import (
	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/scmerrors"
)

// Gateway is held by each of the three state managers. It does not
// itself know about nodes, pipelines or containers — it only routes a
// tagged command to the replicated log and turns the result back into
// a typed error for callers.
//
// Determinism is this package's one hard rule: a write method must
// compute every apply-time-nondeterministic value (timestamps, random
// ids) *before* calling Submit and carry it inside data, because the
// same data is replayed verbatim on every replica's apply callback and
// again during snapshot Restore. Submit itself never calls time.Now or
// any RNG.
type Gateway struct {
	log *raftlog.Log
}

func New(log *raftlog.Log) *Gateway {
	return &Gateway{log: log}
}

// NewDeferred builds a Gateway with no log attached yet, for the
// bootstrap ordering problem every replica process hits once: the
// three managers need a *Gateway at construction time, but the
// replicated log can't be opened until those same managers exist to
// serve as its Appliers. Bind attaches the log once it's ready; no
// manager may call Submit before that happens.
func NewDeferred() *Gateway {
	return &Gateway{}
}

// Bind attaches the replicated log to a deferred Gateway.
func (g *Gateway) Bind(log *raftlog.Log) {
	g.log = log
}

// Submit serializes a write and blocks until a majority of replicas
// has committed it and this replica has applied it, or fails with NotLeader (carrying the current
// leader hint) if this replica is not the leader.
func (g *Gateway) Submit(target, op string, data interface{}, dedupKey string) (interface{}, error) {
	return g.log.Submit(target, op, data, dedupKey)
}

func (g *Gateway) IsLeader() bool { return g.log.IsLeader() }

func (g *Gateway) LeaderHint() string { return g.log.LeaderAddr() }

func (g *Gateway) Term() uint64 { return g.log.Term() }

// RequireLeader is the refuse-on-follower half of the WRITE
// path: call it first in every write method that does not itself call
// Submit (e.g. enqueueing a command directly into a node's mailbox).
func (g *Gateway) RequireLeader() error {
	if !g.IsLeader() {
		return scmerrors.NotLeaderErr(g.LeaderHint())
	}
	return nil
}
