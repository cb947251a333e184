// Package raftlog implements the replicated log: a hashicorp/raft group
// whose FSM dispatches committed commands into the Node, Pipeline and
// Container managers' local apply entry points, with boltdb-backed
// log/stable stores backing a single Raft group per replica.
package raftlog

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/store"
)

// Config configures one replica's Raft group.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// HeartbeatTimeout, ElectionTimeout, CommitTimeout and
	// LeaderLeaseTimeout tune failover speed for LAN deployments; a zero
	// value keeps hashicorp/raft's own default for that field.
	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	CommitTimeout      time.Duration
	LeaderLeaseTimeout time.Duration

	ApplyTimeout time.Duration
}

// Log is one replica's handle onto the replicated log.
type Log struct {
	cfg   Config
	raft  *raft.Raft
	fsm   *FSM
	log   zerolog.Logger
}

// Open constructs the Raft group (transport, boltdb log/stable stores,
// file snapshot store) but does not yet bootstrap or join a cluster.
func Open(cfg Config, st store.Store, appliers map[string]Applier, logger zerolog.Logger) (*Log, error) {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.HeartbeatTimeout > 0 {
		raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	}
	if cfg.ElectionTimeout > 0 {
		raftCfg.ElectionTimeout = cfg.ElectionTimeout
	}
	if cfg.CommitTimeout > 0 {
		raftCfg.CommitTimeout = cfg.CommitTimeout
	}
	if cfg.LeaderLeaseTimeout > 0 {
		raftCfg.LeaderLeaseTimeout = cfg.LeaderLeaseTimeout
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.Internal, err, "resolve raft bind address")
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.Internal, err, "create raft transport")
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "create snapshot store")
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "create raft log store")
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "create raft stable store")
	}

	fsm := New(st, appliers, logger.With().Str("component", "raftlog-fsm").Logger())

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.Internal, err, "create raft instance")
	}

	if cfg.ApplyTimeout == 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}

	return &Log{cfg: cfg, raft: r, fsm: fsm, log: logger.With().Str("component", "raftlog").Logger()}, nil
}

// Bootstrap forms a brand new single-member cluster with this replica
// as its only voter.
func (l *Log) Bootstrap() error {
	future := l.raft.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(l.cfg.NodeID), Address: raft.ServerAddress(l.cfg.BindAddr)}},
	})
	if err := future.Error(); err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "bootstrap raft cluster")
	}
	return nil
}

// AddVoter admits a new replica to the cluster. Must be called against
// the current leader.
func (l *Log) AddVoter(nodeID, addr string) error {
	if !l.IsLeader() {
		return scmerrors.NotLeaderErr(string(l.raft.Leader()))
	}
	future := l.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "add voter")
	}
	return nil
}

// RemoveServer evicts a replica from the cluster.
func (l *Log) RemoveServer(nodeID string) error {
	if !l.IsLeader() {
		return scmerrors.NotLeaderErr(string(l.raft.Leader()))
	}
	future := l.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "remove server")
	}
	return nil
}

func (l *Log) Servers() ([]raft.Server, error) {
	future := l.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, scmerrors.Wrap(scmerrors.Internal, err, "get raft configuration")
	}
	return future.Configuration().Servers, nil
}

func (l *Log) IsLeader() bool { return l.raft.State() == raft.Leader }

func (l *Log) LeaderAddr() string { return string(l.raft.Leader()) }

// Term reports the replica's current Raft term, used to stamp
// DatanodeCommands so datanodes can discard instructions from a since-
// deposed leader.
func (l *Log) Term() uint64 {
	term, _ := strconv.ParseUint(l.raft.Stats()["term"], 10, 64)
	return term
}

func (l *Log) Shutdown() error {
	if err := l.raft.Shutdown().Error(); err != nil {
		return scmerrors.Wrap(scmerrors.Internal, err, "shutdown raft")
	}
	return nil
}

// Submit appends a command targeting target/op to the log and blocks
// until it is applied, returning the Applier's result (or error, for
// non-fatal apply-time failures such as InvalidStateTransition).
func (l *Log) Submit(target, op string, data interface{}, dedupKey string) (interface{}, error) {
	if !l.IsLeader() {
		return nil, scmerrors.NotLeaderErr(l.LeaderAddr())
	}

	payload, err := encodeCommand(target, op, data, dedupKey)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.Internal, err, "encode command")
	}

	future := l.raft.Apply(payload, l.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		if err == raft.ErrNotLeader || err == raft.ErrLeadershipLost {
			return nil, scmerrors.NotLeaderErr(l.LeaderAddr())
		}
		return nil, scmerrors.Wrap(scmerrors.Timeout, err, "apply command")
	}

	resp := future.Response()
	if applyErr, ok := resp.(error); ok && applyErr != nil {
		return nil, applyErr
	}
	return resp, nil
}

// LastAppliedIndex exposes the FSM's bookkeeping for install_snapshot
// progress reporting.
func (l *Log) LastAppliedIndex() uint64 { return l.fsm.LastAppliedIndex() }
