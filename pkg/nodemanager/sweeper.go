package nodemanager

import (
	"time"

	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/types"
)

// RunSweeper starts the background health-FSM sweeper.
// It is safe to run on every replica: only the leader's transitions
// actually get submitted (on a follower each sweep returns before
// submitting anything), so the sweep itself is idempotent cluster-wide.
func (m *Manager) RunSweeper() {
	tick := m.cfg.SweepTick
	if tick <= 0 {
		tick = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopCh:
				return
			}
		}
	}()
}

func (m *Manager) sweep() {
	if !m.gw.IsLeader() {
		return
	}

	now := time.Now()
	type transition struct {
		id     types.NodeID
		health types.HealthState
	}
	var toTransition []transition
	var toRemove []types.NodeID

	m.mu.RLock()
	for id, n := range m.nodes {
		if n.Health == types.NodeDecommissioned {
			continue
		}
		elapsed := now.Sub(n.LastHeartbeat)
		switch {
		case n.Health == types.NodeDead:
			if elapsed > m.cfg.DeadAfter+m.cfg.DeadGrace {
				toRemove = append(toRemove, id)
			}
		case elapsed > m.cfg.DeadAfter:
			toTransition = append(toTransition, transition{id, types.NodeDead})
		case elapsed > m.cfg.StaleAfter && n.Health == types.NodeHealthy:
			toTransition = append(toTransition, transition{id, types.NodeStale})
		}
	}
	m.mu.RUnlock()

	for _, t := range toTransition {
		if _, err := m.gw.Submit(raftlog.TargetNode, opSetHealth, setHealthCmd{NodeID: t.id, Health: t.health}, ""); err != nil {
			m.log.Warn().Err(err).Str("node_id", string(t.id)).Msg("sweeper: health transition submit failed")
		}
	}
	for _, id := range toRemove {
		if err := m.Remove(id); err != nil {
			m.log.Warn().Err(err).Str("node_id", string(id)).Msg("sweeper: node removal submit failed")
		}
	}
}
