package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/types"
)

func TestQuorumTrackerAckReachesMajority(t *testing.T) {
	q := newQuorumTracker()
	q.start("p1", 3)

	require.False(t, q.ack("p1", "dn-1"))
	reached := q.ack("p1", "dn-2")
	require.True(t, reached, "second ack of three should reach the 2-of-3 majority")
}

func TestQuorumTrackerAckIsIdempotentOnce(t *testing.T) {
	q := newQuorumTracker()
	q.start("p1", 3)

	require.False(t, q.ack("p1", "dn-1"))
	require.True(t, q.ack("p1", "dn-2"))
	require.False(t, q.ack("p1", "dn-2"), "re-acking the same node must not re-trigger quorum")
	require.False(t, q.ack("p1", "dn-3"), "quorum already reached once; later acks report false")
}

func TestQuorumTrackerAckUnknownPipelineIsNoop(t *testing.T) {
	q := newQuorumTracker()
	require.False(t, q.ack("ghost", "dn-1"))
}

func TestQuorumTrackerWaitReturnsOnQuorum(t *testing.T) {
	q := newQuorumTracker()
	q.start("p1", 1)
	q.ack("p1", "dn-1")

	require.True(t, q.wait("p1", time.Second))
}

func TestQuorumTrackerWaitTimesOut(t *testing.T) {
	q := newQuorumTracker()
	q.start("p1", 3)

	require.False(t, q.wait("p1", 10*time.Millisecond))
}

func TestQuorumTrackerWaitUnknownPipelineReturnsFalse(t *testing.T) {
	q := newQuorumTracker()
	require.False(t, q.wait("ghost", 10*time.Millisecond))
}

func TestQuorumTrackerForgetRemovesEntry(t *testing.T) {
	q := newQuorumTracker()
	q.start("p1", 1)
	q.forget("p1")
	require.False(t, q.ack("p1", types.NodeID("dn-1")))
}
