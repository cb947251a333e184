package nodemanager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/types"
)

func TestMailboxDrainReturnsInSubmissionOrder(t *testing.T) {
	mb := newMailboxes(10)
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdCloseContainer})
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdDeleteContainer})

	cmds := mb.drain("dn-1")
	require.Len(t, cmds, 2)
	require.Equal(t, types.CmdCloseContainer, cmds[0].Type)
	require.Equal(t, types.CmdDeleteContainer, cmds[1].Type)
}

func TestMailboxDrainIsOneShot(t *testing.T) {
	mb := newMailboxes(10)
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdCloseContainer})

	require.Len(t, mb.drain("dn-1"), 1)
	require.Nil(t, mb.drain("dn-1"))
}

func TestMailboxDropsOldestWhenFull(t *testing.T) {
	mb := newMailboxes(2)
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdCloseContainer})
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdDeleteContainer})
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdReplicateContainer})

	cmds := mb.drain("dn-1")
	require.Len(t, cmds, 2)
	require.Equal(t, types.CmdDeleteContainer, cmds[0].Type)
	require.Equal(t, types.CmdReplicateContainer, cmds[1].Type)
}

func TestMailboxDefaultDepth(t *testing.T) {
	mb := newMailboxes(0)
	require.Equal(t, 100, mb.depth)
}

func TestMailboxForgetClearsQueue(t *testing.T) {
	mb := newMailboxes(10)
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdCloseContainer})
	mb.forget("dn-1")
	require.Nil(t, mb.drain("dn-1"))
}

func TestMailboxesAreIndependentPerNode(t *testing.T) {
	mb := newMailboxes(10)
	mb.enqueue("dn-1", types.DatanodeCommand{Type: types.CmdCloseContainer})
	mb.enqueue("dn-2", types.DatanodeCommand{Type: types.CmdDeleteContainer})

	require.Len(t, mb.drain("dn-1"), 1)
	require.Len(t, mb.drain("dn-2"), 1)
}
