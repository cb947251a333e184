package ha

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apache/ozone-scm/pkg/raftlog"
)

func TestNewDeferredHasNoLogUntilBound(t *testing.T) {
	gw := NewDeferred()
	require.Nil(t, gw.log)
}

func TestBindAttachesLog(t *testing.T) {
	gw := NewDeferred()
	log := &raftlog.Log{}
	gw.Bind(log)
	require.Same(t, log, gw.log)
}

func TestNewAttachesLogImmediately(t *testing.T) {
	log := &raftlog.Log{}
	gw := New(log)
	require.Same(t, log, gw.log)
}
