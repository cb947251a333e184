package version

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClusterIDHasCIDPrefix(t *testing.T) {
	id := NewClusterID()
	require.True(t, strings.HasPrefix(id, "CID-"))
	require.NotEqual(t, NewClusterID(), NewClusterID())
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.False(t, Exists(dir))

	info := &Info{
		NodeType:      NodeTypeSCM,
		ClusterID:     NewClusterID(),
		SCMID:         NewID(),
		CreationTime:  1700000000,
		LayoutVersion: 1,
	}
	require.NoError(t, Write(dir, info))
	require.True(t, Exists(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, info.NodeType, loaded.NodeType)
	require.Equal(t, info.ClusterID, loaded.ClusterID)
	require.Equal(t, info.SCMID, loaded.SCMID)
	require.Equal(t, info.CreationTime, loaded.CreationTime)
	require.Equal(t, info.LayoutVersion, loaded.LayoutVersion)
}

func TestLoadDetectsInterruptedUpgrade(t *testing.T) {
	dir := t.TempDir()
	info := &Info{
		NodeType:      NodeTypeSCM,
		ClusterID:     NewClusterID(),
		SCMID:         NewID(),
		CreationTime:  1700000000,
		LayoutVersion: 1,
	}
	require.NoError(t, Write(dir, info))
	require.NoError(t, BeginUpgrade(dir, info, 2))

	loaded, err := Load(dir)
	require.Error(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, 2, loaded.UpgradingToLayoutVersion)
}

func TestCompleteUpgradeClearsMarker(t *testing.T) {
	dir := t.TempDir()
	info := &Info{
		NodeType:      NodeTypeSCM,
		ClusterID:     NewClusterID(),
		SCMID:         NewID(),
		CreationTime:  1700000000,
		LayoutVersion: 1,
	}
	require.NoError(t, Write(dir, info))
	require.NoError(t, BeginUpgrade(dir, info, 2))
	require.NoError(t, CompleteUpgrade(dir, info, 2))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.LayoutVersion)
	require.Equal(t, 0, loaded.UpgradingToLayoutVersion)
}

func TestWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	info := &Info{NodeType: NodeTypeSCM, ClusterID: "CID-x", SCMID: "y", LayoutVersion: 1}
	require.NoError(t, Write(dir, info))

	entries, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, entries, "no temp file should survive a successful write")
}
