package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  data_dir: /tmp/scm-data
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/tmp/scm-data", cfg.Node.DataDir)
	require.Equal(t, "0.0.0.0:9894", cfg.Node.BindAddr)
	require.Equal(t, "0.0.0.0:9861", cfg.Node.RPCAddr)
	require.Equal(t, 3, cfg.Pipeline.ReplicationFactor)
	require.Equal(t, int64(5*1024*1024*1024), cfg.Container.ContainerSizeBytes)
	require.Equal(t, 90*time.Second, cfg.NodeMgr.StaleAfter)
	require.Equal(t, 15*time.Minute, cfg.NodeMgr.DeadAfter)
	require.Equal(t, 0.99, cfg.SafeMode.ContainerThreshold)
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
node:
  data_dir: /data
  bind_addr: 10.0.0.1:9894
pipeline_manager:
  replication_factor: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:9894", cfg.Node.BindAddr)
	require.Equal(t, 1, cfg.Pipeline.ReplicationFactor)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadReplicationFactor(t *testing.T) {
	path := writeConfig(t, `
node:
  data_dir: /data
pipeline_manager:
  replication_factor: 2
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsContainerThresholdOutOfRange(t *testing.T) {
	path := writeConfig(t, `
node:
  data_dir: /data
safe_mode:
  container_threshold: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsDeadAfterNotExceedingStaleAfter(t *testing.T) {
	path := writeConfig(t, `
node:
  data_dir: /data
node_manager:
  stale_after: 10m
  dead_after: 5m
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Node.DataDir = ""
	require.Error(t, cfg.Validate())
}
