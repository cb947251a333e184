// Package config loads the SCM configuration surface from a YAML
// file, following a load/defaults/validate shape common to
// storage-node configs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig identifies this replica and where its state lives.
type NodeConfig struct {
	SCMID    string `yaml:"scm_id"`
	BindAddr string `yaml:"bind_addr"`
	RPCAddr  string `yaml:"rpc_addr"`
	DataDir  string `yaml:"data_dir"`
}

// RaftConfig configures the Replicated Log.
type RaftConfig struct {
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	ElectionTimeout    time.Duration `yaml:"election_timeout"`
	CommitTimeout      time.Duration `yaml:"commit_timeout"`
	LeaderLeaseTimeout time.Duration `yaml:"leader_lease_timeout"`
	ApplyTimeout       time.Duration `yaml:"apply_timeout"`
}

// NodeManagerConfig configures the Node Manager's heartbeat/health
// tunables.
type NodeManagerConfig struct {
	HeartbeatInterval          time.Duration `yaml:"heartbeat_interval"`
	StaleAfter                 time.Duration `yaml:"stale_after"`
	DeadAfter                  time.Duration `yaml:"dead_after"`
	DeadGracePeriod            time.Duration `yaml:"dead_grace_period"`
	SweepTick                  time.Duration `yaml:"sweep_tick"`
	QueueDepth                 int           `yaml:"queue_depth"`
	PipelinesPerMetadataVolume int           `yaml:"pipelines_per_metadata_volume"`
	PipelineLimitOverride      int           `yaml:"pipeline_limit_override"`
}

// PipelineManagerConfig configures pipeline creation.
type PipelineManagerConfig struct {
	CreateTimeout     time.Duration `yaml:"create_timeout"`
	ReplicationType   string        `yaml:"replication_type"`   // "single-copy" | "replicated"
	ReplicationFactor int           `yaml:"replication_factor"` // 1 | 3
}

// ContainerManagerConfig configures container sizing and
// pre-allocation thresholds.
type ContainerManagerConfig struct {
	ContainerSizeBytes    int64 `yaml:"container_size_bytes"`
	MinContainersPerDN    int   `yaml:"min_containers_per_dn"`
	MinPipelineCountPerDN int   `yaml:"min_pipeline_count_per_dn"`
}

// SafeModeConfig configures the Safe-Mode Controller.
type SafeModeConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	MinDatanodes             int     `yaml:"min_datanodes"`
	ContainerThreshold       float64 `yaml:"container_threshold"`
	PipelineAvailabilityCheck bool   `yaml:"pipeline_availability_check"`
	PipelineThreshold        float64 `yaml:"pipeline_threshold"`
}

// FailoverConfig configures client-side transparent failover.
type FailoverConfig struct {
	MaxAttempts        int           `yaml:"failover_max_attempts"`
	WaitBetweenRetries time.Duration `yaml:"wait_between_retries_ms"`
}

// SecurityConfig configures mutual-TLS between datanodes, clients and
// SCM replicas.
type SecurityConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ClusterID string `yaml:"cluster_id"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "console"
}

// Config is the complete SCM configuration surface.
type Config struct {
	Node      NodeConfig             `yaml:"node"`
	Raft      RaftConfig             `yaml:"raft"`
	NodeMgr   NodeManagerConfig      `yaml:"node_manager"`
	Pipeline  PipelineManagerConfig  `yaml:"pipeline_manager"`
	Container ContainerManagerConfig `yaml:"container_manager"`
	SafeMode  SafeModeConfig         `yaml:"safe_mode"`
	Failover  FailoverConfig         `yaml:"failover"`
	Security  SecurityConfig         `yaml:"security"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Logging   LoggingConfig          `yaml:"logging"`
}

// Load reads and validates a YAML config file, filling in defaults for
// anything left unspecified.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Node.DataDir == "" {
		cfg.Node.DataDir = "/var/lib/scm"
	}
	if cfg.Node.BindAddr == "" {
		cfg.Node.BindAddr = "0.0.0.0:9894"
	}
	if cfg.Node.RPCAddr == "" {
		cfg.Node.RPCAddr = "0.0.0.0:9861"
	}

	if cfg.Raft.HeartbeatTimeout == 0 {
		cfg.Raft.HeartbeatTimeout = 1 * time.Second
	}
	if cfg.Raft.ElectionTimeout == 0 {
		cfg.Raft.ElectionTimeout = 1 * time.Second
	}
	if cfg.Raft.CommitTimeout == 0 {
		cfg.Raft.CommitTimeout = 50 * time.Millisecond
	}
	if cfg.Raft.LeaderLeaseTimeout == 0 {
		cfg.Raft.LeaderLeaseTimeout = 500 * time.Millisecond
	}
	if cfg.Raft.ApplyTimeout == 0 {
		cfg.Raft.ApplyTimeout = 10 * time.Second
	}

	if cfg.NodeMgr.HeartbeatInterval == 0 {
		cfg.NodeMgr.HeartbeatInterval = 30 * time.Second
	}
	if cfg.NodeMgr.StaleAfter == 0 {
		cfg.NodeMgr.StaleAfter = 90 * time.Second
	}
	if cfg.NodeMgr.DeadAfter == 0 {
		cfg.NodeMgr.DeadAfter = 15 * time.Minute
	}
	if cfg.NodeMgr.DeadGracePeriod == 0 {
		cfg.NodeMgr.DeadGracePeriod = 24 * time.Hour
	}
	if cfg.NodeMgr.SweepTick == 0 {
		cfg.NodeMgr.SweepTick = 10 * time.Second
	}
	if cfg.NodeMgr.QueueDepth == 0 {
		cfg.NodeMgr.QueueDepth = 100
	}
	if cfg.NodeMgr.PipelinesPerMetadataVolume == 0 {
		cfg.NodeMgr.PipelinesPerMetadataVolume = 2
	}

	if cfg.Pipeline.CreateTimeout == 0 {
		cfg.Pipeline.CreateTimeout = 30 * time.Second
	}
	if cfg.Pipeline.ReplicationType == "" {
		cfg.Pipeline.ReplicationType = "replicated"
	}
	if cfg.Pipeline.ReplicationFactor == 0 {
		cfg.Pipeline.ReplicationFactor = 3
	}

	if cfg.Container.ContainerSizeBytes == 0 {
		cfg.Container.ContainerSizeBytes = 5 * 1024 * 1024 * 1024 // 5GB
	}
	if cfg.Container.MinContainersPerDN == 0 {
		cfg.Container.MinContainersPerDN = 10
	}
	if cfg.Container.MinPipelineCountPerDN == 0 {
		cfg.Container.MinPipelineCountPerDN = 2
	}

	if cfg.SafeMode.MinDatanodes == 0 {
		cfg.SafeMode.MinDatanodes = 1
	}
	if cfg.SafeMode.ContainerThreshold == 0 {
		cfg.SafeMode.ContainerThreshold = 0.99
	}
	if cfg.SafeMode.PipelineThreshold == 0 {
		cfg.SafeMode.PipelineThreshold = 0.90
	}

	if cfg.Failover.MaxAttempts == 0 {
		cfg.Failover.MaxAttempts = 3
	}
	if cfg.Failover.WaitBetweenRetries == 0 {
		cfg.Failover.WaitBetweenRetries = 500 * time.Millisecond
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "0.0.0.0:9895"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the loaded configuration for internally-inconsistent
// values calls out explicitly.
func (c *Config) Validate() error {
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	if c.SafeMode.ContainerThreshold < 0 || c.SafeMode.ContainerThreshold > 1 {
		return fmt.Errorf("safe_mode.container_threshold must be in [0,1]")
	}
	if c.Pipeline.ReplicationFactor != 1 && c.Pipeline.ReplicationFactor != 3 {
		return fmt.Errorf("pipeline_manager.replication_factor must be 1 or 3")
	}
	if c.NodeMgr.DeadAfter <= c.NodeMgr.StaleAfter {
		return fmt.Errorf("node_manager.dead_after must exceed node_manager.stale_after")
	}
	if c.NodeMgr.StaleAfter <= c.NodeMgr.HeartbeatInterval {
		return fmt.Errorf("node_manager.stale_after must exceed node_manager.heartbeat_interval")
	}
	return nil
}
