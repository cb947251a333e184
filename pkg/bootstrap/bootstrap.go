// Package bootstrap is the process glue: it owns the construction
// order every other package assumes (store first, then an unbound
// gateway, then the three managers, then the log built from those
// managers and bound into the gateway, then safe mode, everything
// before rpc) behind a single struct that owns the whole replica
// process.
package bootstrap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/apache/ozone-scm/pkg/config"
	"github.com/apache/ozone-scm/pkg/container"
	"github.com/apache/ozone-scm/pkg/events"
	"github.com/apache/ozone-scm/pkg/ha"
	"github.com/apache/ozone-scm/pkg/log"
	"github.com/apache/ozone-scm/pkg/metrics"
	"github.com/apache/ozone-scm/pkg/nodemanager"
	"github.com/apache/ozone-scm/pkg/pipeline"
	"github.com/apache/ozone-scm/pkg/raftlog"
	"github.com/apache/ozone-scm/pkg/rpc"
	"github.com/apache/ozone-scm/pkg/safemode"
	"github.com/apache/ozone-scm/pkg/scmerrors"
	"github.com/apache/ozone-scm/pkg/security"
	"github.com/apache/ozone-scm/pkg/store"
	"github.com/apache/ozone-scm/pkg/topology"
	"github.com/apache/ozone-scm/pkg/version"
)

// Node owns every subsystem of one SCM replica process.
type Node struct {
	cfg *config.Config
	log zerolog.Logger

	Store store.Store
	Log   *raftlog.Log
	GW    *ha.Gateway

	Bus        *events.Broker
	Nodes      *nodemanager.Manager
	Pipelines  *pipeline.Manager
	Containers *container.Manager
	SafeMode   *safemode.Controller

	CA            *security.CertAuthority
	RPCServer     *rpc.Server
	MetricsReg    *metrics.Registry
	Collector     *metrics.Collector
	HealthChecker *metrics.HealthChecker

	versionInfo *version.Info
}

// New wires up every subsystem of one replica but performs no I/O
// beyond what's needed to open the store and the VERSION file; raft
// itself is not started until Bootstrap or Join.
func New(cfg *config.Config, logger zerolog.Logger) (*Node, error) {
	versionInfo, err := loadOrInitVersion(cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Node.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	bus := events.NewBroker()
	bus.Start()

	resolver := topology.NewCached(&topology.ReverseDNSResolver{})

	// gw is handed to every manager now but has no log attached until
	// the log itself is opened below, since the log's Appliers are
	// these same managers (see ha.NewDeferred).
	gw := ha.NewDeferred()

	n := &Node{
		cfg:         cfg,
		log:         logger,
		Store:       st,
		GW:          gw,
		Bus:         bus,
		versionInfo: versionInfo,
	}

	n.Nodes = nodemanager.New(nodemanager.Config{
		ClusterID:                  versionInfo.ClusterID,
		SCMID:                      versionInfo.SCMID,
		SoftwareVersion:            "1.0.0",
		StaleAfter:                 cfg.NodeMgr.StaleAfter,
		DeadAfter:                  cfg.NodeMgr.DeadAfter,
		DeadGrace:                  cfg.NodeMgr.DeadGracePeriod,
		SweepTick:                  cfg.NodeMgr.SweepTick,
		QueueDepth:                 cfg.NodeMgr.QueueDepth,
		PipelineLimitOverride:      cfg.NodeMgr.PipelineLimitOverride,
		PipelinesPerMetadataVolume: cfg.NodeMgr.PipelinesPerMetadataVolume,
	}, gw, resolver, bus, log.WithComponent("nodemanager"))

	n.Pipelines = pipeline.New(pipeline.Config{
		CreateTimeout: cfg.Pipeline.CreateTimeout,
	}, gw, n.Nodes, nil, bus, log.WithComponent("pipeline"))

	n.Containers = container.New(container.Config{
		ContainerSizeBytes:    cfg.Container.ContainerSizeBytes,
		MinContainersPerDN:    cfg.Container.MinContainersPerDN,
		MinPipelineCountPerDN: cfg.Container.MinPipelineCountPerDN,
	}, gw, n.Pipelines, bus, log.WithComponent("container"))

	appliers := map[string]raftlog.Applier{
		raftlog.TargetNode:      n.Nodes,
		raftlog.TargetPipeline:  n.Pipelines,
		raftlog.TargetContainer: n.Containers,
	}

	raftLog, err := raftlog.Open(raftlog.Config{
		NodeID:             cfg.Node.SCMID,
		BindAddr:           cfg.Node.BindAddr,
		DataDir:            cfg.Node.DataDir,
		HeartbeatTimeout:   cfg.Raft.HeartbeatTimeout,
		ElectionTimeout:    cfg.Raft.ElectionTimeout,
		CommitTimeout:      cfg.Raft.CommitTimeout,
		LeaderLeaseTimeout: cfg.Raft.LeaderLeaseTimeout,
		ApplyTimeout:       cfg.Raft.ApplyTimeout,
	}, st, appliers, logger)
	if err != nil {
		return nil, err
	}
	n.Log = raftLog
	gw.Bind(raftLog)

	n.SafeMode = safemode.New(
		[]safemode.Rule{
			safemode.NewMinDatanodesRule(cfg.SafeMode.MinDatanodes, n.Nodes.Count),
		},
		buildOptionalRules(cfg, n),
		bus, log.WithComponent("safemode"),
	)

	n.MetricsReg = metrics.New()
	n.Collector = metrics.NewCollector(n.MetricsReg, n.Nodes, n.Pipelines, n.Containers, raftLog, n.SafeMode.InSafeMode)
	n.HealthChecker = metrics.NewHealthChecker("1.0.0", []string{"store", "raft"})

	if cfg.Security.Enabled {
		if err := n.initSecurity(); err != nil {
			return nil, scmerrors.Wrap(scmerrors.SecurityInitFailed, err, "initialize security")
		}
	}

	n.RPCServer = &rpc.Server{
		Nodes:      n.Nodes,
		Pipelines:  n.Pipelines,
		Containers: n.Containers,
		SafeMode:   n.SafeMode,
		Gateway:    gw,
		Log:        log.WithComponent("rpc"),
		TLSConfig:  n.serverTLSConfig(),
	}

	return n, nil
}

func buildOptionalRules(cfg *config.Config, n *Node) []safemode.Rule {
	rules := []safemode.Rule{
		safemode.NewContainerReplicaRule(cfg.SafeMode.ContainerThreshold, n.Containers.Count, n.Containers.ReportedCount),
	}
	if cfg.SafeMode.PipelineAvailabilityCheck {
		rules = append(rules,
			safemode.NewHealthyPipelineRule(cfg.SafeMode.PipelineThreshold, n.Pipelines.ReplicatedTotal, n.Pipelines.ReplicatedHealthy),
			safemode.NewOneReplicaPipelineRule(n.Pipelines.ReplicatedTotal, n.Pipelines.ReplicatedHealthy),
		)
	}
	return rules
}

func loadOrInitVersion(cfg *config.Config, logger zerolog.Logger) (*version.Info, error) {
	if version.Exists(cfg.Node.DataDir) {
		return version.Load(cfg.Node.DataDir)
	}

	clusterID := cfg.Security.ClusterID
	if clusterID == "" {
		clusterID = version.NewClusterID()
	}
	info := &version.Info{
		NodeType:      version.NodeTypeSCM,
		ClusterID:     clusterID,
		SCMID:         version.NewID(),
		CreationTime:  time.Now().Unix(),
		LayoutVersion: 1,
	}
	if err := version.Write(cfg.Node.DataDir, info); err != nil {
		return nil, err
	}
	logger.Info().Str("cluster_id", info.ClusterID).Str("scm_id", info.SCMID).Msg("initialized fresh storage root")
	return info, nil
}

func (n *Node) initSecurity() error {
	ca := security.NewCertAuthority(n.cfg.Node.DataDir, n.versionInfo.ClusterID)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return err
		}
		if err := ca.SaveToStore(); err != nil {
			return err
		}
	}
	n.CA = ca
	return nil
}

// serverTLSConfig resolves the RPC server's mTLS material, reusing a
// cached certificate from disk when one exists, is still chained to
// the current root CA, and isn't within its rotation window — avoiding
// a fresh CA signature on every process restart.
func (n *Node) serverTLSConfig() *tls.Config {
	if n.CA == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(n.cfg.Node.RPCAddr)
	if err != nil {
		host = n.cfg.Node.RPCAddr
	}

	certDir, err := security.GetCertDir("scm", n.versionInfo.SCMID)
	if err != nil {
		n.log.Error().Err(err).Msg("failed to resolve rpc server cert directory")
		return nil
	}

	var rootCert *x509.Certificate
	if rootDER := n.CA.GetRootCACert(); len(rootDER) > 0 {
		rootCert, _ = x509.ParseCertificate(rootDER)
	}

	cert := n.cachedServerCert(certDir, rootCert)
	if cert == nil {
		issued, err := n.CA.IssueNodeCertificate(n.versionInfo.SCMID, "scm", []string{host}, nil)
		if err != nil {
			n.log.Error().Err(err).Msg("failed to issue rpc server certificate")
			return nil
		}
		if err := security.SaveCertToFile(issued, certDir); err != nil {
			n.log.Warn().Err(err).Str("cert_dir", certDir).Msg("failed to cache rpc server certificate to disk")
		}
		if rootCert != nil {
			if err := security.SaveCACertToFile(rootCert.Raw, certDir); err != nil {
				n.log.Warn().Err(err).Str("cert_dir", certDir).Msg("failed to cache root CA certificate to disk")
			}
		}
		cert = issued
	}

	pool := x509.NewCertPool()
	if rootCert != nil {
		pool.AddCert(rootCert)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
}

// cachedServerCert returns the on-disk certificate for certDir if it
// exists, still validates against rootCert, and isn't due for
// rotation; nil otherwise.
func (n *Node) cachedServerCert(certDir string, rootCert *x509.Certificate) *tls.Certificate {
	if rootCert == nil || !security.CertExists(certDir) {
		return nil
	}
	cached, err := security.LoadCertFromFile(certDir)
	if err != nil {
		n.log.Warn().Err(err).Str("cert_dir", certDir).Msg("failed to load cached rpc server certificate")
		return nil
	}
	if security.CertNeedsRotation(cached.Leaf) {
		n.log.Info().Str("cert_dir", certDir).Msg("cached rpc server certificate due for rotation")
		return nil
	}
	if err := security.ValidateCertChain(cached.Leaf, rootCert); err != nil {
		n.log.Warn().Err(err).Str("cert_dir", certDir).Msg("cached rpc server certificate no longer chains to root CA")
		return nil
	}
	return cached
}

// Bootstrap forms a brand new single-replica raft cluster. Subsequent
// replicas join via Join against the leader instead.
func (n *Node) Bootstrap() error {
	return n.Log.Bootstrap()
}

// Join admits this already-running replica into an existing cluster by
// asking the current leader (reached at leaderAddr) to add it as a
// voter. The leader-side half of this call is raftlog.Log.AddVoter,
// invoked over the admin RPC surface by whichever tool drives cluster
// expansion (cmd/scmctl).
func (n *Node) Join(leaderAddr string) error {
	return n.Log.AddVoter(n.cfg.Node.SCMID, n.cfg.Node.BindAddr)
}

// Start launches every background subsystem (sweeper, metrics
// collector) and then serves RPC, blocking the calling goroutine.
func (n *Node) Start() error {
	n.Nodes.RunSweeper()
	n.Collector.Start()
	n.HealthChecker.RegisterComponent("store", true, "")
	n.HealthChecker.RegisterComponent("raft", true, "")
	return n.RPCServer.Start(n.cfg.Node.RPCAddr)
}

// Shutdown stops every subsystem in the reverse order Start brought
// them up, then releases the store.
func (n *Node) Shutdown() error {
	n.RPCServer.Stop()
	n.Collector.Stop()
	n.Nodes.Stop()
	if err := n.Log.Shutdown(); err != nil {
		return err
	}
	return n.Store.Close()
}
