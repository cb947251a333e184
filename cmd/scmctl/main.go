package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/apache/ozone-scm/pkg/rpc"
	"github.com/apache/ozone-scm/pkg/security"
	"github.com/apache/ozone-scm/pkg/types"
)

var (
	Version = "dev"
	addr    string
	timeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scmctl",
	Short:   "Admin client for a Storage Container Manager cluster",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:9861", "address of any SCM replica (failover follows the leader hint automatically)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(safeModeCmd)
}

func newClient() *rpc.Client {
	return rpc.NewClient(addr, clientTLSConfig(), rpc.FailoverConfig{})
}

// clientTLSConfig loads a client certificate previously placed in the
// CLI's cert directory (see the cert command group below). Returns nil
// if none is cached, which leaves the connection unencrypted for
// clusters running with security disabled.
func clientTLSConfig() *tls.Config {
	certDir, err := security.GetCLICertDir()
	if err != nil || !security.CertExists(certDir) {
		return nil
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil
	}
	pool := x509.NewCertPool()
	pool.AddCert(caCert)
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
	}
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect datanodes known to the cluster",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known datanode and its health state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		defer c.Close()
		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := c.ListNodes(ctx, &rpc.ListNodesRequest{})
		if err != nil {
			return err
		}
		for _, n := range resp.Nodes {
			fmt.Printf("%-24s %-20s %-10s last_heartbeat=%s pipelines=%d containers=%d\n",
				n.ID, n.Hostname, n.Health, n.LastHeartbeat.Format(time.RFC3339), len(n.PipelineIDs), len(n.ContainerIDs))
		}
		return nil
	},
}

func init() {
	nodeCmd.AddCommand(nodeListCmd)
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Inspect replication pipelines",
}

var pipelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every pipeline and its members",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		defer c.Close()
		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := c.ListPipelines(ctx, &rpc.ListPipelinesRequest{})
		if err != nil {
			return err
		}
		for _, p := range resp.Pipelines {
			fmt.Printf("%-36s %-10s %-6s factor=%d members=%v\n", p.ID, p.State, p.Type, p.Factor, p.Members)
		}
		return nil
	},
}

func init() {
	pipelineCmd.AddCommand(pipelineListCmd)
}

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Inspect and manage logical containers",
}

var containerGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one container's record and its reported replicas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid container id %q: %w", args[0], err)
		}
		c := newClient()
		defer c.Close()
		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := c.GetContainer(ctx, &rpc.GetContainerRequest{ID: types.ContainerID(id)})
		if err != nil {
			return err
		}
		if resp.ErrorCode != rpc.ErrNone {
			return fmt.Errorf("%s: %s", resp.ErrorCode, resp.ErrorMessage)
		}
		fmt.Printf("id=%d state=%s pipeline=%s used_bytes=%d key_count=%d owner=%s\n",
			resp.Container.ID, resp.Container.State, resp.Container.PipelineID,
			resp.Container.UsedBytes, resp.Container.KeyCount, resp.Container.Owner)
		for _, r := range resp.Replicas {
			fmt.Printf("  replica node=%s state=%s used_bytes=%d key_count=%d\n", r.NodeID, r.State, r.BytesUsed, r.KeyCount)
		}
		return nil
	},
}

var containerTriggerCmd = &cobra.Command{
	Use:   "trigger ID EVENT",
	Short: "Drive one container through a lifecycle event (e.g. CLOSE, QUASI_CLOSE, DELETE)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid container id %q: %w", args[0], err)
		}
		c := newClient()
		defer c.Close()
		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := c.TriggerContainerEvent(ctx, &rpc.TriggerContainerEventRequest{ID: types.ContainerID(id), Event: args[1]})
		if err != nil {
			return err
		}
		if resp.ErrorCode != rpc.ErrNone {
			return fmt.Errorf("%s: %s", resp.ErrorCode, resp.ErrorMessage)
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	containerCmd.AddCommand(containerGetCmd)
	containerCmd.AddCommand(containerTriggerCmd)
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage the CLI's cached mTLS client certificate",
}

var certStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached client certificate's subject and expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		certDir, err := security.GetCLICertDir()
		if err != nil {
			return err
		}
		if !security.CertExists(certDir) {
			fmt.Println("no cached client certificate, run against an insecure cluster or place one at", certDir)
			return nil
		}
		cert, err := security.LoadCertFromFile(certDir)
		if err != nil {
			return err
		}
		for k, v := range security.GetCertInfo(cert.Leaf) {
			fmt.Printf("%s: %v\n", k, v)
		}
		fmt.Printf("expires_at: %s\n", security.GetCertExpiry(cert.Leaf).Format(time.RFC3339))
		fmt.Printf("time_remaining: %s\n", security.GetCertTimeRemaining(cert.Leaf))
		if security.CertNeedsRotation(cert.Leaf) {
			fmt.Println("status: needs rotation")
		}
		return nil
	},
}

var certCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the cached client certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		certDir, err := security.GetCLICertDir()
		if err != nil {
			return err
		}
		return security.RemoveCerts(certDir)
	},
}

func init() {
	certCmd.AddCommand(certStatusCmd)
	certCmd.AddCommand(certCleanCmd)
	rootCmd.AddCommand(certCmd)
}

var safeModeCmd = &cobra.Command{
	Use:   "safemode",
	Short: "Show Safe-Mode Controller status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		defer c.Close()
		ctx, cancel := withTimeout()
		defer cancel()

		resp, err := c.SafeModeStatus(ctx, &rpc.SafeModeStatusRequest{})
		if err != nil {
			return err
		}
		fmt.Printf("in_safe_mode=%v pre_check_complete=%v\n", resp.Status.InSafeMode, resp.Status.PreCheckComplete)
		for _, line := range resp.Rules {
			fmt.Printf("  %s\n", line)
		}
		return nil
	},
}
