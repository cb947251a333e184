package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apache/ozone-scm/pkg/bootstrap"
	"github.com/apache/ozone-scm/pkg/config"
	"github.com/apache/ozone-scm/pkg/log"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scm",
	Short:   "Storage Container Manager replica",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"scm version %s\ncommit: %s\nbuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().String("config", "", "path to the scm config file")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(joinCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(path)
}

func initLogger(cfg *config.Config) {
	level := log.InfoLevel
	switch cfg.Logging.Level {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{
		Level:      level,
		JSONOutput: cfg.Logging.Format != "console",
	})
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize this replica's storage root and form a brand new single-replica cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		initLogger(cfg)

		node, err := bootstrap.New(cfg, log.Logger)
		if err != nil {
			return fmt.Errorf("failed to construct node: %w", err)
		}
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
		log.Info(fmt.Sprintf("initialized storage root at %s", cfg.Node.DataDir))
		return node.Shutdown()
	},
}

var joinCmd = &cobra.Command{
	Use:   "join LEADER_ADDR",
	Short: "Admit this already-initialized replica into an existing cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		initLogger(cfg)

		node, err := bootstrap.New(cfg, log.Logger)
		if err != nil {
			return fmt.Errorf("failed to construct node: %w", err)
		}
		if err := node.Join(args[0]); err != nil {
			return fmt.Errorf("failed to join cluster: %w", err)
		}
		return node.Shutdown()
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this replica and serve RPC until terminated",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		initLogger(cfg)
		logger := log.Logger

		node, err := bootstrap.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to construct node: %w", err)
		}

		errCh := make(chan error, 2)
		go func() {
			if err := node.Start(); err != nil {
				errCh <- fmt.Errorf("rpc server error: %w", err)
			}
		}()

		if cfg.Metrics.Enabled {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, node.MetricsReg.Handler())
			mux.Handle("/healthz", node.HealthChecker.HealthHandler())
			mux.Handle("/readyz", node.HealthChecker.ReadyHandler())
			mux.Handle("/livez", node.HealthChecker.LivenessHandler())
			go func() {
				if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
					errCh <- fmt.Errorf("metrics server error: %w", err)
				}
			}()
		}

		logger.Info().Str("rpc_addr", cfg.Node.RPCAddr).Msg("scm replica running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("received shutdown signal")
		case err := <-errCh:
			log.Errorf("subsystem error, shutting down", err)
		}

		if err := node.Shutdown(); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	},
}
