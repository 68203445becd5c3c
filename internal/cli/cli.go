// Package cli wires the loghive node together: configuration, node
// identity, master coordination, the supervised services and signal
// handling. The boot order matters: register this node's record first,
// resolve the master role, then bring the services up as a unit.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/loghive/internal/activity"
	"github.com/ChuLiYu/loghive/internal/api"
	"github.com/ChuLiYu/loghive/internal/cluster"
	"github.com/ChuLiYu/loghive/internal/input"
	"github.com/ChuLiYu/loghive/internal/input/builtin"
	"github.com/ChuLiYu/loghive/internal/metrics"
	"github.com/ChuLiYu/loghive/internal/registry"
	"github.com/ChuLiYu/loghive/internal/supervisor"
	"github.com/ChuLiYu/loghive/pkg/types"
)

var configFile string

// BuildCLI assembles the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loghive",
		Short: "loghive: a distributed log ingestion node",
		Long: `loghive runs one node of a log ingestion cluster:
- pluggable network inputs with supervised lifecycles
- boot-time master coordination across the cluster
- a REST surface for driving inputs
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.AddCommand(buildRunCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the loghive node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode()
		},
	}
}

func runNode() error {
	logger := slog.With("component", "boot")

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	nodeID, err := cluster.LoadOrCreateNodeID(cfg.Node.IDFile)
	if err != nil {
		return err
	}
	status := cluster.NewStatus(nodeID, cfg.Node.TransportAddress, cfg.Node.IsMaster)
	logger.Info("node identity loaded", "node_id", nodeID, "master_candidate", cfg.Node.IsMaster)

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)
	aw := activity.NewWriter()

	// Collaborator stores. Single-node deployments run on the in-memory
	// implementations; clustered setups swap these for shared-backed ones.
	nodeStore := cluster.NewMemoryNodeStore(cfg.pingTimeout())
	notificationStore := cluster.NewMemoryNotificationStore()
	inputStore := registry.NewMemoryInputStore()

	// Input type table. Plugins would register here too.
	setup := input.NewSetup()
	messageLogger := slog.With("component", "ingest")
	if err := builtin.Register(setup, func(source string, raw []byte) {
		messageLogger.Debug("message received", "source", source, "bytes", len(raw))
	}); err != nil {
		return err
	}

	reg := registry.New(setup, inputStore, status, aw, collector, registry.Config{
		StopGracePeriod: cfg.stopGrace(),
	})

	// Register this node before resolving the master role; the
	// coordinator's queries assume our own record exists.
	ctx := context.Background()
	if err := nodeStore.RegisterServer(ctx, types.NodeRecord{
		NodeID:           status.NodeID(),
		IsMaster:         status.IsMaster(),
		TransportAddress: status.TransportAddress(),
	}); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	coordinator := cluster.NewCoordinator(status, nodeStore, notificationStore, aw, collector, cfg.pingTimeout())
	if err := coordinator.Run(ctx); err != nil {
		// Election conflicts resolve to demotion; only collaborator
		// failures land here, and they do not abort the boot.
		logger.Warn("master coordination incomplete", "error", err)
	}

	services := []supervisor.Service{
		cluster.NewHeartbeat(status, nodeStore, cfg.heartbeatInterval()),
		registry.NewService(reg),
		api.NewServer(cfg.API.Listen, api.NewHandler(reg, aw).Routes()),
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promReg))
		services = append(services, api.NewServer(metrics.ListenAddr(cfg.Metrics.Port), mux))
	}

	manager := supervisor.New(services...)
	if err := manager.StartAll(cfg.startupTimeout()); err != nil {
		logger.Error("startup failed, shutting down", "error", err)
		return err
	}

	aw.Write("boot", "Started up.")
	logger.Info("loghive up and running", "node_id", nodeID, "is_master", status.IsMaster())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	msg := fmt.Sprintf("SIGNAL received (%s). Shutting down.", sig)
	logger.Info(msg)
	aw.Write("boot", msg)

	return manager.StopAll(cfg.shutdownTimeout())
}
