package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defistate/converter-registry-go/cmd/registryd/config"
	"github.com/defistate/converter-registry-go/ownership"
	"github.com/defistate/converter-registry-go/registry"
	"github.com/defistate/converter-registry-go/streams/jsonrpc/server"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	closeApp := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	system, err := openSystem(cfg, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize registry", "error", err)
		closeApp()
	}

	service, err := server.NewService(server.Config{
		System:     system,
		Logger:     rootLogger.With("component", "jsonrpc-server"),
		Registry:   prometheusRegistry,
		BufferSize: cfg.StreamBufferSize,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize RPC service", "error", err)
		closeApp()
	}

	rpcServer := rpc.NewServer()
	if err := server.Register(rpcServer, service); err != nil {
		rootLogger.Error("Failed to register RPC service", "error", err)
		closeApp()
	}

	streamServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: rpcServer.WebsocketHandler([]string{"*"}),
	}
	go func() {
		rootLogger.Info("Registry stream listening", "address", cfg.ListenAddress)
		if err := streamServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLogger.Error("RPC server failed", "error", err)
			stop()
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddress,
		Handler: metricsMux,
	}
	go func() {
		rootLogger.Info("Metrics listening", "address", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLogger.Error("Metrics server failed", "error", err)
			stop()
		}
	}()

	interval, err := cfg.SnapshotEvery()
	if err != nil {
		rootLogger.Error("Failed to parse snapshot interval", "error", err)
		closeApp()
	}

	snapshotter, err := server.NewSnapshotter(server.SnapshotterConfig{
		System:   system,
		Logger:   rootLogger.With("component", "snapshotter"),
		Path:     cfg.SnapshotPath,
		Interval: interval,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize snapshotter", "error", err)
		closeApp()
	}

	snapshotterDone := make(chan struct{})
	go func() {
		defer close(snapshotterDone)
		if err := snapshotter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rootLogger.Error("Snapshotter failed", "error", err)
		}
	}()

	<-ctx.Done()
	rootLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := streamServer.Shutdown(shutdownCtx); err != nil {
		rootLogger.Error("Failed to shut down RPC listener", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		rootLogger.Error("Failed to shut down metrics listener", "error", err)
	}
	rpcServer.Stop()

	// Wait for the final snapshot before exiting.
	<-snapshotterDone
	rootLogger.Info("Shutdown complete")
}

// openSystem restores the registry from the snapshot file, or starts a fresh
// one owned by the configured owner when no snapshot exists yet.
func openSystem(cfg *config.Config, logger *slog.Logger) (*registry.System, error) {
	state, err := server.LoadState(cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No snapshot found, starting a fresh registry",
			"path", cfg.SnapshotPath,
			"owner", cfg.OwnerAddress(),
		)
		auth, err := ownership.NewAuthority(cfg.OwnerAddress())
		if err != nil {
			return nil, err
		}
		return registry.NewSystem(auth, cfg.IdentityAddress())
	}
	if err != nil {
		return nil, err
	}

	system, err := registry.NewSystemFromState(state, cfg.IdentityAddress())
	if err != nil {
		return nil, err
	}
	logger.Info("Restored registry from snapshot",
		"path", cfg.SnapshotPath,
		"version", system.Version(),
		"owner", system.Owner(),
		"tokens", system.TokenCount(),
	)
	if system.Owner() != cfg.OwnerAddress() {
		logger.Warn("Snapshot owner overrides configured owner",
			"snapshot_owner", system.Owner(),
			"configured_owner", cfg.OwnerAddress(),
		)
	}
	return system, nil
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.Load(*configPath)
}
