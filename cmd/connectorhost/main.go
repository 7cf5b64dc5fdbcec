package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/connectorhost/connectorhost/internal/cache"
	"github.com/connectorhost/connectorhost/internal/config"
	"github.com/connectorhost/connectorhost/internal/connector/loader"
	"github.com/connectorhost/connectorhost/internal/connector/registry"
	"github.com/connectorhost/connectorhost/internal/metrics"
	"github.com/connectorhost/connectorhost/internal/session"
	"github.com/connectorhost/connectorhost/pkg/logger"
)

var version = "0.1.0"

const (
	cacheCapacity = 10_000
	cacheTTL      = 5 * time.Minute
)

func main() {
	var connectorsFlag string

	root := &cobra.Command{
		Use:   "connectorhost",
		Short: "Connector Host - pluggable identity connector runtime",
		Long: `Connector Host loads identity connector manifests from a directory,
fronting them with a uniform CRUD/search/sync facade, per-instance circuit
breaking and TTL caching, and a single reconnecting remote session.`,
	}
	root.PersistentFlags().StringVar(&connectorsFlag, "connectors", "", "Path to the connectors directory (overrides CONNECTORS_DIR)")

	root.AddCommand(versionCmd())
	root.AddCommand(listConnectorsCmd(&connectorsFlag))
	root.AddCommand(serveCmd(&connectorsFlag))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("connectorhost v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func listConnectorsCmd(connectorsFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-connectors",
		Short: "List connector instances discovered under the connectors directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*connectorsFlag)
			if err != nil {
				return err
			}

			reg := registry.New()
			result, err := loader.Load(cfg.ConnectorsDir, reg, loader.DefaultRegistrar)
			if err != nil {
				return fmt.Errorf("loading connectors: %w", err)
			}

			fmt.Printf("manifests loaded: %d, skipped: %d\n", result.ManifestsLoaded, result.ManifestsSkipped)
			fmt.Printf("instances initialized: %d, failed: %d\n", result.InstancesInit, result.InstancesFailed)
			fmt.Println("\nInstances:")
			for _, id := range reg.IDs() {
				fmt.Printf("  - %s\n", id)
			}
			return nil
		},
	}
}

func serveCmd(connectorsFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load connectors and maintain the remote session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*connectorsFlag)
		},
	}
}

func runServe(connectorsFlag string) error {
	cfg, err := config.Load(connectorsFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	log := logger.With(zap.String("component", "main"))

	reg := registry.New()
	result, err := loader.Load(cfg.ConnectorsDir, reg, loader.DefaultRegistrar)
	if err != nil {
		return fmt.Errorf("loading connectors: %w", err)
	}
	log.Info("connectors loaded",
		zap.Int("manifests_loaded", result.ManifestsLoaded),
		zap.Int("manifests_skipped", result.ManifestsSkipped),
		zap.Int("instances_init", result.InstancesInit),
		zap.Int("instances_failed", result.InstancesFailed))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.StartServer(ctx, cfg.MetricsAddr)

	sharedCache := cache.New(cacheCapacity, cacheTTL)
	sess := session.New(session.Config{
		ServerURL:   cfg.RemoteConnectorWSURL,
		ServiceName: "connectorhost",
		Token: session.TokenConfig{
			TokenURL:     cfg.OAuthTokenURL,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Scope:        cfg.OAuthScope,
			Audience:     cfg.OAuthAudience,
			Resource:     cfg.OAuthResource,
		},
	}, reg, sharedCache)

	sess.Start(ctx)
	log.Info("session started", zap.String("server_url", cfg.RemoteConnectorWSURL))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	sess.Shutdown()
	return nil
}
