package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sarfflow/bridgectl/internal/config"
	"github.com/Sarfflow/bridgectl/internal/forge"
	"github.com/Sarfflow/bridgectl/internal/git"
	"github.com/Sarfflow/bridgectl/internal/logsync"
	"github.com/Sarfflow/bridgectl/internal/migration"
	"github.com/Sarfflow/bridgectl/internal/paths"
	"github.com/Sarfflow/bridgectl/internal/router"
	"github.com/Sarfflow/bridgectl/internal/tunnel"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes, stable for scripting.
const (
	exitOK          = 0
	exitGeneral     = 1
	exitConfig      = 3
	exitTimeout     = 4
	exitLogNotFound = 5
)

var (
	cfgFile    string
	debug      bool
	jsonOut    bool
	bridgeName string
	noTunnel   bool

	rootCmd = &cobra.Command{
		Use:   "bridgectl",
		Short: "Run commands and sync logs on a Bridge host",
		Long: `bridgectl drives a remote Bridge host through two transports:

  direct    SSH over a WebSocket tunnel (fast, interactive)
  mediated  workflow dispatch on a Gitea/GitHub repository plus
            artifact retrieval (works without any inbound access)

The direct transport is preferred when a bridge profile is configured
and reachable; operations fall back to the mediated path automatically.

Get started:
  bridgectl tunnel add my-bridge https://tunnel.example.com/abc123
  bridgectl exec -- nvidia-smi
  bridgectl logs <job-id> --follow`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to configuration file (default: ~/.config/bridgectl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVarP(&bridgeName, "bridge", "b", "", "Bridge profile to use (defaults to the configured default)")
	rootCmd.PersistentFlags().BoolVar(&noTunnel, "no-tunnel", false, "Skip the direct transport and force the mediated path")

	rootCmd.SetVersionTemplate(`{{printf "bridgectl %s\n" .Version}}`)
}

// runtime bundles everything a command handler needs: resolved config,
// path layout, both stores and the direct transport.
type runtime struct {
	cfg       *config.Config
	viper     *viper.Viper
	paths     *paths.Paths
	bridges   *tunnel.Store
	jobs      *logsync.JobStore
	transport *tunnel.Transport
}

func newRuntime() (*runtime, error) {
	p, err := paths.New()
	if err != nil {
		return nil, err
	}
	if err := p.EnsureDirs(); err != nil {
		return nil, err
	}

	cfg, v, err := config.LoadWithViper(cfgFile)
	if err != nil {
		return nil, err
	}

	bridges := tunnel.LoadStore(p.BridgesFile())
	if legacyPath, found := p.FindLegacyTunnelConf(); found {
		if migrated, err := migration.AutoMigrate(bridges, legacyPath); err != nil {
			slog.Warn("legacy tunnel.conf migration failed", "error", err)
		} else if migrated {
			fmt.Fprintf(os.Stderr, "Migrated legacy %s to %s\n", legacyPath, p.BridgesFile())
		}
	}

	transport := tunnel.NewTransport(bridges, p.HelperBinary(), cfg.Bridge.HelperDownloadURL)

	return &runtime{
		cfg:       cfg,
		viper:     v,
		paths:     p,
		bridges:   bridges,
		jobs:      logsync.OpenJobStore(p.JobsFile()),
		transport: transport,
	}, nil
}

func (rt *runtime) forgeClient() (*forge.Client, error) {
	// When no repo is configured, running inside a clone of the target
	// repository is enough: fall back to the origin remote.
	if _, err := rt.cfg.ActiveRepo(); err != nil {
		if repo, detectErr := git.DetectRepository(); detectErr == nil {
			slog.Debug("using repository from origin remote", "repo", repo)
			rt.cfg.SetActiveRepo(repo)
		}
	}
	return forge.New(rt.cfg)
}

func (rt *runtime) router() *router.Router {
	return router.New(rt.transport, bridgeName, noTunnel)
}

func (rt *runtime) syncer(client *forge.Client) *logsync.Syncer {
	return logsync.NewSyncer(client, rt.cfg, rt.jobs, rt.paths.LogCacheDir())
}

// signalContext returns a context cancelled by Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitCodeFor maps error types to the stable exit codes.
func exitCodeFor(err error) int {
	var authErr *forge.AuthError
	var cfgErr *config.ConfigError
	var timeoutErr *forge.TimeoutError
	switch {
	case errors.As(err, &authErr), errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &timeoutErr):
		return exitTimeout
	case errors.Is(err, logsync.ErrLogNotFound):
		return exitLogNotFound
	}
	return exitGeneral
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}
