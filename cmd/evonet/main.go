package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nvandessel/evonet/internal/config"
	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evonet",
		Short: "Evolvable graph neural networks",
		Long: `evonet builds, trains and evolves graph-shaped neural networks.

Networks are stored per project in .evonet/evonet.db. Topology can be
changed at any time with mutations, trained with backpropagation, or
searched with a population-based evolution run.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newNewCmd(),
		newListCmd(),
		newShowCmd(),
		newDeleteCmd(),
		newActivateCmd(),
		newTrainCmd(),
		newMutateCmd(),
		newEvolveCmd(),
		newGraphCmd(),
		newExportCmd(),
		newImportCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig loads and validates the layered configuration for root.
func loadConfig(root string) (*config.EvonetConfig, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger returns the operational logger. Logs go to stderr so that
// command output stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.EvonetConfig) *slog.Logger {
	if cfg.Logging.Format == "json" {
		return logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	}
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openStore opens the project's network database, creating .evonet if needed.
func openStore(root string, cfg *config.EvonetConfig) (*store.SQLiteStore, error) {
	if err := store.EnsureLocalDir(root); err != nil {
		return nil, err
	}
	s, err := store.NewSQLiteStore(cfg.Store.ResolvePath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// networkOptions turns the mutation section into network options. A non-zero
// seed overrides the configured one.
func networkOptions(cfg *config.EvonetConfig, seed int64) ([]network.Option, error) {
	mopts, err := cfg.Mutation.Options()
	if err != nil {
		return nil, err
	}
	opts := []network.Option{network.WithMutationOptions(mopts)}
	if seed == 0 {
		seed = cfg.Mutation.Seed
	}
	if seed != 0 {
		opts = append(opts, network.WithSeed(seed))
	}
	return opts, nil
}

// loadNetwork resolves ref in s and rebuilds the stored network.
func loadNetwork(ctx context.Context, s store.NetworkStore, cfg *config.EvonetConfig, ref string, seed int64) (*store.Record, *network.Network, error) {
	rec, err := store.Find(ctx, s, ref)
	if err != nil {
		return nil, nil, err
	}
	opts, err := networkOptions(cfg, seed)
	if err != nil {
		return nil, nil, err
	}
	n, err := network.FromSnapshot(rec.Network, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load network %s: %w", rec.Name, err)
	}
	return rec, n, nil
}

// signalContext returns a context cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
