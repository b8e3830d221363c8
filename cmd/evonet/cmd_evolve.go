package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nvandessel/evonet/internal/backup"
	"github.com/nvandessel/evonet/internal/evolve"
	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/nvandessel/evonet/internal/train"
	"github.com/spf13/cobra"
)

func newEvolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evolve <network>",
		Short: "Evolve a population seeded from a network",
		Long: `Run population-based neuro-evolution against a sample file. Fitness is
the negative mean squared error, minus --growth times the network size.
The best network found is saved under --name.

With checkpointing enabled the ranked elites are archived to
.evonet/checkpoints every N generations; older checkpoints are pruned
according to evolution.checkpoint_keep.

Examples:
  evonet evolve xor --data xor.json --generations 200 --seed 1
  evonet evolve xor --data xor.json --kind add-node --kind weight --growth 0.0001
  evonet evolve xor --data xor.json --checkpoint-every 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			dataPath, _ := cmd.Flags().GetString("data")
			name, _ := cmd.Flags().GetString("name")
			seed, _ := cmd.Flags().GetInt64("seed")
			growth, _ := cmd.Flags().GetFloat64("growth")
			kindNames, _ := cmd.Flags().GetStringSlice("kind")

			if dataPath == "" {
				return fmt.Errorf("--data is required")
			}
			samples, err := train.LoadSamples(dataPath)
			if err != nil {
				return err
			}
			kinds, err := parseMutationKinds(kindNames)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			settings := cfg.Evolution
			flags := cmd.Flags()
			if flags.Changed("population") {
				settings.Population, _ = flags.GetInt("population")
			}
			if flags.Changed("elitism") {
				settings.Elitism, _ = flags.GetInt("elitism")
			}
			if flags.Changed("generations") {
				settings.Generations, _ = flags.GetInt("generations")
			}
			if flags.Changed("mutations") {
				settings.MutationsPerChild, _ = flags.GetInt("mutations")
			}
			if flags.Changed("workers") {
				settings.Workers, _ = flags.GetInt("workers")
			}
			if flags.Changed("target-error") {
				settings.TargetError, _ = flags.GetFloat64("target-error")
			}
			if flags.Changed("checkpoint-every") {
				settings.CheckpointEvery, _ = flags.GetInt("checkpoint-every")
			}
			if seed == 0 {
				seed = cfg.Mutation.Seed
			}
			ecfg := evolve.ConfigFromSettings(settings, seed)
			ecfg.Mutations = kinds
			if len(kinds) == 0 && cfg.Mutation.FeedForwardOnly {
				ecfg.Mutations = network.FeedForwardMutations()
			}
			if err := ecfg.Validate(); err != nil {
				return err
			}

			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			rec, n, err := loadNetwork(ctx, s, cfg, args[0], seed)
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg)
			decisions := logging.NewDecisionLogger(store.LocalPath(root), cfg.Logging.Level)
			defer decisions.Close()

			opts := []evolve.Option{
				evolve.WithLogger(logger),
				evolve.WithDecisionLogger(decisions),
			}
			var checkpoints []string
			if settings.CheckpointEvery > 0 {
				dir := store.CheckpointPath(root)
				keep := settings.CheckpointKeep
				opts = append(opts, evolve.WithCheckpoint(settings.CheckpointEvery,
					func(ctx context.Context, gen int, ranked []evolve.Genome) error {
						path, err := writeCheckpoint(dir, rec, gen, ranked, settings.Elitism)
						if err != nil {
							return err
						}
						checkpoints = append(checkpoints, path)
						if keep > 0 {
							deleted, err := backup.ApplyRetention(dir, &backup.CountPolicy{MaxCount: keep})
							if err != nil {
								return fmt.Errorf("pruning checkpoints: %w", err)
							}
							if len(deleted) > 0 {
								logger.Debug("pruned checkpoints", "count", len(deleted))
							}
						}
						return nil
					}))
			}

			fitness := evolve.Penalize(evolve.ErrorFitness(samples), growth)
			res, err := evolve.Run(ctx, n, fitness, ecfg, opts...)
			if err != nil {
				return err
			}

			if name == "" {
				name = rec.Name + "-evolved"
			}
			id, err := s.Save(ctx, store.Record{
				Name:         name,
				Architecture: rec.Architecture,
				Network:      res.Best.Snapshot(),
			})
			if err != nil {
				return fmt.Errorf("failed to save network: %w", err)
			}
			stored, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			saved := store.Summarize(*stored)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"network":     saved,
					"fitness":     res.Fitness,
					"generations": res.Generations,
					"converged":   res.Converged,
					"history":     res.History,
					"checkpoints": checkpoints,
					"duration_ms": res.Duration.Milliseconds(),
				})
			}

			out := cmd.OutOrStdout()
			status := "finished"
			if res.Converged {
				status = "converged"
			}
			fmt.Fprintf(out, "Evolution %s after %d generations in %s\n",
				status, res.Generations, res.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  best fitness: %.6g\n", res.Fitness)
			fmt.Fprintf(out, "  saved as %s (%s): %d nodes, %d connections\n",
				saved.Name, saved.ID, saved.Nodes, saved.Connections)
			if len(checkpoints) > 0 {
				fmt.Fprintf(out, "  %d checkpoints written to %s\n", len(checkpoints), store.CheckpointPath(root))
			}
			return nil
		},
	}

	cmd.Flags().String("data", "", "Sample file (JSON array or JSONL)")
	cmd.Flags().String("name", "", "Name for the best network (default: <source>-evolved)")
	cmd.Flags().Int64("seed", 0, "Random seed for the run (default: mutation.seed, else time-based)")
	cmd.Flags().Int("population", 0, "Population size")
	cmd.Flags().Int("elitism", 0, "Genomes copied unchanged into the next generation")
	cmd.Flags().Int("generations", 0, "Maximum generations")
	cmd.Flags().Int("mutations", 0, "Mutations applied to each child")
	cmd.Flags().Int("workers", 0, "Concurrent fitness evaluations")
	cmd.Flags().Float64("target-error", 0, "Stop once the best error is at or below this (0 disables)")
	cmd.Flags().Int("checkpoint-every", 0, "Archive the elites every N generations (0 disables)")
	cmd.Flags().Float64("growth", 0, "Fitness penalty per node, connection and gate")
	cmd.Flags().StringSlice("kind", nil, "Mutation kinds to draw from (repeatable, default all)")

	return cmd
}

// writeCheckpoint archives the top genomes of a ranked generation.
func writeCheckpoint(dir string, source *store.Record, gen int, ranked []evolve.Genome, elites int) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}
	if elites < 1 {
		elites = 1
	}
	if elites > len(ranked) {
		elites = len(ranked)
	}

	records := make([]store.Record, 0, elites)
	for i, g := range ranked[:elites] {
		records = append(records, store.Record{
			Name:         fmt.Sprintf("%s-gen%d-%d", source.Name, gen, i),
			Architecture: source.Architecture,
			Network:      g.Network.Snapshot(),
		})
	}
	a := backup.NewArchive(records...)
	a.Metadata = map[string]string{
		"source":     source.ID,
		"generation": strconv.Itoa(gen),
		"fitness":    strconv.FormatFloat(ranked[0].Fitness, 'g', -1, 64),
	}

	path := backup.CheckpointPath(dir, gen)
	if err := backup.WriteArchive(path, a); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	return path, nil
}
