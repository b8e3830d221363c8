package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nvandessel/evonet/internal/constants"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/nvandessel/evonet/internal/train"
	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <network>",
		Short: "Train a network with back-propagation",
		Long: `Train a stored network on a sample file and save the result.

Samples are a JSON array or JSON lines of {"input": [...], "output": [...]}.
Flags override the training section of the configuration.

Examples:
  evonet train xor --data xor.json --epochs 5000 --rate 0.5
  evonet train xor --data xor.json --batch --batch-size 4
  evonet train xor --data xor.json --save-as xor-trained`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			dataPath, _ := cmd.Flags().GetString("data")
			saveAs, _ := cmd.Flags().GetString("save-as")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			seed, _ := cmd.Flags().GetInt64("seed")

			if dataPath == "" {
				return fmt.Errorf("--data is required")
			}
			samples, err := train.LoadSamples(dataPath)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			opts := train.OptionsFromConfig(cfg.Training)
			flags := cmd.Flags()
			if flags.Changed("rate") {
				opts.Rate, _ = flags.GetFloat64("rate")
			}
			if flags.Changed("momentum") {
				opts.Momentum, _ = flags.GetFloat64("momentum")
			}
			if flags.Changed("epochs") {
				opts.Epochs, _ = flags.GetInt("epochs")
			}
			if flags.Changed("error") {
				opts.ErrorThreshold, _ = flags.GetFloat64("error")
			}
			if flags.Changed("batch") {
				opts.Batch, _ = flags.GetBool("batch")
			}
			if flags.Changed("batch-size") {
				opts.BatchSize, _ = flags.GetInt("batch-size")
			}
			if flags.Changed("shuffle") {
				opts.Shuffle, _ = flags.GetBool("shuffle")
			}
			if flags.Changed("log-every") {
				opts.LogEvery, _ = flags.GetInt("log-every")
			}
			opts.Clear, _ = flags.GetBool("clear")

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

			res, err := train.Train(ctx, n, samples, opts, newLogger(cmd, cfg))
			if err != nil {
				return err
			}

			saved := store.Summary{}
			if !dryRun {
				out := *rec
				out.Network = n.Snapshot()
				if saveAs != "" {
					out = store.Record{Name: saveAs, Architecture: rec.Architecture, Network: n.Snapshot()}
				}
				id, err := s.Save(ctx, out)
				if err != nil {
					return fmt.Errorf("failed to save network: %w", err)
				}
				stored, err := s.Get(ctx, id)
				if err != nil {
					return err
				}
				saved = store.Summarize(*stored)
			}

			if jsonOut {
				result := map[string]interface{}{
					"epochs":      res.Epochs,
					"error":       res.Error,
					"duration_ms": res.Duration.Milliseconds(),
					"saved":       !dryRun,
				}
				if !dryRun {
					result["network"] = saved
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Trained %s for %d epochs in %s\n", rec.Name, res.Epochs, res.Duration.Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "  final error: %.6g\n", res.Error)
			if !dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "  saved as %s (%s)\n", saved.Name, saved.ID)
			}
			return nil
		},
	}

	cmd.Flags().String("data", "", "Sample file (JSON array or JSONL)")
	cmd.Flags().Float64("rate", constants.DefaultRate, "Learning rate")
	cmd.Flags().Float64("momentum", constants.DefaultMomentum, "Momentum")
	cmd.Flags().Int("epochs", constants.DefaultEpochs, "Maximum epochs")
	cmd.Flags().Float64("error", constants.DefaultErrorThreshold, "Stop once the epoch error is at or below this")
	cmd.Flags().Bool("batch", false, "Accumulate updates and apply them per batch")
	cmd.Flags().Int("batch-size", constants.DefaultBatchSize, "Samples per batch (0 = whole epoch)")
	cmd.Flags().Bool("shuffle", true, "Shuffle samples every epoch")
	cmd.Flags().Bool("clear", false, "Reset recurrent state before each epoch")
	cmd.Flags().Int("log-every", constants.DefaultLogEvery, "Epochs between progress log lines (0 disables)")
	cmd.Flags().Int64("seed", 0, "Random seed for shuffling")
	cmd.Flags().String("save-as", "", "Save as a new network with this name instead of overwriting")
	cmd.Flags().Bool("dry-run", false, "Train without saving")

	return cmd
}
