package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/evonet/internal/architect"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/spf13/cobra"
)

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <type>",
		Short: "Build a network and store it",
		Long: fmt.Sprintf(`Build a network from one of the standard architectures and save it.

Types: %s

Examples:
  evonet new perceptron --inputs 2 --hidden 4 --outputs 1 --name xor
  evonet new lstm --inputs 1 --hidden 6 --outputs 1
  evonet new narx --inputs 1 --hidden 4 --outputs 1 --input-memory 3 --output-memory 2
  evonet new liquid --inputs 2 --outputs 1 --max-hidden 8 --max-mutations 20`,
			strings.Join(architect.Types(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("name")
			seed, _ := cmd.Flags().GetInt64("seed")

			spec := architect.Spec{Type: strings.ToLower(args[0])}
			spec.Inputs, _ = cmd.Flags().GetInt("inputs")
			spec.Hidden, _ = cmd.Flags().GetIntSlice("hidden")
			spec.Outputs, _ = cmd.Flags().GetInt("outputs")
			spec.InputMemory, _ = cmd.Flags().GetInt("input-memory")
			spec.OutputMemory, _ = cmd.Flags().GetInt("output-memory")
			spec.MaxHidden, _ = cmd.Flags().GetInt("max-hidden")
			spec.MaxMutations, _ = cmd.Flags().GetInt("max-mutations")

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			opts, err := networkOptions(cfg, seed)
			if err != nil {
				return err
			}
			n, err := architect.Build(spec, opts...)
			if err != nil {
				return err
			}

			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := context.Background()
			id, err := s.Save(ctx, store.Record{
				Name:         name,
				Architecture: spec.String(),
				Network:      n.Snapshot(),
			})
			if err != nil {
				return fmt.Errorf("failed to save network: %w", err)
			}
			rec, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			sum := store.Summarize(*rec)

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", sum.Name, sum.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d nodes, %d connections\n", sum.Architecture, sum.Nodes, sum.Connections)
			return nil
		},
	}

	cmd.Flags().Int("inputs", 1, "Number of input nodes")
	cmd.Flags().IntSlice("hidden", nil, "Hidden layer sizes (comma-separated)")
	cmd.Flags().Int("outputs", 1, "Number of output nodes")
	cmd.Flags().Int("input-memory", 1, "NARX input memory depth")
	cmd.Flags().Int("output-memory", 1, "NARX output memory depth")
	cmd.Flags().Int("max-hidden", 10, "Liquid hidden node budget")
	cmd.Flags().Int("max-mutations", 20, "Liquid mutation budget")
	cmd.Flags().String("name", "", "Network name (default: ID prefix)")
	cmd.Flags().Int64("seed", 0, "Random seed (default: mutation.seed, else time-based)")

	return cmd
}
