package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/spf13/cobra"
)

type mutationStep struct {
	Kind    network.MutationKind `json:"kind"`
	Applied bool                 `json:"applied"`
}

func mutationNames(kinds []network.MutationKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// parseMutationKinds parses names, returning nil for an empty list.
func parseMutationKinds(names []string) ([]network.MutationKind, error) {
	var kinds []network.MutationKind
	for _, name := range names {
		k, err := network.ParseMutationKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func newMutateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mutate <network>",
		Short: "Apply random mutations to a network",
		Long: fmt.Sprintf(`Apply --count mutations drawn uniformly from the --kind list (all kinds
when omitted) and save the result. A mutation with no eligible target is
reported as not applied.

Kinds: %s

Examples:
  evonet mutate xor --kind add-node
  evonet mutate xor --count 10 --kind weight --kind bias
  evonet mutate xor --count 5 --save-as xor-variant`, mutationNames(network.AllMutations())),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			kindNames, _ := cmd.Flags().GetStringSlice("kind")
			count, _ := cmd.Flags().GetInt("count")
			seed, _ := cmd.Flags().GetInt64("seed")
			saveAs, _ := cmd.Flags().GetString("save-as")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			kinds, err := parseMutationKinds(kindNames)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := context.Background()
			rec, n, err := loadNetwork(ctx, s, cfg, args[0], seed)
			if err != nil {
				return err
			}
			if len(kinds) == 0 && cfg.Mutation.FeedForwardOnly {
				kinds = network.FeedForwardMutations()
			}

			decisions := logging.NewDecisionLogger(store.LocalPath(root), cfg.Logging.Level)
			defer decisions.Close()

			steps := make([]mutationStep, 0, count)
			for i := 0; i < count; i++ {
				kind, applied, err := n.MutateRandom(kinds)
				if err != nil {
					return err
				}
				steps = append(steps, mutationStep{Kind: kind, Applied: applied})
				st := n.Stats()
				decisions.LogMutation(logging.MutationEvent{
					Kind:    kind.String(),
					Applied: applied,
					Nodes:   st.Nodes,
					Conns:   st.Connections,
				})
			}
			if err := n.Validate(); err != nil {
				return fmt.Errorf("mutated network is inconsistent: %w", err)
			}

			saved := store.Summarize(store.Record{ID: rec.ID, Name: rec.Name, Architecture: rec.Architecture, Network: n.Snapshot()})
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
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"mutations": steps,
					"network":   saved,
					"saved":     !dryRun,
				})
			}

			applied := 0
			for _, st := range steps {
				mark := "-"
				if st.Applied {
					mark = "+"
					applied++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", mark, st.Kind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d of %d mutations: %d nodes, %d connections\n",
				applied, len(steps), saved.Nodes, saved.Connections)
			if !dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", saved.Name, saved.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("kind", nil, "Mutation kinds to draw from (repeatable, default all)")
	cmd.Flags().Int("count", 1, "Number of mutations to apply")
	cmd.Flags().Int64("seed", 0, "Random seed")
	cmd.Flags().String("save-as", "", "Save as a new network with this name instead of overwriting")
	cmd.Flags().Bool("dry-run", false, "Mutate without saving")

	return cmd
}
