package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			summaries, err := s.List(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list networks: %w", err)
			}

			if jsonOut {
				if summaries == nil {
					summaries = []store.Summary{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"networks": summaries,
					"count":    len(summaries),
				})
			}

			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No networks stored. Run 'evonet new' to create one.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tARCHITECTURE\tNODES\tCONNS\tUPDATED")
			for _, sum := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					shortID(sum.ID), sum.Name, sum.Architecture, sum.Nodes, sum.Connections,
					sum.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// networkDetails summarises the structure of a snapshot.
type networkDetails struct {
	store.Summary
	Inputs      int            `json:"inputs"`
	Outputs     int            `json:"outputs"`
	Hidden      int            `json:"hidden"`
	Constant    int            `json:"constant"`
	Gated       int            `json:"gated"`
	SelfLoops   int            `json:"self_loops"`
	SharedCells int            `json:"shared_cells"`
	Squashes    map[string]int `json:"squashes"`
}

func describe(rec *store.Record) networkDetails {
	d := networkDetails{Summary: store.Summarize(*rec), Squashes: map[string]int{}}
	snap := rec.Network
	for _, nd := range snap.Nodes {
		switch {
		case nd.Kind == network.Input:
			d.Inputs++
			continue
		case nd.Output:
			d.Outputs++
		case nd.Constant:
			d.Constant++
		default:
			d.Hidden++
		}
		d.Squashes[nd.Squash.String()]++
	}
	refs := make(map[int]int)
	for _, c := range snap.Connections {
		if c.Gater >= 0 {
			d.Gated++
		}
		if c.From == c.To {
			d.SelfLoops++
		}
		refs[c.Weight]++
	}
	for _, r := range refs {
		if r > 1 {
			d.SharedCells++
		}
	}
	return d
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <network>",
		Short: "Show a network's structure",
		Long: `Show a stored network. The reference may be an ID, a name or a unique ID prefix.

With --json the full snapshot is included.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			s, err := openStore(root, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := store.Find(context.Background(), s, args[0])
			if err != nil {
				return err
			}
			d := describe(rec)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"details": d,
					"network": rec.Network,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Network: %s\n", d.Name)
			fmt.Fprintf(out, "ID: %s\n", d.ID)
			if d.Architecture != "" {
				fmt.Fprintf(out, "Architecture: %s\n", d.Architecture)
			}
			fmt.Fprintf(out, "Created: %s\n", d.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Updated: %s\n", d.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Nodes: %d (%d input, %d hidden, %d constant, %d output)\n",
				d.Nodes, d.Inputs, d.Hidden, d.Constant, d.Outputs)
			fmt.Fprintf(out, "Connections: %d (%d gated, %d self)\n", d.Connections, d.Gated, d.SelfLoops)
			fmt.Fprintf(out, "Weights: %d (%d shared)\n", d.Weights, d.SharedCells)

			names := make([]string, 0, len(d.Squashes))
			for name := range d.Squashes {
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) > 0 {
				fmt.Fprintln(out, "Squashes:")
				for _, name := range names {
					fmt.Fprintf(out, "  %-16s %d\n", name, d.Squashes[name])
				}
			}
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <network>",
		Short: "Delete a stored network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

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
			rec, err := store.Find(ctx, s, args[0])
			if err != nil {
				return err
			}
			if err := s.Delete(ctx, rec.ID); err != nil {
				return fmt.Errorf("failed to delete network: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     rec.ID,
					"name":   rec.Name,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", rec.Name, rec.ID)
			return nil
		},
	}
}
