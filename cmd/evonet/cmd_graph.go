package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <network>",
		Short: "Visualize a network",
		Long: `Output a network in DOT (Graphviz), JSON, or HTML format.

With --serve a local server is started instead; its page also accepts
activation requests.

Examples:
  evonet graph xor | dot -Tsvg > xor.svg
  evonet graph xor --format json -o xor.json
  evonet graph xor --serve`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")

			f, err := visualization.ParseFormat(format)
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
			rec, n, err := loadNetwork(context.Background(), s, cfg, args[0], 0)
			s.Close()
			if err != nil {
				return err
			}
			snap := rec.Network

			if serve {
				return runGraphServer(cmd, context.Background(), rec.Name, n, noOpen)
			}

			switch f {
			case visualization.FormatDOT:
				return writeGraphOutput(cmd, output, func(w io.Writer) error {
					_, err := io.WriteString(w, visualization.RenderDOT(snap))
					return err
				})

			case visualization.FormatJSON:
				return writeGraphOutput(cmd, output, func(w io.Writer) error {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					if err := enc.Encode(visualization.RenderJSON(snap)); err != nil {
						return fmt.Errorf("encode JSON: %w", err)
					}
					return nil
				})

			default:
				return writeStaticHTML(cmd, rec.Name, snap, output, noOpen)
			}
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (default: stdout, or a temp file for html)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Start a local server that can activate the network (implies html)")

	return cmd
}

// writeGraphOutput writes to the output file, or stdout when it is empty.
func writeGraphOutput(cmd *cobra.Command, output string, render func(io.Writer) error) error {
	if output == "" {
		return render(cmd.OutOrStdout())
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
	return nil
}

// writeStaticHTML renders the network to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, title string, snap network.Snapshot, output string, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(title, snap)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "evonet-graph.html")
	}

	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer serves the network page and activation API until ctx is
// cancelled or the process is interrupted.
func runGraphServer(cmd *cobra.Command, ctx context.Context, title string, n *network.Network, noOpen bool) error {
	srv := visualization.NewServer(title, n)

	srvCtx, srvCancel := signalContext(ctx)
	defer srvCancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}

	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	// Block until server exits
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
