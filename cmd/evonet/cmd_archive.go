package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nvandessel/evonet/internal/backup"
	"github.com/nvandessel/evonet/internal/pathutil"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [network...]",
		Short: "Export networks to an archive file",
		Long: `Write the named networks, or every stored network, to a compressed
archive with a checksummed header.

Default location: .evonet/archives/evonet-YYYYMMDD-HHMMSS.mmm.evo

Examples:
  evonet export                        # Export everything
  evonet export xor lstm -o nets.evo   # Export two networks
  evonet export --keep 3 --keep-within 7d
  evonet export list                   # List archives in .evonet/archives
  evonet export verify nets.evo        # Verify an archive's checksum`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")
			keepWithin, _ := cmd.Flags().GetString("keep-within")

			var policy backup.RetentionPolicy = &backup.CountPolicy{MaxCount: keep}
			if keepWithin != "" {
				d, err := backup.ParseDuration(keepWithin)
				if err != nil {
					return fmt.Errorf("invalid --keep-within: %w", err)
				}
				policy = backup.AnyPolicy{policy, &backup.AgePolicy{MaxAge: d}}
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
			ids := make([]string, 0, len(args))
			for _, ref := range args {
				rec, err := store.Find(ctx, s, ref)
				if err != nil {
					return err
				}
				ids = append(ids, rec.ID)
			}

			a, err := backup.Export(ctx, s, ids)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			a.Metadata = map[string]string{"evonet_version": version}

			dir := store.ArchivePath(root)
			defaultPath := outputPath == ""
			if defaultPath {
				outputPath = backup.GeneratePath(dir, "evonet", time.Now())
			} else if err := checkArchivePath(root, outputPath); err != nil {
				return err
			}
			if err := backup.WriteArchive(outputPath, a); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if defaultPath && keep > 0 {
				if _, err := backup.ApplyRetention(dir, policy); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
				}
			}

			h, err := backup.ReadHeader(outputPath)
			if err != nil {
				return err
			}

			if jsonOut {
				info, _ := os.Stat(outputPath)
				var sizeBytes int64
				if info != nil {
					sizeBytes = info.Size()
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":             outputPath,
					"network_count":    h.NetworkCount,
					"node_count":       h.NodeCount,
					"connection_count": h.ConnectionCount,
					"checksum":         h.Checksum,
					"size_bytes":       sizeBytes,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d networks (%d nodes, %d connections)\n",
				h.NetworkCount, h.NodeCount, h.ConnectionCount)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file path (default: auto-generated in .evonet/archives/)")
	cmd.Flags().Int("keep", 10, "Archives to keep in the default directory (0 keeps all)")
	cmd.Flags().String("keep-within", "", "Also keep archives newer than this age (e.g. 72h, 30d, 2w)")

	cmd.AddCommand(
		newExportListCmd(),
		newExportVerifyCmd(),
	)

	return cmd
}

func newExportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archives in .evonet/archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			archives, err := backup.ListArchives(store.ArchivePath(root))
			if err != nil {
				return err
			}

			if jsonOut {
				if archives == nil {
					archives = []backup.ArchiveInfo{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"archives": archives,
					"count":    len(archives),
				})
			}

			if len(archives) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archives found.")
				return nil
			}
			for _, a := range archives {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  v%d  %8d bytes  %s\n",
					a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Version, a.Size, a.Path)
			}
			return nil
		},
	}
}

func newExportVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify an archive's integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			formatVersion, err := backup.DetectFormat(path)
			if err != nil {
				return err
			}
			verifyErr := backup.VerifyChecksum(path)

			if jsonOut {
				result := map[string]interface{}{
					"path":    path,
					"version": formatVersion,
					"valid":   verifyErr == nil,
				}
				if verifyErr != nil {
					result["error"] = verifyErr.Error()
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
					return err
				}
				return verifyErr
			}

			if verifyErr != nil {
				return fmt.Errorf("verification failed: %w", verifyErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (format v%d)\n", path, formatVersion)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import networks from an archive file",
		Long: `Import networks from an archive (V1 JSON or V2 compressed; format is
auto-detected).

Modes:
  merge   - Skip networks whose ID is already stored (default)
  replace - Overwrite networks whose ID is already stored

Examples:
  evonet import nets.evo
  evonet import nets.evo --mode replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			mode, _ := cmd.Flags().GetString("mode")

			importMode := backup.ImportMode(mode)
			if importMode != backup.ImportMerge && importMode != backup.ImportReplace {
				return fmt.Errorf("unsupported mode %q (use 'merge' or 'replace')", mode)
			}

			if err := checkArchivePath(root, args[0]); err != nil {
				return err
			}
			a, err := backup.ReadArchive(args[0])
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
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

			result, err := backup.Import(context.Background(), s, a, importMode)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"imported": result.Imported,
					"skipped":  result.Skipped,
					"mode":     mode,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Import complete (mode: %s)\n", mode)
			fmt.Fprintf(cmd.OutOrStdout(), "  Networks: %d imported, %d skipped\n", result.Imported, result.Skipped)
			return nil
		},
	}

	cmd.Flags().String("mode", "merge", "Import mode: merge or replace")

	return cmd
}

// checkArchivePath rejects archive paths outside the project, ~/.evonet and
// the temp directory.
func checkArchivePath(root, path string) error {
	userDir, err := store.GlobalPath()
	if err != nil {
		return err
	}
	return pathutil.ValidatePath(path, pathutil.AllowedArchiveDirs(root, userDir))
}
