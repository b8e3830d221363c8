package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvandessel/evonet/internal/config"
	"github.com/nvandessel/evonet/internal/store"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize an evonet project in the current directory",
		Long: `Create .evonet/ with a default config.yaml and an empty network database.

Existing files are left untouched, so init is safe to run twice.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if err := store.EnsureLocalDir(root); err != nil {
				return err
			}

			configPath := config.ProjectPath(root)
			createdConfig := false
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.Default().Save(configPath); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				createdConfig = true
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

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status":         "initialized",
					"path":           store.LocalPath(root),
					"store":          s.Path(),
					"config_created": createdConfig,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", store.LocalPath(root))
			if createdConfig {
				fmt.Fprintf(cmd.OutOrStdout(), "  config: %s\n", configPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  store:  %s\n", s.Path())
			return nil
		},
	}
}
