package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lydakis/godot-mcp/internal/config"
	"github.com/lydakis/godot-mcp/internal/paths"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				path = paths.ConfigFile()
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			cfg := &config.Config{ProjectPath: flags.project}
			cfg.ApplyDefaults()
			if err := config.SaveTo(path, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
