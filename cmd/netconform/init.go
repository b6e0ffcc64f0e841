package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"netconform/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `init writes the default configuration to --config, or to the user config
directory when no path is given. An existing file is kept unless --force
is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config %s exists, use --force to overwrite", path)
			}

			cfg := config.DefaultConfig()
			if modelPath != "" {
				cfg.Model.Path = modelPath
			}
			if database != "" {
				applyDatabaseFlag(cfg, database)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", path)
			fmt.Fprintln(out, cfg.Summary())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
