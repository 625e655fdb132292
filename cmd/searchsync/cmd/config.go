package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchsync/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. searchsync.yaml in the working directory, or --config
  3. Environment variables (SEARCHSYNC_*)`,
		Example: `  # Create searchsync.yaml with one example site
  searchsync config init

  # Show the effective configuration
  searchsync config show`,
	}

	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the loaded configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.cfg.Path()
			if path == "" {
				path = "(defaults, no file)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	})

	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default configuration file",
		Annotations: noSetup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				path = "searchsync.yaml"
			}
			backup, err := config.WriteDefault(path, force)
			if err != nil {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			out := cmd.OutOrStdout()
			if backup != "" {
				fmt.Fprintf(out, "backed up previous config to %s\n", backup)
			}
			_, err = fmt.Fprintf(out, "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(opts.cfg)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(opts.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
