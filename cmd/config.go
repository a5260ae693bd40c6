package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the configuration file,
environment variables and flags.

Examples:
  mixpaths config show
  mixpaths config show --format toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			switch format {
			case "yaml":
				encoder := yaml.NewEncoder(out)
				encoder.SetIndent(2)
				if err := encoder.Encode(a.cfg); err != nil {
					return err
				}
				return encoder.Close()
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(a.cfg)
			case "toml":
				return toml.NewEncoder(out).Encode(a.cfg)
			default:
				return fmt.Errorf("unsupported format: %s (supported: yaml, json, toml)", format)
			}
		},
	}
	showCmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json, toml)")

	configCmd.AddCommand(showCmd)

	return configCmd
}
