package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/mixpaths/internal/depgraph"
)

func newGraphCommand(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the dependency graph",
		Long: `Build the dependency graph of the configured entries without writing any
output, and export it. An edge points from an entry to the entry it
references.

Examples:
  mixpaths graph                          # DOT on stdout
  mixpaths graph --format svg -o deps.svg # Rendered with Graphviz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.cfg.ResolveEntries()
			if err != nil {
				return err
			}

			c, err := a.newCompiler()
			if err != nil {
				return err
			}

			g, err := c.BuildGraph(entries)
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "dot":
				data = []byte(g.ToDOT())
			case "svg":
				data, err = depgraph.RenderSVG(commandContext(cmd), g.ToDOT())
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported format: %s (supported: dot, svg)", format)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			return os.WriteFile(output, data, 0o644)
		},
	}

	graphCmd.Flags().StringVarP(&format, "format", "f", "dot", "Output format (dot, svg)")
	graphCmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return graphCmd
}
