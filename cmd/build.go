package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/mixpaths/internal/entry"
)

type buildRow struct {
	publicID string
	dest     string
	size     int
}

func newBuildCommand(a *app) *cobra.Command {
	var quiet bool

	buildCmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Compile every configured entry",
		Long: `Resolve the configured entries, build their dependency graph and compile
them in dependency order. The manifest is written once at the end.

Examples:
  mixpaths build                 # Compile and print a summary table
  mixpaths build --quiet         # Compile without output`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()

			entries, err := a.cfg.ResolveEntries()
			if err != nil {
				return err
			}

			c, err := a.newCompiler()
			if err != nil {
				return err
			}

			var rows []buildRow
			_, err = c.Build(commandContext(cmd), entries, func(e entry.Entry, output string) {
				rows = append(rows, buildRow{publicID: e.PublicID, dest: e.Dest, size: len(output)})
			})
			if err != nil {
				return err
			}

			if quiet {
				return nil
			}

			out := cmd.OutOrStdout()
			if len(rows) > 0 {
				t := newTable("Public ID", "Destination", "Size")
				for _, row := range rows {
					t.Row(row.publicID, row.dest, strconv.Itoa(row.size))
				}
				fmt.Fprintln(out, t.String())
			}

			metrics := c.Metrics()
			fmt.Fprintln(out, successStyle.Render("[mixpaths]:")+
				fmt.Sprintf(" Compiled %d entries in %s", len(rows), time.Since(start).Round(time.Millisecond))+
				mutedStyle.Render(fmt.Sprintf(" (template cache hit rate %.0f%%)", metrics.TemplateCache.HitRate()*100)))

			return nil
		},
	}

	buildCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the summary")

	return buildCmd
}
