package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newStatsCmd prints indexed file/chunk/embedding counts for a project,
// the same numbers the MCP get_stats tool and chunkhound://stats resource
// report, formatted for a terminal instead of JSON.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [path]",
		Short: "Print indexed file, chunk, and embedding counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			root, err := resolveRoot(path)
			if err != nil {
				return fmt.Errorf("resolve project root: %w", err)
			}

			c, err := buildComponents(root, true)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.engine.GetStats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "root:       %s\n", root)
			fmt.Fprintf(out, "files:      %d\n", stats.Files)
			fmt.Fprintf(out, "chunks:     %d\n", stats.Chunks)
			fmt.Fprintf(out, "embeddings: %d\n", stats.Embeddings)
			if len(stats.Providers) > 0 {
				fmt.Fprintf(out, "providers:  %s\n", strings.Join(stats.Providers, ", "))
			}
			return nil
		},
	}
	return cmd
}
