package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newIndexCmd creates the one-shot indexing command: scans the project root,
// parses changed files into chunks, and enqueues embeddings, then exits.
func newIndexCmd() *cobra.Command {
	var offline bool
	var force bool
	var skipEmbeddings bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project directory without starting a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			root, err := resolveRoot(path)
			if err != nil {
				return fmt.Errorf("resolve project root: %w", err)
			}

			c, err := buildComponents(root, offline)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.coordinator.ProcessDirectory(cmd.Context(), root, indexOptions(force, skipEmbeddings))
			if err != nil {
				return fmt.Errorf("index %s: %w", root, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: %d seen, %d indexed, %d up to date, %d skipped, %d errored, %d orphaned removed\n",
				root, result.FilesSeen, result.FilesIndexed, result.FilesUpToDate, result.FilesSkipped, result.FilesErrored, result.FilesOrphaned)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings instead of the configured provider")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess every file even if unchanged")
	cmd.Flags().BoolVar(&skipEmbeddings, "no-embeddings", false, "Skip per-file embedding; embed all new chunks in one pass after the scan")

	return cmd
}
