package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ofriw/chunkhound-sub000/internal/mcp"
	"github.com/ofriw/chunkhound-sub000/internal/watcher"
)

// newServeCmd creates the serve command: an initial directory scan followed
// by the MCP protocol server, with an optional realtime watcher keeping the
// index current while the server runs.
func newServeCmd() *cobra.Command {
	var offline bool
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Index the project and start the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			root, err := resolveRoot(path)
			if err != nil {
				return fmt.Errorf("resolve project root: %w", err)
			}
			return runServe(cmd.Context(), root, offline, noWatch)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings instead of the configured provider")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Don't start the realtime file watcher")

	return cmd
}

func runServe(ctx context.Context, root string, offline, noWatch bool) error {
	lock, err := mcp.AcquireInstanceLock(root)
	if err != nil {
		return err
	}
	defer lock.Release()

	c, err := buildComponents(root, offline)
	if err != nil {
		return err
	}
	defer c.Close()

	slog.Info("scanning project", slog.String("root", root))
	scanResult, err := c.coordinator.ProcessDirectory(ctx, root, indexOptions(c.cfg.Indexing.ForceReindex, false))
	if err != nil {
		return fmt.Errorf("initial scan of %s: %w", root, err)
	}
	slog.Info("initial scan complete",
		slog.Int("files_indexed", scanResult.FilesIndexed),
		slog.Int("files_up_to_date", scanResult.FilesUpToDate),
		slog.Int("files_errored", scanResult.FilesErrored))

	server, err := mcp.NewServer(c.cfg, c.engine, c.searchSvc, c.researchSvc, c.embedder, c.completer, lock)
	if err != nil {
		return fmt.Errorf("start protocol server: %w", err)
	}

	if !noWatch {
		w, err := startWatcher(ctx, c, root)
		if err != nil {
			return err
		}
		server.SetWatcher(w)
	}

	return server.Serve(ctx)
}

// startWatcher builds the realtime event source and runs the watcher
// service in the background for the lifetime of ctx.
func startWatcher(ctx context.Context, c *components, root string) (*watcher.Service, error) {
	opts := watcher.DefaultOptions()
	opts.Include = c.cfg.Indexing.Include
	opts.Exclude = c.cfg.Indexing.Exclude
	opts.RespectGitignore = !c.cfg.Indexing.IgnoreGitignore

	source, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return nil, fmt.Errorf("start file watcher: %w", err)
	}

	w := watcher.NewService(source, c.coordinator, c.engine, root, 0)
	go func() {
		if err := w.Run(ctx); err != nil {
			slog.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()
	return w, nil
}
