// Package cmd provides the CLI commands for ChunkHound.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ofriw/chunkhound-sub000/internal/logging"
	"github.com/ofriw/chunkhound-sub000/pkg/version"
)

var (
	debugMode      bool
	configFile     string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the chunkhound CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunkhound",
		Short: "Local-first hybrid code search, served over MCP",
		Long: `ChunkHound indexes a codebase into regex and semantic search indexes
and serves them to AI assistants over the Model Context Protocol.

Run 'chunkhound serve' in a project directory to start the server, or
'chunkhound index' to build the index without starting one.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("chunkhound version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.chunkhound/logs/")
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file, merged below the project-local .chunkhound.json")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging configures debug file logging when --debug is set or
// CHUNKHOUND_DEBUG is "1" or "true". Without either, slog's default handler
// writes to stderr, so stdout stays clean for JSON-RPC in stdio serve mode
// either way.
func startLogging(*cobra.Command, []string) error {
	if !debugMode {
		v := os.Getenv("CHUNKHOUND_DEBUG")
		if !strings.EqualFold(v, "true") && v != "1" {
			return nil
		}
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(*cobra.Command, []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
