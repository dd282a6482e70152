// Package cmd provides the CLI commands for codectxd.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/Aman-CERP/codectx/internal/logging"
	"github.com/Aman-CERP/codectx/pkg/version"
)

var (
	cfgPath  string
	dataDir  string
	rootDir  string
	debugLog bool

	loggingCleanup func()
)

// NewRootCmd builds the root command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "codectxd",
		Short:   "Context-assembly server for codebase-aware AI assistants",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if loggingCleanup != nil {
				loggingCleanup()
				loggingCleanup = nil
			}
			return nil
		},
	}
	root.SetVersionTemplate("codectxd version {{.Version}}\n")

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a codectx YAML config file")
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "project root to index/query")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the vector snapshot and graph (default: <root>/.codectx)")
	root.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable structured debug logging to ~/.codectx/logs/")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging() error {
	if !debugLog {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// resolveRoot returns the --root value unchanged when it was set to anything
// other than its default "."; otherwise it discovers the project root from
// the current directory, falling back to the working directory.
func resolveRoot() (string, error) {
	if rootDir != "." {
		return rootDir, nil
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return os.Getwd()
	}
	return root, nil
}

func resolveDataDir(root string) string {
	if dataDir != "" {
		return dataDir
	}
	return root + string(os.PathSeparator) + ".codectx"
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgPath)
}
