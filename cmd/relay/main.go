package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ShardRelay/internal/logger"
)

func main() {
	logger.Init(slog.LevelInfo)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags are shared by every subcommand.
type flags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Relay chain inclusion node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.configPath, "config", "", "node configuration file (YAML)")
	root.PersistentFlags().StringVar(&f.dataDir, "data", "", "data directory, overrides the config file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level, overrides the config file")

	root.AddCommand(
		newRunCmd(f),
		newInspectCmd(f),
		newExportCmd(f),
		newImportCmd(f),
		newStatusCmd(),
		newCompareCmd(),
	)

	return root
}
