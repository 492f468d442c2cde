// Command downloadctl is a thin Cobra CLI over internal/engine.Engine,
// exercising every engine operation directly against a local data
// directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"downloadengine/internal/config"
	"downloadengine/internal/engine"
	"downloadengine/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "downloadctl",
	Short: "Drive the resumable download engine from the command line",
	Long:  `downloadctl exercises every Engine operation directly against a local data directory.`,
}

// globalEngine is opened lazily by openEngine and closed once by
// PersistentPostRun, letting every subcommand share one flock-guarded
// Store without each re-implementing the open/close dance.
var globalEngine *engine.Engine

func openEngine() (*engine.Engine, error) {
	if globalEngine != nil {
		return globalEngine, nil
	}

	cfg, err := config.LoadRuntimeConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, config.GetLogsDir())
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	e, err := engine.Open(engine.Config{
		DataDir:                  cfg.DataDir,
		Logger:                   logger,
		ConnectTimeout:           cfg.ConnectTimeout,
		IdleTimeout:              cfg.IdleTimeout,
		ProgressThresholdPercent: cfg.ProgressThresholdPercent,
	})
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	globalEngine = e
	return e, nil
}

func init() {
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if globalEngine != nil {
			_ = globalEngine.Close()
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
