package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/plantset-cli/internal/config"
	"github.com/sells-group/plantset-cli/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "plantset",
	Short: "Multi-source plant disease image dataset curation",
	Long:  "Fetches public leaf-imagery archives, normalizes them into a unified healthy/unhealthy taxonomy, removes exact and near duplicates, and produces leakage-free train/val/test splits.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return &configError{err}
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return &configError{err}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// configError marks startup failures so main can exit with the
// configuration code rather than a stage code.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// Exit codes identify where a run failed, so schedulers can tell a flaky
// mirror from a configuration gap without parsing logs.
const (
	exitGeneric   = 1
	exitConfig    = 2
	exitFetch     = 10
	exitNormalize = 11
	exitDedup     = 12
	exitSplit     = 13
)

func exitCode(err error) int {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case pipeline.StageFetch:
			return exitFetch
		case pipeline.StageNormalize:
			return exitNormalize
		case pipeline.StageDedup:
			return exitDedup
		case pipeline.StageSplit:
			return exitSplit
		}
	}
	return exitGeneric
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
