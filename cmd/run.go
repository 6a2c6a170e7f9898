package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/plantset-cli/internal/pipeline"
	"github.com/sells-group/plantset-cli/internal/splitter"
)

var (
	runRatios      string
	runSeed        int64
	runMaterialize bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch, normalize, dedup, split",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ratios, err := parseRatios(runRatios)
		if err != nil {
			return &configError{err}
		}
		if err := splitter.ValidateRatios(ratios); err != nil {
			return &configError{err}
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := p.Run(ctx, pipeline.SplitOptions{
			Ratios:      ratios,
			Seed:        runSeed,
			Materialize: runMaterialize,
		})
		printSummary(run)
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runRatios, "ratios", "0.7,0.15,0.15", "comma-separated split ratios (two for train/test, three for train/val/test)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 42, "random seed; the same seed and corpus reproduce the split exactly")
	runCmd.Flags().BoolVar(&runMaterialize, "materialize", false, "link survivor images into per-split directories")
	rootCmd.AddCommand(runCmd)
}
