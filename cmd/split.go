package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/pipeline"
	"github.com/sells-group/plantset-cli/internal/splitter"
)

var (
	splitRatios      string
	splitSeed        int64
	splitMaterialize bool
	splitFromRun     string
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Partition the deduplicated corpus into train/val/test",
	Long:  "Runs the full pipeline ending in a seeded, leakage-free split. With --from-run the fetch, normalize and dedup stages are reused from an earlier run's manifests instead of being executed again.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ratios, err := parseRatios(splitRatios)
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

		opts := pipeline.SplitOptions{
			Ratios:      ratios,
			Seed:        splitSeed,
			Materialize: splitMaterialize,
		}

		var run *model.Run
		if splitFromRun != "" {
			run, err = p.SplitFrom(ctx, splitFromRun, opts)
		} else {
			run, err = p.Run(ctx, opts)
		}
		printSummary(run)
		return err
	},
}

func init() {
	splitCmd.Flags().StringVar(&splitRatios, "ratios", "0.7,0.15,0.15", "comma-separated split ratios (two for train/test, three for train/val/test)")
	splitCmd.Flags().Int64Var(&splitSeed, "seed", 42, "random seed; the same seed and corpus reproduce the split exactly")
	splitCmd.Flags().BoolVar(&splitMaterialize, "materialize", false, "link survivor images into per-split directories")
	splitCmd.Flags().StringVar(&splitFromRun, "from-run", "", "reuse the dedup manifest of a previous run")
	rootCmd.AddCommand(splitCmd)
}
