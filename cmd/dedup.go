package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/pipeline"
)

var dedupFromRun string

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Run the pipeline through exact and near-duplicate removal",
	Long:  "Runs fetch, normalize and dedup. With --from-run the fetch and normalize stages are reused from an earlier run's normalized manifest instead of being executed again.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var run *model.Run
		if dedupFromRun != "" {
			run, err = p.DedupFrom(ctx, dedupFromRun)
		} else {
			run, err = p.RunUntil(ctx, pipeline.StageDedup, pipeline.SplitOptions{})
		}
		printSummary(run)
		return err
	},
}

func init() {
	dedupCmd.Flags().StringVar(&dedupFromRun, "from-run", "", "reuse the normalized manifest of a previous run")
	rootCmd.AddCommand(dedupCmd)
}
