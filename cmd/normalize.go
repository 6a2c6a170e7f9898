package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/plantset-cli/internal/pipeline"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Fetch sources and map them into the canonical class layout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := p.RunUntil(ctx, pipeline.StageNormalize, pipeline.SplitOptions{})
		printSummary(run)
		return err
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
