package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/plantset-cli/internal/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	Aliases: []string{"fetch-all"},
	Short:   "Download, verify and unpack all configured source archives",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := p.RunUntil(ctx, pipeline.StageFetch, pipeline.SplitOptions{})
		printSummary(run)
		return err
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
