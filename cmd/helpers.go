package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"

	"github.com/sells-group/plantset-cli/internal/config"
	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/pipeline"
	"github.com/sells-group/plantset-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, nil)
}

// initPipeline builds the pipeline with its store and source catalog.
// Callers own closing the returned store.
func initPipeline(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	sources, err := config.LoadSources(cfg.Data.SourcesFile)
	if err != nil {
		st.Close()
		return nil, nil, &configError{err}
	}
	return pipeline.New(cfg, st, sources), st, nil
}

// parseRatios parses a comma-separated ratio list such as "0.7,0.15,0.15".
func parseRatios(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	ratios := make([]float64, 0, len(parts))
	for _, part := range parts {
		r, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse ratio %q", part)
		}
		ratios = append(ratios, r)
	}
	return ratios, nil
}

// printSummary renders the end-of-run count report. It is printed for
// failed runs too; a partial run is still actionable.
func printSummary(run *model.Run) {
	if run == nil || run.Summary == nil {
		return
	}
	s := run.Summary

	fmt.Printf("run %s: %s\n", run.ID, run.Status)
	fmt.Printf("  sources   fetched=%d failed=%d\n", s.FetchedSources, s.FailedSources)
	fmt.Printf("  corpus    normalized=%d groups=%d\n", s.Normalized, s.Groups)
	fmt.Printf("  excluded  duplicate=%d corrupt=%d\n", s.ExcludedDuplicate, s.ExcludedCorrupt)

	if len(s.SplitCounts) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	header := table.Row{"split"}
	for _, class := range model.ClassLabels() {
		header = append(header, string(class))
	}
	header = append(header, "total")
	t.AppendHeader(header)

	for _, split := range []string{"train", "val", "test"} {
		counts, ok := s.SplitCounts[split]
		if !ok {
			continue
		}
		row := table.Row{split}
		total := 0
		for _, class := range model.ClassLabels() {
			row = append(row, counts[class])
			total += counts[class]
		}
		row = append(row, total)
		t.AppendRow(row)
	}
	t.Render()
}
