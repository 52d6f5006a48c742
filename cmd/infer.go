package main

import (
	"context"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/claimant-intake/internal/fetcher"
	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/model"
)

var (
	inferFile          string
	inferMinConfidence float64
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Suggest a header mapping for a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		aliases, err := headers.LoadAliases(cfg.Headers.AliasesFile)
		if err != nil {
			return err
		}
		engine := headers.NewEngine(aliases, cfg.Import.SampleRows)
		return runInfer(cmd.Context(), engine, inferFile, inferMinConfidence, cmd.OutOrStdout())
	},
}

type inferOutput struct {
	Headers []string                        `json:"headers"`
	Results map[string]headers.Result       `json:"results"`
	Mapping map[string]model.CanonicalField `json:"mapping"`
}

func runInfer(ctx context.Context, engine *headers.Engine, src string, minConfidence float64, out io.Writer) error {
	name, data, err := readSource(ctx, src)
	if err != nil {
		return err
	}
	records, err := fetcher.Parse(ctx, name, data)
	if err != nil {
		return eris.Wrap(err, "parse file")
	}
	hdrs := recordHeaders(records)
	if len(hdrs) == 0 {
		return eris.Errorf("no headers found in %s", name)
	}

	return writeOutput(out, inferOutput{
		Headers: hdrs,
		Results: engine.Infer(hdrs, records),
		Mapping: engine.SuggestMapping(hdrs, records, minConfidence),
	})
}

// recordHeaders returns the sorted union of record keys.
func recordHeaders(records []map[string]string) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	inferCmd.Flags().StringVar(&inferFile, "file", "", "path or http(s) URL of the CSV/XLSX file (required)")
	inferCmd.Flags().Float64Var(&inferMinConfidence, "min-confidence", 0.5, "minimum confidence for a suggested mapping")
	_ = inferCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(inferCmd)
}
