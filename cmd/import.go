package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/fetcher"
	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/model"
	"github.com/sells-group/claimant-intake/internal/staging"
)

// importFlags are the options of the import command.
type importFlags struct {
	File            string
	Org             string
	Mapping         string
	AllowDuplicates bool
	Preview         bool
	Stage           bool
	Confirm         string
}

var importOpts importFlags

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import claimants from a CSV or XLSX file",
	Long: `Imports claimants from a local file or http(s) URL.

By default rows are created directly. --preview reports duplicate counts
without writing, --stage stores a pending batch and prints its id, and
--confirm <id> imports the fresh rows of a staged batch.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		return runImport(ctx, env, importOpts, cmd.OutOrStdout())
	},
}

func runImport(ctx context.Context, env *appEnv, f importFlags, out io.Writer) error {
	if f.Confirm != "" {
		res, err := env.Workflow.Confirm(ctx, f.Confirm)
		if err != nil {
			return eris.Wrap(err, "confirm staged batch")
		}
		zap.L().Info("staged batch confirmed",
			zap.String("staging_id", res.StagingID),
			zap.Int("imported", res.Imported),
		)
		return writeOutput(out, res)
	}

	if f.File == "" {
		return eris.New("--file is required unless --confirm is set")
	}
	if f.Preview && f.Stage {
		return eris.New("--preview and --stage are mutually exclusive")
	}

	name, data, err := readSource(ctx, f.File)
	if err != nil {
		return err
	}
	records, err := fetcher.Parse(ctx, name, data)
	if err != nil {
		return eris.Wrap(err, "parse import file")
	}

	opts := ingest.Options{SkipDuplicates: !f.AllowDuplicates}
	if strings.TrimSpace(f.Mapping) != "" {
		m, err := loadMapping(f.Mapping)
		if err != nil {
			return err
		}
		opts.Mapping = m
	}

	org := f.Org
	if org == "" {
		org = cfg.Import.DefaultOrg
	}
	rows := ingest.RowsFrom(records)

	switch {
	case f.Preview, f.Stage:
		req := staging.Request{Org: org, Filename: name, Rows: rows, Options: opts}
		var sum *staging.Summary
		if f.Preview {
			sum, err = env.Workflow.Preview(ctx, req)
		} else {
			sum, err = env.Workflow.Stage(ctx, req)
		}
		if err != nil {
			return eris.Wrap(err, "stage import")
		}
		return writeOutput(out, sum)
	}

	if err := env.Importer.CheckCap(len(rows)); err != nil {
		return err
	}
	existing, err := env.Store.ListClaimants(ctx, org)
	if err != nil {
		return eris.Wrap(err, "load existing claimants")
	}
	res, err := env.Importer.Run(ctx, ingest.Batch{Org: org, Rows: rows, Options: opts}, existing)
	if err != nil {
		return eris.Wrap(err, "import")
	}
	return writeOutput(out, res)
}

// loadMapping reads a header mapping given inline as JSON or as a path to a
// JSON file.
func loadMapping(v string) (map[string]model.CanonicalField, error) {
	data := []byte(v)
	if !strings.HasPrefix(strings.TrimSpace(v), "{") {
		b, err := os.ReadFile(v)
		if err != nil {
			return nil, eris.Wrapf(err, "read mapping %s", v)
		}
		data = b
	}

	var m map[string]model.CanonicalField
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "decode mapping")
	}
	for col, field := range m {
		if !field.Valid() {
			return nil, eris.Errorf("mapping for %q: unknown field %q", col, field)
		}
	}
	return m, nil
}

func writeOutput(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importOpts.File, "file", "", "path or http(s) URL of the CSV/XLSX file")
	f.StringVar(&importOpts.Org, "org", "", "organization to import into (default from config)")
	f.StringVar(&importOpts.Mapping, "mapping", "", "header mapping as JSON or path to a JSON file")
	f.BoolVar(&importOpts.AllowDuplicates, "allow-duplicates", false, "create rows that match existing claimants")
	f.BoolVar(&importOpts.Preview, "preview", false, "report duplicate counts without writing")
	f.BoolVar(&importOpts.Stage, "stage", false, "stage the upload for later confirmation")
	f.StringVar(&importOpts.Confirm, "confirm", "", "confirm a staged batch by id")
	rootCmd.AddCommand(importCmd)
}
