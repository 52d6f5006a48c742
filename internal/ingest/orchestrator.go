// Package ingest runs bulk claimant imports row by row.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/dedup"
	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/model"
)

// DefaultMaxRows caps the number of rows accepted in one batch.
const DefaultMaxRows = 1000

// ErrTooManyRows is returned when a batch exceeds the row cap. No row of the
// batch is processed.
var ErrTooManyRows = eris.New("ingest: too many rows")

// Creator persists a single claimant.
type Creator interface {
	CreateClaimant(ctx context.Context, p model.ClaimantPayload) (*model.Claimant, error)
}

// Options controls how rows are resolved and how duplicates are handled.
type Options struct {
	// Mapping assigns header columns to canonical fields. Columns mapped to
	// ignore, or not mapped, are dropped.
	Mapping map[string]model.CanonicalField
	// SkipDuplicates withholds rows that match an existing claimant. When
	// false, matching rows are created anyway.
	SkipDuplicates bool
	// PreMapped means rows are already keyed by canonical field name.
	PreMapped bool
}

// Batch is one import request.
type Batch struct {
	Org     string
	Rows    []Row
	Options Options
}

// Orchestrator resolves, deduplicates and persists the rows of a batch.
type Orchestrator struct {
	store   Creator
	aliases headers.Aliases
	maxRows int
}

// NewOrchestrator creates an Orchestrator. A nil alias table uses the
// defaults and a non-positive maxRows uses DefaultMaxRows.
func NewOrchestrator(store Creator, aliases headers.Aliases, maxRows int) *Orchestrator {
	if aliases == nil {
		aliases = headers.DefaultAliases()
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Orchestrator{store: store, aliases: aliases, maxRows: maxRows}
}

// MaxRows returns the configured row cap.
func (o *Orchestrator) MaxRows() int {
	return o.maxRows
}

// CheckCap returns ErrTooManyRows when n exceeds the row cap.
func (o *Orchestrator) CheckCap(n int) error {
	if n > o.maxRows {
		return eris.Wrapf(ErrTooManyRows, "%d rows exceeds maximum of %d", n, o.maxRows)
	}
	return nil
}

// Resolve turns a row into a payload using the batch options.
func (o *Orchestrator) Resolve(row Row, org string, opts Options) (model.ClaimantPayload, error) {
	return resolver{aliases: o.aliases}.resolve(row, org, opts)
}

// Run processes the batch strictly in row order. Each accepted row is created
// through the store and added to the working set, so later rows in the same
// batch are checked against it. Row failures are recorded and never abort the
// batch; only a cap violation fails the whole call.
func (o *Orchestrator) Run(ctx context.Context, b Batch, existing []model.Claimant) (*Result, error) {
	if err := o.CheckCap(len(b.Rows)); err != nil {
		return nil, err
	}

	ws := dedup.NewWorkingSet(existing)
	rv := resolver{aliases: o.aliases}
	outcomes := make([]Outcome, 0, len(b.Rows))

	for i, row := range b.Rows {
		outcomes = append(outcomes, o.processRow(ctx, i+1, row, b, rv, ws))
	}

	res := Summarize(outcomes)
	zap.L().Info("import batch complete",
		zap.String("org", b.Org),
		zap.Int("total", res.Total),
		zap.Int("imported", res.Imported),
		zap.Int("duplicates", len(res.Duplicates)),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

func (o *Orchestrator) processRow(ctx context.Context, rowNum int, row Row, b Batch, rv resolver, ws *dedup.WorkingSet) Outcome {
	payload, err := rv.resolve(row, b.Org, b.Options)
	if err != nil {
		return Errored{Row: rowNum, Message: err.Error()}
	}

	v := ws.Check(dedup.CandidateFrom(payload))
	if v != nil && b.Options.SkipDuplicates {
		zap.L().Debug("import: skipping duplicate row",
			zap.Int("row", rowNum),
			zap.String("reason", string(v.Reason)),
			zap.String("claimant_id", v.Claimant.ID),
		)
		return Skipped{Row: rowNum, Verdict: *v}
	}

	created, err := o.store.CreateClaimant(ctx, payload)
	if err != nil {
		zap.L().Warn("import: create claimant failed",
			zap.Int("row", rowNum),
			zap.String("org", b.Org),
			zap.Error(err),
		)
		return Errored{Row: rowNum, Message: rowErrorMessage(err)}
	}
	if created == nil {
		return Errored{Row: rowNum, Message: "store returned no claimant"}
	}

	ws.Add(*created)
	return Imported{Row: rowNum, Claimant: *created, Override: v}
}

// rowErrorMessage prefers the root cause message so callers see what the
// store rejected rather than the wrap chain.
func rowErrorMessage(err error) string {
	if cause := eris.Cause(err); cause != nil && cause.Error() != "" {
		return cause.Error()
	}
	return err.Error()
}
