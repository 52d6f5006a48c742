// Package staging implements the two-step upload flow: stage a file's rows
// with duplicate flags, then confirm the batch into the claimant store.
package staging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/dedup"
	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/model"
	"github.com/sells-group/claimant-intake/internal/store"
)

var (
	// ErrBatchNotFound is returned for an unknown staging id.
	ErrBatchNotFound = eris.New("staging: batch not found")
	// ErrMissingStagingID is returned when confirm is called without an id.
	ErrMissingStagingID = eris.New("staging: missing staging id")
)

// Store is the persistence the workflow needs.
type Store interface {
	ListClaimants(ctx context.Context, org string) ([]model.Claimant, error)
	CreateClaimants(ctx context.Context, payloads []model.ClaimantPayload) (int, error)
	store.StagingStore
}

// Request is one uploaded file.
type Request struct {
	Org      string
	Filename string
	Rows     []ingest.Row
	Options  ingest.Options
}

// Summary reports the outcome of Preview or Stage.
type Summary struct {
	Total      int    `json:"total"`
	Duplicates int    `json:"duplicates"`
	Fresh      int    `json:"fresh"`
	Invalid    int    `json:"invalid"`
	StagingID  string `json:"stagingId,omitempty"`
}

// ConfirmResult reports the outcome of Confirm.
type ConfirmResult struct {
	StagingID string `json:"stagingId"`
	Imported  int    `json:"imported"`
	// Skipped counts eligible rows the store ignored on a uniqueness conflict.
	Skipped int `json:"skipped"`
}

// Workflow runs Preview, Stage and Confirm against a Store.
type Workflow struct {
	store Store
	orch  *ingest.Orchestrator
	now   func() time.Time
	newID func() string
}

// NewWorkflow creates a Workflow. Row resolution and the row cap come from
// the orchestrator so staged rows resolve exactly as direct imports do.
func NewWorkflow(st Store, orch *ingest.Orchestrator) *Workflow {
	return &Workflow{
		store: st,
		orch:  orch,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

type detection struct {
	rows       []model.StagingRow
	total      int
	duplicates int
	invalid    int
}

func (d *detection) summary() *Summary {
	return &Summary{
		Total:      d.total,
		Duplicates: d.duplicates,
		Fresh:      len(d.rows) - d.duplicates,
		Invalid:    d.invalid,
	}
}

// detect resolves every row and flags duplicates against the org's stored
// claimants plus the fresh rows before it in the same file.
func (w *Workflow) detect(ctx context.Context, req Request) (*detection, error) {
	if err := w.orch.CheckCap(len(req.Rows)); err != nil {
		return nil, err
	}

	existing, err := w.store.ListClaimants(ctx, req.Org)
	if err != nil {
		return nil, eris.Wrapf(err, "staging: load claimants for %s", req.Org)
	}

	ws := dedup.NewWorkingSet(existing)
	d := &detection{total: len(req.Rows), rows: make([]model.StagingRow, 0, len(req.Rows))}
	for i, row := range req.Rows {
		p, err := w.orch.Resolve(row, req.Org, req.Options)
		if err != nil {
			d.invalid++
			continue
		}

		sr := model.StagingRow{ID: w.newID(), RowIndex: i, Payload: p}
		if v := ws.Check(dedup.CandidateFrom(p)); v != nil {
			sr.IsDuplicate = true
			sr.DuplicateOf = v.Claimant.ID
			sr.Reason = v.Reason
			d.duplicates++
		} else {
			ws.Add(model.Claimant{
				ID:      sr.ID,
				Org:     p.Org,
				Name:    p.Name,
				Email:   p.Email,
				ClaimID: p.ClaimID,
			})
		}
		d.rows = append(d.rows, sr)
	}
	return d, nil
}

// Preview reports counts for an upload without persisting anything.
func (w *Workflow) Preview(ctx context.Context, req Request) (*Summary, error) {
	d, err := w.detect(ctx, req)
	if err != nil {
		return nil, err
	}
	return d.summary(), nil
}

// Stage persists a pending batch with one row record per resolvable input
// row and returns its counts and id.
func (w *Workflow) Stage(ctx context.Context, req Request) (*Summary, error) {
	d, err := w.detect(ctx, req)
	if err != nil {
		return nil, err
	}

	b := &model.StagingBatch{
		ID:         w.newID(),
		Org:        req.Org,
		Filename:   req.Filename,
		Status:     model.BatchStatusPending,
		Total:      d.total,
		Duplicates: d.duplicates,
		CreatedAt:  w.now(),
	}
	for i := range d.rows {
		d.rows[i].BatchID = b.ID
	}
	if err := w.store.CreateStagingBatch(ctx, b, d.rows); err != nil {
		return nil, eris.Wrap(err, "staging: create batch")
	}

	zap.L().Info("staging: batch staged",
		zap.String("staging_id", b.ID),
		zap.String("org", b.Org),
		zap.Int("total", d.total),
		zap.Int("duplicates", d.duplicates),
		zap.Int("invalid", d.invalid),
	)

	s := d.summary()
	s.StagingID = b.ID
	return s, nil
}

// Confirm imports the non-duplicate rows of a pending batch. The batch is
// claimed before any row is read, so concurrent confirms insert at most
// once. Confirming a completed batch succeeds with zero imported.
func (w *Workflow) Confirm(ctx context.Context, id string) (*ConfirmResult, error) {
	if id == "" {
		return nil, ErrMissingStagingID
	}
	if _, err := w.Batch(ctx, id); err != nil {
		return nil, err
	}

	res := &ConfirmResult{StagingID: id}
	claimed, err := w.store.ClaimStagingBatch(ctx, id, w.now())
	if err != nil {
		return nil, eris.Wrap(err, "staging: claim batch")
	}
	if !claimed {
		zap.L().Debug("staging: batch already confirmed", zap.String("staging_id", id))
		return res, nil
	}

	rows, err := w.store.ListStagingRows(ctx, id, false)
	if err != nil {
		w.release(ctx, id)
		return nil, eris.Wrap(err, "staging: list eligible rows")
	}
	if len(rows) == 0 {
		return res, nil
	}

	payloads := make([]model.ClaimantPayload, len(rows))
	for i, r := range rows {
		payloads[i] = r.Payload
	}
	n, err := w.store.CreateClaimants(ctx, payloads)
	if err != nil {
		w.release(ctx, id)
		return nil, eris.Wrap(err, "staging: insert claimants")
	}

	res.Imported = n
	res.Skipped = len(payloads) - n
	zap.L().Info("staging: batch confirmed",
		zap.String("staging_id", id),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Batch returns a staging batch or ErrBatchNotFound.
func (w *Workflow) Batch(ctx context.Context, id string) (*model.StagingBatch, error) {
	b, err := w.store.GetStagingBatch(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "staging: get batch")
	}
	if b == nil {
		return nil, eris.Wrapf(ErrBatchNotFound, "staging id %s", id)
	}
	return b, nil
}

// release returns a claimed batch to pending after a failed insert so the
// confirm can be retried.
func (w *Workflow) release(ctx context.Context, id string) {
	if err := w.store.ReleaseStagingBatch(ctx, id); err != nil {
		zap.L().Error("staging: release batch failed", zap.String("staging_id", id), zap.Error(err))
	}
}
