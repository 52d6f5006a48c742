package staging

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/claimant-intake/internal/ingest"
	"github.com/sells-group/claimant-intake/internal/model"
	"github.com/sells-group/claimant-intake/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestWorkflow(t *testing.T, st Store) *Workflow {
	t.Helper()
	return NewWorkflow(st, ingest.NewOrchestrator(nil, nil, 5))
}

// failingStore rejects bulk inserts.
type failingStore struct {
	*store.SQLiteStore
}

func (f failingStore) CreateClaimants(context.Context, []model.ClaimantPayload) (int, error) {
	return 0, errors.New("disk full")
}

func sampleRequest() Request {
	return Request{
		Org:      "demo",
		Filename: "claims.csv",
		Rows: []ingest.Row{
			{"Name": "Jane Doe", "Email": "jane@x.com"},
			{"Name": "Bob Stone", "Email": "bob@x.com"},
			{"Name": "bob  stone", "Email": ""},
			{"Name": "  ", "Email": "ghost@x.com"},
		},
	}
}

func seedExisting(t *testing.T, st *store.SQLiteStore) *model.Claimant {
	t.Helper()
	c, err := st.CreateClaimant(context.Background(), model.ClaimantPayload{Org: "demo", Name: "Jane Doe", Email: "JANE@x.com"})
	require.NoError(t, err)
	return c
}

func TestPreview_CountsWithoutPersisting(t *testing.T) {
	st := newTestStore(t)
	seedExisting(t, st)
	w := newTestWorkflow(t, st)

	s, err := w.Preview(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Duplicates)
	assert.Equal(t, 1, s.Fresh)
	assert.Equal(t, 1, s.Invalid)
	assert.Empty(t, s.StagingID)

	list, err := st.ListClaimants(context.Background(), "demo")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPreview_RowCap(t *testing.T) {
	w := newTestWorkflow(t, newTestStore(t))
	rows := make([]ingest.Row, 6)
	for i := range rows {
		rows[i] = ingest.Row{"Name": "Someone"}
	}

	_, err := w.Preview(context.Background(), Request{Org: "demo", Rows: rows})
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrTooManyRows)
}

func TestStage_PersistsTaggedRows(t *testing.T) {
	st := newTestStore(t)
	existing := seedExisting(t, st)
	w := newTestWorkflow(t, st)
	ctx := context.Background()

	s, err := w.Stage(ctx, sampleRequest())
	require.NoError(t, err)
	require.NotEmpty(t, s.StagingID)
	assert.Equal(t, 2, s.Duplicates)
	assert.Equal(t, 1, s.Fresh)

	b, err := st.GetStagingBatch(ctx, s.StagingID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, model.BatchStatusPending, b.Status)
	assert.Equal(t, "claims.csv", b.Filename)
	assert.Equal(t, 4, b.Total)

	fresh, err := st.ListStagingRows(ctx, s.StagingID, false)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "Bob Stone", fresh[0].Payload.Name)
	assert.Equal(t, 1, fresh[0].RowIndex)

	dups, err := st.ListStagingRows(ctx, s.StagingID, true)
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, existing.ID, dups[0].DuplicateOf)
	assert.Equal(t, model.ReasonEmail, dups[0].Reason)
	assert.Equal(t, fresh[0].ID, dups[1].DuplicateOf)
	assert.Equal(t, model.ReasonName, dups[1].Reason)

	list, err := st.ListClaimants(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConfirm_ImportsFreshRows(t *testing.T) {
	st := newTestStore(t)
	seedExisting(t, st)
	w := newTestWorkflow(t, st)
	ctx := context.Background()

	s, err := w.Stage(ctx, sampleRequest())
	require.NoError(t, err)

	res, err := w.Confirm(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Zero(t, res.Skipped)

	list, err := st.ListClaimants(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	b, err := w.Batch(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, b.Status)
	assert.NotNil(t, b.CompletedAt)
}

func TestConfirm_Twice(t *testing.T) {
	st := newTestStore(t)
	w := newTestWorkflow(t, st)
	ctx := context.Background()

	s, err := w.Stage(ctx, sampleRequest())
	require.NoError(t, err)

	first, err := w.Confirm(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)

	second, err := w.Confirm(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Zero(t, second.Imported)

	list, err := st.ListClaimants(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestConfirm_AllDuplicates(t *testing.T) {
	st := newTestStore(t)
	seedExisting(t, st)
	w := newTestWorkflow(t, st)
	ctx := context.Background()

	s, err := w.Stage(ctx, Request{Org: "demo", Rows: []ingest.Row{{"Name": "Jane Doe"}}})
	require.NoError(t, err)
	assert.Zero(t, s.Fresh)

	res, err := w.Confirm(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Zero(t, res.Imported)

	b, err := w.Batch(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, b.Status)
}

func TestConfirm_Errors(t *testing.T) {
	w := newTestWorkflow(t, newTestStore(t))

	_, err := w.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingStagingID)

	_, err = w.Confirm(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestConfirm_InsertFailureReleasesBatch(t *testing.T) {
	st := newTestStore(t)
	w := newTestWorkflow(t, failingStore{st})
	ctx := context.Background()

	s, err := w.Stage(ctx, sampleRequest())
	require.NoError(t, err)

	_, err = w.Confirm(ctx, s.StagingID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	b, err := st.GetStagingBatch(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusPending, b.Status)

	// A healthy retry succeeds.
	res, err := newTestWorkflow(t, st).Confirm(ctx, s.StagingID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
}

func TestConfirm_ConcurrentInsertsOnce(t *testing.T) {
	st := newTestStore(t)
	w := newTestWorkflow(t, st)
	ctx := context.Background()

	s, err := w.Stage(ctx, sampleRequest())
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Confirm(ctx, s.StagingID)
			if err != nil {
				return
			}
			mu.Lock()
			total += res.Imported
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, total)
	list, err := st.ListClaimants(ctx, "demo")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
