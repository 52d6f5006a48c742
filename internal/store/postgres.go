package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimant-intake/internal/db"
	"github.com/sells-group/claimant-intake/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. The schema is
// not required to exist yet; call Migrate before use.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := newPoolConfig(connString, poolCfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// newPoolConfig parses connString and applies pool sizing. Connections run
// no per-connection setup that touches the claimant tables.
func newPoolConfig(connString string, poolCfg *PoolConfig) (*pgxpool.Config, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	return pgxCfg, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS claimants (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org          TEXT NOT NULL,
	name         TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	claim_amount DOUBLE PRECISION,
	claim_id     TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	external_id  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_claimants_org ON claimants(org);
CREATE UNIQUE INDEX IF NOT EXISTS uq_claimants_org_claim_id
	ON claimants(org, lower(claim_id)) WHERE claim_id <> '';

CREATE TABLE IF NOT EXISTS staging_batches (
	id           TEXT PRIMARY KEY,
	org          TEXT NOT NULL,
	filename     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	total        INTEGER NOT NULL DEFAULT 0,
	duplicates   INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging_rows (
	id           TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL REFERENCES staging_batches(id) ON DELETE CASCADE,
	row_index    INTEGER NOT NULL,
	payload      JSONB NOT NULL,
	is_duplicate BOOLEAN NOT NULL DEFAULT false,
	duplicate_of TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_staging_rows_batch ON staging_rows(batch_id, is_duplicate, row_index);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListClaimants(ctx context.Context, org string) ([]model.Claimant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at FROM claimants WHERE org = $1 ORDER BY created_at, id`,
		org,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list claimants for %s", org)
	}
	defer rows.Close()

	var out []model.Claimant
	for rows.Next() {
		c, err := scanClaimant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan claimant")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate claimants")
}

func (s *PostgresStore) GetClaimant(ctx context.Context, org, id string) (*model.Claimant, error) {
	c, err := scanClaimant(s.pool.QueryRow(ctx,
		`SELECT id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at FROM claimants WHERE org = $1 AND id = $2`,
		org, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get claimant %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) CreateClaimant(ctx context.Context, p model.ClaimantPayload) (*model.Claimant, error) {
	c := newClaimant(uuid.New().String(), p, time.Now().UTC())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO claimants (id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		claimantArgs(c)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert claimant")
	}
	return &c, nil
}

func (s *PostgresStore) CreateClaimants(ctx context.Context, payloads []model.ClaimantPayload) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([][]any, len(payloads))
	for i, p := range payloads {
		rows[i] = claimantArgs(newClaimant(uuid.New().String(), p, now))
	}
	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:   "claimants",
		Columns: claimantColumns,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk insert claimants")
	}
	return int(n), nil
}

func (s *PostgresStore) DeleteClaimant(ctx context.Context, org, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM claimants WHERE org = $1 AND id = $2`, org, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete claimant %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "claimant %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateStagingBatch(ctx context.Context, b *model.StagingBatch, rows []model.StagingRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin staging tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO staging_batches (id, org, filename, status, total, duplicates, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.Org, b.Filename, string(b.Status), b.Total, b.Duplicates, b.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert staging batch %s", b.ID)
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal staging payload")
		}
		copyRows[i] = []any{r.ID, b.ID, r.RowIndex, payload, r.IsDuplicate, r.DuplicateOf, string(r.Reason)}
	}
	if _, err := db.CopyFrom(ctx, tx, "staging_rows", stagingRowColumns, copyRows); err != nil {
		return eris.Wrapf(err, "postgres: copy staging rows for %s", b.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit staging tx")
}

func (s *PostgresStore) GetStagingBatch(ctx context.Context, id string) (*model.StagingBatch, error) {
	var b model.StagingBatch
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, org, filename, status, total, duplicates, created_at, completed_at FROM staging_batches WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Org, &b.Filename, &status, &b.Total, &b.Duplicates, &b.CreatedAt, &b.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get staging batch %s", id)
	}
	b.Status = model.BatchStatus(status)
	return &b, nil
}

func (s *PostgresStore) ClaimStagingBatch(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE staging_batches SET status = 'completed', completed_at = $2 WHERE id = $1 AND status = 'pending'`,
		id, at,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim staging batch %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseStagingBatch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE staging_batches SET status = 'pending', completed_at = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: release staging batch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "staging batch %s", id)
	}
	return nil
}

func (s *PostgresStore) ListStagingRows(ctx context.Context, batchID string, duplicates bool) ([]model.StagingRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, row_index, payload, is_duplicate, duplicate_of, reason FROM staging_rows WHERE batch_id = $1 AND is_duplicate = $2 ORDER BY row_index`,
		batchID, duplicates,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list staging rows for %s", batchID)
	}
	defer rows.Close()

	var out []model.StagingRow
	for rows.Next() {
		var r model.StagingRow
		var payload []byte
		var reason string
		if err := rows.Scan(&r.ID, &r.BatchID, &r.RowIndex, &payload, &r.IsDuplicate, &r.DuplicateOf, &reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan staging row")
		}
		if err := json.Unmarshal(payload, &r.Payload); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal staging row %s", r.ID)
		}
		r.Reason = model.MatchReason(reason)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate staging rows")
}
