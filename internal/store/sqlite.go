package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/claimant-intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS claimants (
	id           TEXT PRIMARY KEY,
	org          TEXT NOT NULL,
	name         TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	claim_amount REAL,
	claim_id     TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	external_id  TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS staging_rows (
	id           TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL REFERENCES staging_batches(id) ON DELETE CASCADE,
	row_index    INTEGER NOT NULL,
	payload      TEXT NOT NULL,
	is_duplicate INTEGER NOT NULL DEFAULT 0,
	duplicate_of TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_staging_rows_batch ON staging_rows(batch_id, is_duplicate, row_index);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteInsertClaimant = `INSERT INTO claimants (id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) ListClaimants(ctx context.Context, org string) ([]model.Claimant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at FROM claimants WHERE org = ? ORDER BY rowid`,
		org,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list claimants for %s", org)
	}
	defer rows.Close()

	var out []model.Claimant
	for rows.Next() {
		c, err := scanClaimant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claimant")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate claimants")
}

func (s *SQLiteStore) GetClaimant(ctx context.Context, org, id string) (*model.Claimant, error) {
	c, err := scanClaimant(s.db.QueryRowContext(ctx,
		`SELECT id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at FROM claimants WHERE org = ? AND id = ?`,
		org, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get claimant %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateClaimant(ctx context.Context, p model.ClaimantPayload) (*model.Claimant, error) {
	c := newClaimant(uuid.New().String(), p, time.Now().UTC())
	if _, err := s.db.ExecContext(ctx, sqliteInsertClaimant, claimantArgs(c)...); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert claimant")
	}
	return &c, nil
}

func (s *SQLiteStore) CreateClaimants(ctx context.Context, payloads []model.ClaimantPayload) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO claimants (id, org, name, email, phone, claim_amount, claim_id, source, external_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, p := range payloads {
		res, err := stmt.ExecContext(ctx, claimantArgs(newClaimant(uuid.New().String(), p, now))...)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: bulk insert claimant")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) DeleteClaimant(ctx context.Context, org, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM claimants WHERE org = ? AND id = ?`, org, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete claimant %s", id)
	}
	return checkRowsAffected(res, "claimant", id)
}

func (s *SQLiteStore) CreateStagingBatch(ctx context.Context, b *model.StagingBatch, rows []model.StagingRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin staging tx")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO staging_batches (id, org, filename, status, total, duplicates, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Org, b.Filename, string(b.Status), b.Total, b.Duplicates, b.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert staging batch %s", b.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO staging_rows (id, batch_id, row_index, payload, is_duplicate, duplicate_of, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare staging rows")
	}
	defer stmt.Close()

	for _, r := range rows {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal staging payload")
		}
		if _, err := stmt.ExecContext(ctx, r.ID, b.ID, r.RowIndex, string(payload), r.IsDuplicate, r.DuplicateOf, string(r.Reason)); err != nil {
			return eris.Wrapf(err, "sqlite: insert staging row %d", r.RowIndex)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit staging tx")
}

func (s *SQLiteStore) GetStagingBatch(ctx context.Context, id string) (*model.StagingBatch, error) {
	var b model.StagingBatch
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org, filename, status, total, duplicates, created_at, completed_at FROM staging_batches WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.Org, &b.Filename, &status, &b.Total, &b.Duplicates, &b.CreatedAt, &b.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get staging batch %s", id)
	}
	b.Status = model.BatchStatus(status)
	return &b, nil
}

func (s *SQLiteStore) ClaimStagingBatch(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE staging_batches SET status = 'completed', completed_at = ? WHERE id = ? AND status = 'pending'`,
		at, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim staging batch %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseStagingBatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE staging_batches SET status = 'pending', completed_at = NULL WHERE id = ?`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release staging batch %s", id)
	}
	return checkRowsAffected(res, "staging batch", id)
}

func (s *SQLiteStore) ListStagingRows(ctx context.Context, batchID string, duplicates bool) ([]model.StagingRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, row_index, payload, is_duplicate, duplicate_of, reason FROM staging_rows WHERE batch_id = ? AND is_duplicate = ? ORDER BY row_index`,
		batchID, duplicates,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list staging rows for %s", batchID)
	}
	defer rows.Close()

	var out []model.StagingRow
	for rows.Next() {
		var r model.StagingRow
		var payload, reason string
		if err := rows.Scan(&r.ID, &r.BatchID, &r.RowIndex, &payload, &r.IsDuplicate, &r.DuplicateOf, &reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan staging row")
		}
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal staging row %s", r.ID)
		}
		r.Reason = model.MatchReason(reason)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate staging rows")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
