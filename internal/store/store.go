// Package store persists claimants and staging batches.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimant-intake/internal/model"
)

// ErrNotFound is returned by mutations that target a missing record.
var ErrNotFound = eris.New("store: not found")

// ClaimantStore is the org-scoped claimant persistence interface.
type ClaimantStore interface {
	ListClaimants(ctx context.Context, org string) ([]model.Claimant, error)
	// GetClaimant returns nil, nil when the claimant does not exist.
	GetClaimant(ctx context.Context, org, id string) (*model.Claimant, error)
	CreateClaimant(ctx context.Context, p model.ClaimantPayload) (*model.Claimant, error)
	// CreateClaimants bulk-inserts payloads, skipping any that violate a
	// uniqueness constraint, and returns the number inserted.
	CreateClaimants(ctx context.Context, payloads []model.ClaimantPayload) (int, error)
	DeleteClaimant(ctx context.Context, org, id string) error
}

// StagingStore persists staging batches and their rows.
type StagingStore interface {
	CreateStagingBatch(ctx context.Context, b *model.StagingBatch, rows []model.StagingRow) error
	// GetStagingBatch returns nil, nil when the batch does not exist.
	GetStagingBatch(ctx context.Context, id string) (*model.StagingBatch, error)
	// ClaimStagingBatch moves a pending batch to completed. It reports false
	// when the batch was not pending, so exactly one caller wins.
	ClaimStagingBatch(ctx context.Context, id string, at time.Time) (bool, error)
	// ReleaseStagingBatch returns a claimed batch to pending.
	ReleaseStagingBatch(ctx context.Context, id string) error
	ListStagingRows(ctx context.Context, batchID string, duplicates bool) ([]model.StagingRow, error)
}

// Store combines claimant and staging persistence with lifecycle hooks.
type Store interface {
	ClaimantStore
	StagingStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// claimantColumns is the column order shared by both backends.
var claimantColumns = []string{
	"id", "org", "name", "email", "phone", "claim_amount",
	"claim_id", "source", "external_id", "created_at", "updated_at",
}

var stagingRowColumns = []string{
	"id", "batch_id", "row_index", "payload", "is_duplicate", "duplicate_of", "reason",
}

// newClaimant builds the record a payload will be stored as.
func newClaimant(id string, p model.ClaimantPayload, now time.Time) model.Claimant {
	return model.Claimant{
		ID:          id,
		Org:         p.Org,
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		ClaimAmount: p.ClaimAmount,
		ClaimID:     p.ClaimID,
		Source:      p.Source,
		ExternalID:  p.ExternalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func claimantArgs(c model.Claimant) []any {
	return []any{
		c.ID, c.Org, c.Name, c.Email, c.Phone, c.ClaimAmount,
		c.ClaimID, c.Source, c.ExternalID, c.CreatedAt, c.UpdatedAt,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanClaimant(row scannable) (model.Claimant, error) {
	var c model.Claimant
	err := row.Scan(
		&c.ID, &c.Org, &c.Name, &c.Email, &c.Phone, &c.ClaimAmount,
		&c.ClaimID, &c.Source, &c.ExternalID, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
