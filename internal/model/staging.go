package model

import "time"

// BatchStatus is the lifecycle state of a staging batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusCompleted BatchStatus = "completed"
)

// StagingBatch groups the rows of one staged upload until they are confirmed.
type StagingBatch struct {
	ID          string      `json:"id"`
	Org         string      `json:"org"`
	Filename    string      `json:"filename,omitempty"`
	Status      BatchStatus `json:"status"`
	Total       int         `json:"total"`
	Duplicates  int         `json:"duplicates"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// StagingRow is one staged input row with its duplicate flag.
type StagingRow struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batchId"`
	RowIndex    int             `json:"rowIndex"`
	Payload     ClaimantPayload `json:"payload"`
	IsDuplicate bool            `json:"isDuplicate"`
	DuplicateOf string          `json:"duplicateOf,omitempty"`
	Reason      MatchReason     `json:"reason,omitempty"`
}
