package model

import "time"

// CanonicalField is a target column in the claimant schema.
type CanonicalField string

const (
	FieldName        CanonicalField = "name"
	FieldEmail       CanonicalField = "email"
	FieldPhone       CanonicalField = "phone"
	FieldClaimAmount CanonicalField = "claimAmount"
	FieldClaimID     CanonicalField = "claimId"
	FieldSource      CanonicalField = "source"
	FieldExternalID  CanonicalField = "externalId"
	FieldIgnore      CanonicalField = "ignore" // column is not mapped
)

// CanonicalFields lists every mappable target in schema order. FieldIgnore is
// excluded because it is never a scoring target.
var CanonicalFields = []CanonicalField{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldClaimAmount,
	FieldClaimID,
	FieldSource,
	FieldExternalID,
}

// Valid reports whether f is a member of the closed field set, including FieldIgnore.
func (f CanonicalField) Valid() bool {
	if f == FieldIgnore {
		return true
	}
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// Claimant is a persisted claimant record owned by the claimant store.
type Claimant struct {
	ID          string    `json:"id"`
	Org         string    `json:"org"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	ClaimAmount *float64  `json:"claimAmount,omitempty"`
	ClaimID     string    `json:"claimId,omitempty"`
	Source      string    `json:"source,omitempty"`
	ExternalID  string    `json:"externalId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ClaimantPayload is a candidate record resolved from one import row. It is
// only persisted if the row is accepted.
type ClaimantPayload struct {
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	ClaimAmount *float64 `json:"claimAmount,omitempty"`
	ClaimID     string   `json:"claimId,omitempty"`
	Source      string   `json:"source,omitempty"`
	ExternalID  string   `json:"externalId,omitempty"`
	Org         string   `json:"org"`
}

// MatchReason names the strategy that produced a duplicate verdict.
type MatchReason string

const (
	ReasonClaimID MatchReason = "claimId-match"
	ReasonEmail   MatchReason = "email-match"
	ReasonName    MatchReason = "name-match"
)

// DuplicateVerdict describes the existing claimant a candidate collides with.
// A nil *DuplicateVerdict means the candidate is fresh.
type DuplicateVerdict struct {
	IsDuplicate bool        `json:"isDuplicate"`
	Reason      MatchReason `json:"reason"`
	Claimant    Claimant    `json:"claimant"`
	Score       float64     `json:"score"`
}
