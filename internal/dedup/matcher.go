// Package dedup decides whether a candidate claimant already exists.
package dedup

import (
	"strings"

	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/model"
)

// Match scores per reason.
const (
	ScoreClaimID = 1.0
	ScoreEmail   = 0.95
	ScoreName    = 0.7
)

// Candidate holds the identity fields compared by FindDuplicate.
type Candidate struct {
	Name    string
	Email   string
	ClaimID string
}

// CandidateFrom extracts the identity fields of a payload.
func CandidateFrom(p model.ClaimantPayload) Candidate {
	return Candidate{Name: p.Name, Email: p.Email, ClaimID: p.ClaimID}
}

// FindDuplicate returns the strongest match for c in existing, or nil.
//
// Identifier checks run over the whole set before any name check, so a name
// collision early in the list never shadows an identifier match later on:
//  1. claimId or email equality (trimmed, case-insensitive), first hit wins;
//     on a single record claimId is tried before email
//  2. normalized full-name equality, first hit wins
//
// Callers checking many candidates against the same set should use a
// WorkingSet, which indexes the set once.
func FindDuplicate(c Candidate, existing []model.Claimant) *model.DuplicateVerdict {
	idx := newIndex(len(existing))
	for i, e := range existing {
		idx.add(i, e)
	}
	return idx.lookup(c, existing)
}

// index maps each identity key to the position of the first claimant that
// holds it. Empty keys are never stored.
type index struct {
	claimID map[string]int
	email   map[string]int
	name    map[string]int
}

func newIndex(size int) index {
	return index{
		claimID: make(map[string]int, size),
		email:   make(map[string]int, size),
		name:    make(map[string]int, size),
	}
}

func (ix index) add(pos int, c model.Claimant) {
	addFirst(ix.claimID, foldKey(c.ClaimID), pos)
	addFirst(ix.email, foldKey(c.Email), pos)
	addFirst(ix.name, headers.Normalize(c.Name), pos)
}

// lookup resolves c against the indexed claimants. The earliest record
// matching on claimId or email wins the identifier pass, with claimId
// preferred when both hit the same record.
func (ix index) lookup(c Candidate, claimants []model.Claimant) *model.DuplicateVerdict {
	byClaim, claimOK := ix.claimID[foldKey(c.ClaimID)]
	byEmail, emailOK := ix.email[foldKey(c.Email)]
	switch {
	case claimOK && (!emailOK || byClaim <= byEmail):
		return verdict(model.ReasonClaimID, claimants[byClaim], ScoreClaimID)
	case emailOK:
		return verdict(model.ReasonEmail, claimants[byEmail], ScoreEmail)
	}

	if pos, ok := ix.name[headers.Normalize(c.Name)]; ok {
		return verdict(model.ReasonName, claimants[pos], ScoreName)
	}
	return nil
}

func addFirst(m map[string]int, key string, pos int) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = pos
	}
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func verdict(reason model.MatchReason, e model.Claimant, score float64) *model.DuplicateVerdict {
	return &model.DuplicateVerdict{
		IsDuplicate: true,
		Reason:      reason,
		Claimant:    e,
		Score:       score,
	}
}
