package dedup

import "github.com/sells-group/claimant-intake/internal/model"

// WorkingSet is the append-only collection of claimants a batch checks
// candidates against. It is owned by a single batch call and copies the
// records it is seeded with, so the caller's slice is never modified.
// Identity keys are computed once per record, so Check is a map lookup
// regardless of the set's size.
type WorkingSet struct {
	claimants []model.Claimant
	idx       index
}

// NewWorkingSet seeds a working set with existing claimants.
func NewWorkingSet(existing []model.Claimant) *WorkingSet {
	ws := &WorkingSet{
		claimants: make([]model.Claimant, len(existing), len(existing)+16),
		idx:       newIndex(len(existing) + 16),
	}
	copy(ws.claimants, existing)
	for i, c := range ws.claimants {
		ws.idx.add(i, c)
	}
	return ws
}

// Check returns the strongest match for c, with the same ordering rules as
// FindDuplicate.
func (ws *WorkingSet) Check(c Candidate) *model.DuplicateVerdict {
	return ws.idx.lookup(c, ws.claimants)
}

// Add appends a newly accepted claimant so later candidates see it.
func (ws *WorkingSet) Add(c model.Claimant) {
	ws.idx.add(len(ws.claimants), c)
	ws.claimants = append(ws.claimants, c)
}

// Len returns the number of claimants in the set.
func (ws *WorkingSet) Len() int {
	return len(ws.claimants)
}

// Claimants returns a copy of the current contents.
func (ws *WorkingSet) Claimants() []model.Claimant {
	out := make([]model.Claimant, len(ws.claimants))
	copy(out, ws.claimants)
	return out
}
