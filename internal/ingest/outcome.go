package ingest

import (
	"fmt"

	"github.com/sells-group/claimant-intake/internal/model"
)

// Outcome is the result of processing one input row. It is one of
// Imported, Skipped or Errored.
type Outcome interface {
	// RowNumber is the 1-based position of the row in the input.
	RowNumber() int
	outcome()
}

// Imported records a row that was persisted. Override is set when the row
// matched an existing claimant but duplicates were not skipped.
type Imported struct {
	Row      int
	Claimant model.Claimant
	Override *model.DuplicateVerdict
}

// Skipped records a row withheld because it duplicates an existing claimant.
type Skipped struct {
	Row     int
	Verdict model.DuplicateVerdict
}

// Errored records a row that failed validation or persistence.
type Errored struct {
	Row     int
	Message string
}

func (o Imported) RowNumber() int { return o.Row }
func (o Skipped) RowNumber() int  { return o.Row }
func (o Errored) RowNumber() int  { return o.Row }

func (Imported) outcome() {}
func (Skipped) outcome()  {}
func (Errored) outcome()  {}

// RowError is the wire form of an Errored outcome.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// RowDuplicate is the wire form of a Skipped outcome.
type RowDuplicate struct {
	Row        int               `json:"row"`
	Reason     model.MatchReason `json:"reason"`
	ClaimantID string            `json:"claimantId"`
	Score      float64           `json:"score"`
}

// Result summarizes a batch.
type Result struct {
	Total      int              `json:"total"`
	Imported   int              `json:"imported"`
	Errors     []RowError       `json:"errors"`
	Duplicates []RowDuplicate   `json:"duplicates"`
	Outcomes   []Outcome        `json:"-"`
	Created    []model.Claimant `json:"-"`
}

// Summarize folds ordered row outcomes into a Result.
func Summarize(outcomes []Outcome) *Result {
	res := &Result{
		Total:      len(outcomes),
		Errors:     []RowError{},
		Duplicates: []RowDuplicate{},
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		switch o := o.(type) {
		case Imported:
			res.Imported++
			res.Created = append(res.Created, o.Claimant)
		case Skipped:
			res.Duplicates = append(res.Duplicates, RowDuplicate{
				Row:        o.Row,
				Reason:     o.Verdict.Reason,
				ClaimantID: o.Verdict.Claimant.ID,
				Score:      o.Verdict.Score,
			})
		case Errored:
			res.Errors = append(res.Errors, RowError{Row: o.Row, Error: o.Message})
		default:
			panic(fmt.Sprintf("ingest: unhandled outcome %T", o))
		}
	}
	return res
}
