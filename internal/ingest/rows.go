package ingest

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/model"
)

// Row is one uploaded record keyed by its header text. Pre-mapped rows are
// keyed by canonical field name instead.
type Row map[string]string

// Row validation messages reported back to the caller.
const (
	msgMissingName       = "missing name"
	msgMissingNameMapped = "missing name (mapped)"
)

// Headers returns the row's keys in sorted order.
func (r Row) Headers() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolver turns a row into a claimant payload.
type resolver struct {
	aliases headers.Aliases
}

// resolve picks the resolution strategy in priority order: pre-mapped
// payload, explicit mapping, then heuristics.
func (rv resolver) resolve(row Row, org string, opts Options) (model.ClaimantPayload, error) {
	switch {
	case opts.PreMapped:
		return resolvePreMapped(row, org)
	case len(opts.Mapping) > 0:
		return applyMapping(row, org, opts.Mapping)
	default:
		return rv.resolveHeuristic(row, org)
	}
}

func resolvePreMapped(row Row, org string) (model.ClaimantPayload, error) {
	p := model.ClaimantPayload{Org: org}
	for _, k := range row.Headers() {
		for _, f := range model.CanonicalFields {
			if strings.EqualFold(strings.TrimSpace(k), string(f)) {
				setField(&p, f, row[k])
				break
			}
		}
	}
	if p.Name == "" {
		return p, eris.New(msgMissingName)
	}
	return p, nil
}

func applyMapping(row Row, org string, mapping map[string]model.CanonicalField) (model.ClaimantPayload, error) {
	p := model.ClaimantPayload{Org: org}
	for _, h := range row.Headers() {
		f, ok := mapping[h]
		if !ok || f == model.FieldIgnore || !f.Valid() {
			continue
		}
		setField(&p, f, row[h])
	}
	if p.Name == "" {
		return p, eris.New(msgMissingNameMapped)
	}
	return p, nil
}

func (rv resolver) resolveHeuristic(row Row, org string) (model.ClaimantPayload, error) {
	p := model.ClaimantPayload{Org: org}
	aliasMap := rv.aliases.HeuristicMapping(row.Headers())

	if _, ok := headers.DirectLookup(row, model.FieldName); ok {
		direct := make(map[model.CanonicalField]bool)
		for _, f := range headers.DirectFields() {
			if v, ok := headers.DirectLookup(row, f); ok {
				direct[f] = true
				setField(&p, f, v)
			}
		}
		for _, h := range row.Headers() {
			if f, ok := aliasMap[h]; ok && !direct[f] {
				setField(&p, f, row[h])
			}
		}
	} else {
		for _, h := range row.Headers() {
			if f, ok := aliasMap[h]; ok {
				setField(&p, f, row[h])
			}
		}
	}

	if p.Name == "" {
		return p, eris.New(msgMissingName)
	}
	return p, nil
}

// setField assigns a trimmed value to f unless f is already set or the
// value is blank.
func setField(p *model.ClaimantPayload, f model.CanonicalField, raw string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	switch f {
	case model.FieldName:
		if p.Name == "" {
			p.Name = v
		}
	case model.FieldEmail:
		if p.Email == "" {
			p.Email = v
		}
	case model.FieldPhone:
		if p.Phone == "" {
			p.Phone = v
		}
	case model.FieldClaimAmount:
		if p.ClaimAmount == nil {
			p.ClaimAmount = ParseAmount(v)
		}
	case model.FieldClaimID:
		if p.ClaimID == "" {
			p.ClaimID = v
		}
	case model.FieldSource:
		if p.Source == "" {
			p.Source = v
		}
	case model.FieldExternalID:
		if p.ExternalID == "" {
			p.ExternalID = v
		}
	}
}

var amountCleaner = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

// ParseAmount reads a money string such as "$1,250.00". It returns nil when
// the value is not a number.
func ParseAmount(s string) *float64 {
	clean := amountCleaner.Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RowsFrom converts parsed file records into rows.
func RowsFrom(records []map[string]string) []Row {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row(rec)
	}
	return rows
}
