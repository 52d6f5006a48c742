package headers

import (
	"regexp"
	"strings"

	"github.com/sells-group/claimant-intake/internal/model"
)

// Lexical score tiers. The highest satisfied tier wins.
const (
	ScoreExact      = 1.0
	ScoreContains   = 0.9
	ScoreFirstToken = 0.7
)

// Sample score per matching value.
const (
	sampleEmail  = 0.95
	sampleID     = 0.8
	sampleName   = 0.85
	samplePhone  = 0.7
	sampleAmount = 0.75
)

// DefaultSampleRows is how many sample rows are examined per header.
const DefaultSampleRows = 10

var (
	idRe     = regexp.MustCompile(`^[0-9-]+$`)
	nameRe   = regexp.MustCompile(`^\p{L}[\p{L}'.-]*(?:\s+\p{L}[\p{L}'.-]*)+$`)
	phoneRe  = regexp.MustCompile(`^\+?[0-9 ().-]+$`)
	amountRe = regexp.MustCompile(`^[$€£]?\s?-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?$`)
)

// LexicalScore rates how well a normalized header matches any of a target's
// keywords: exact match 1.0, keyword contained in header 0.9, same first
// token 0.7, otherwise 0. Keywords are normalized the same way as headers.
func LexicalScore(keywords []string, normalizedHeader string) float64 {
	if normalizedHeader == "" {
		return 0
	}
	best := 0.0
	headFirst := firstToken(normalizedHeader)
	for _, raw := range keywords {
		kw := Normalize(raw)
		if kw == "" {
			continue
		}
		switch {
		case normalizedHeader == kw:
			return ScoreExact
		case strings.Contains(normalizedHeader, kw):
			best = max(best, ScoreContains)
		case headFirst == firstToken(kw):
			best = max(best, ScoreFirstToken)
		}
	}
	return best
}

// SampleScore rates a single cell value as evidence for target. Empty values
// score 0.
func SampleScore(target model.CanonicalField, value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	switch target {
	case model.FieldEmail:
		if strings.Contains(v, "@") {
			return sampleEmail
		}
	case model.FieldClaimID, model.FieldExternalID:
		if idRe.MatchString(v) {
			return sampleID
		}
	case model.FieldName:
		if nameRe.MatchString(v) {
			return sampleName
		}
	case model.FieldPhone:
		if phoneRe.MatchString(v) {
			if n := countDigits(v); n >= 7 && n <= 15 {
				return samplePhone
			}
		}
	case model.FieldClaimAmount:
		if amountRe.MatchString(v) {
			return sampleAmount
		}
	}
	return 0
}

// sampleAverages averages SampleScore per target over the first limit rows.
// Rows with an empty or missing value for header are not counted.
func sampleAverages(header string, rows []map[string]string, limit int) map[model.CanonicalField]float64 {
	sums := make(map[model.CanonicalField]float64, len(model.CanonicalFields))
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	n := 0
	for _, row := range rows[:limit] {
		v := strings.TrimSpace(row[header])
		if v == "" {
			continue
		}
		n++
		for _, f := range model.CanonicalFields {
			sums[f] += SampleScore(f, v)
		}
	}
	if n == 0 {
		return sums
	}
	for f := range sums {
		sums[f] /= float64(n)
	}
	return sums
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
