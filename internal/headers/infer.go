package headers

import (
	"sort"

	"github.com/sells-group/claimant-intake/internal/model"
)

// rescueScore is forced when a header is literally one of a target's
// keywords but no other evidence scored it.
const rescueScore = 0.9

// Candidate is one scored target for a header.
type Candidate struct {
	Target     model.CanonicalField `json:"target"`
	Confidence float64              `json:"confidence"`
}

// Result is the ranked suggestion for one header. Top is set only when the
// best confidence is above zero; Alternatives are sorted by descending
// confidence and exclude Top and zero scores.
type Result struct {
	Top          *Candidate  `json:"top,omitempty"`
	Alternatives []Candidate `json:"alternatives"`
}

// Engine scores headers against the canonical fields.
type Engine struct {
	aliases    Aliases
	sampleRows int
}

// NewEngine creates an Engine. A nil alias table uses the defaults and a
// non-positive sampleRows uses DefaultSampleRows.
func NewEngine(aliases Aliases, sampleRows int) *Engine {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Engine{aliases: aliases, sampleRows: sampleRows}
}

// Aliases returns the alias table the engine scores with.
func (e *Engine) Aliases() Aliases {
	return e.aliases
}

// InferHeaderMapping runs the default engine over headers.
func InferHeaderMapping(headers []string, sampleRows []map[string]string) map[string]Result {
	return NewEngine(nil, 0).Infer(headers, sampleRows)
}

// Infer returns a ranked suggestion for every header.
func (e *Engine) Infer(headers []string, sampleRows []map[string]string) map[string]Result {
	out := make(map[string]Result, len(headers))
	for _, h := range headers {
		out[h] = e.InferHeader(h, sampleRows)
	}
	return out
}

// InferHeader combines lexical and sample evidence for a single header.
func (e *Engine) InferHeader(header string, sampleRows []map[string]string) Result {
	normalized := Normalize(header)
	samples := sampleAverages(header, sampleRows, e.sampleRows)

	scored := make([]Candidate, 0, len(model.CanonicalFields))
	for _, f := range model.CanonicalFields {
		keywords := e.aliases.Keywords(f)
		c := max(LexicalScore(keywords, normalized), samples[f])
		if c == 0 && containsString(keywords, normalized) {
			c = rescueScore
		}
		scored = append(scored, Candidate{Target: f, Confidence: clamp01(c)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})

	res := Result{Alternatives: []Candidate{}}
	for i, c := range scored {
		if c.Confidence <= 0 {
			break
		}
		if i == 0 {
			top := c
			res.Top = &top
			continue
		}
		res.Alternatives = append(res.Alternatives, c)
	}
	return res
}

// SuggestMapping keeps the top target of every header whose confidence
// reaches minConfidence. When two headers share a top target, the more
// confident one keeps it and the other is left unmapped.
func (e *Engine) SuggestMapping(headers []string, sampleRows []map[string]string, minConfidence float64) map[string]model.CanonicalField {
	results := e.Infer(headers, sampleRows)

	type pick struct {
		header string
		conf   float64
	}
	best := make(map[model.CanonicalField]pick)
	for _, h := range headers {
		r := results[h]
		if r.Top == nil || r.Top.Confidence < minConfidence {
			continue
		}
		if cur, ok := best[r.Top.Target]; !ok || r.Top.Confidence > cur.conf {
			best[r.Top.Target] = pick{header: h, conf: r.Top.Confidence}
		}
	}

	mapping := make(map[string]model.CanonicalField, len(best))
	for f, p := range best {
		mapping[p.header] = f
	}
	return mapping
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
