package headers

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/claimant-intake/internal/model"
)

// Aliases maps each canonical field to the header spellings accepted for it.
// The same table drives the lexical scorer and the fallback row mapper.
type Aliases map[model.CanonicalField][]string

var defaultAliases = Aliases{
	model.FieldName: {
		"name", "full name", "fullname", "claimant", "claimant name",
		"customer name", "client name", "contact name",
	},
	model.FieldEmail: {
		"email", "email address", "e mail", "emailaddress", "mail",
	},
	model.FieldPhone: {
		"phone", "phone number", "telephone", "tel", "mobile", "cell",
	},
	model.FieldClaimAmount: {
		"claim amount", "amount", "claim value", "amount claimed", "total",
	},
	model.FieldClaimID: {
		"claim id", "claimid", "claim number", "claim no", "claim ref", "case id",
	},
	model.FieldSource: {
		"source", "origin", "channel", "lead source",
	},
	model.FieldExternalID: {
		"external id", "externalid", "id", "ext id", "reference", "ref",
	},
}

// DefaultAliases returns a copy of the built-in alias table.
func DefaultAliases() Aliases {
	return defaultAliases.Merge(nil)
}

// Keywords returns the normalized aliases for f.
func (a Aliases) Keywords(f model.CanonicalField) []string {
	raw := a[f]
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if n := Normalize(k); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Merge returns a new table holding a's aliases followed by any of other's
// that a does not already list.
func (a Aliases) Merge(other Aliases) Aliases {
	out := make(Aliases, len(a))
	for f, list := range a {
		out[f] = append([]string(nil), list...)
	}
	for f, list := range other {
		seen := make(map[string]bool, len(out[f]))
		for _, k := range out[f] {
			seen[Normalize(k)] = true
		}
		for _, k := range list {
			n := Normalize(k)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out[f] = append(out[f], k)
		}
	}
	return out
}

// Lookup returns the first field, in schema order, that lists the normalized
// header verbatim.
func (a Aliases) Lookup(normalizedHeader string) (model.CanonicalField, bool) {
	if normalizedHeader == "" {
		return "", false
	}
	for _, f := range model.CanonicalFields {
		for _, k := range a.Keywords(f) {
			if k == normalizedHeader {
				return f, true
			}
		}
	}
	return "", false
}

// LoadAliases reads a YAML file of `field: [alias, ...]` entries and merges it
// onto the built-in table. An empty path returns the defaults.
func LoadAliases(path string) (Aliases, error) {
	if path == "" {
		return DefaultAliases(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "headers: read aliases %s", path)
	}
	return ParseAliases(data)
}

// ParseAliases decodes a YAML alias override and merges it onto the defaults.
func ParseAliases(data []byte) (Aliases, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "headers: parse aliases")
	}
	extra := make(Aliases, len(raw))
	for name, list := range raw {
		f := model.CanonicalField(strings.TrimSpace(name))
		if !f.Valid() || f == model.FieldIgnore {
			return nil, eris.Errorf("headers: unknown field %q in aliases", name)
		}
		extra[f] = list
	}
	return DefaultAliases().Merge(extra), nil
}

// directFields are the fields DirectLookup resolves: the ones that identify
// a claimant.
var directFields = []model.CanonicalField{
	model.FieldName,
	model.FieldEmail,
	model.FieldPhone,
	model.FieldClaimID,
}

// directSpellings holds the literal header spellings of each direct field,
// derived from the built-in alias table.
var directSpellings = buildDirectSpellings(defaultAliases)

// buildDirectSpellings expands every alias of the direct fields into its
// spaced, snake_case, kebab-case and camelCase forms, in alias order.
func buildDirectSpellings(a Aliases) map[model.CanonicalField][]string {
	out := make(map[model.CanonicalField][]string, len(directFields))
	for _, f := range directFields {
		seen := make(map[string]bool)
		var list []string
		add := func(s string) {
			if s != "" && !seen[s] {
				seen[s] = true
				list = append(list, s)
			}
		}
		for _, alias := range a[f] {
			words := strings.Fields(alias)
			add(strings.Join(words, " "))
			add(strings.Join(words, "_"))
			add(strings.Join(words, "-"))
			add(camelCase(words))
		}
		out[f] = list
	}
	return out
}

func camelCase(words []string) string {
	var b strings.Builder
	for i, w := range words {
		if i == 0 || w == "" {
			b.WriteString(w)
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

// DirectFields lists the fields DirectLookup can resolve.
func DirectFields() []model.CanonicalField {
	return append([]model.CanonicalField(nil), directFields...)
}

// DirectLookup finds a non-blank value for f under one of its literal
// spellings. Keys are matched case-sensitively first, then case-insensitively.
func DirectLookup(row map[string]string, f model.CanonicalField) (string, bool) {
	spellings := directSpellings[f]
	for _, s := range spellings {
		if v, ok := row[s]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, s := range spellings {
		for _, k := range keys {
			if v := row[k]; strings.EqualFold(strings.TrimSpace(k), s) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}

// HeuristicMapping maps every header whose normalized form is a known alias.
// Headers with no alias are left out.
func (a Aliases) HeuristicMapping(headers []string) map[string]model.CanonicalField {
	out := make(map[string]model.CanonicalField, len(headers))
	for _, h := range headers {
		if f, ok := a.Lookup(Normalize(h)); ok {
			out[h] = f
		}
	}
	return out
}
