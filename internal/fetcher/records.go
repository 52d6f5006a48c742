package fetcher

import "strings"

// Records turns a header row and data rows into header-keyed maps. Rows with
// no non-blank cell are dropped, as are columns with a blank header. When a
// header repeats, the first column wins.
func Records(header []string, rows [][]string) []map[string]string {
	header = cleanHeader(header)

	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if _, seen := rec[h]; seen {
				continue
			}
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
