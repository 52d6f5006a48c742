package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/sells-group/claimant-intake/internal/headers"
	"github.com/sells-group/claimant-intake/internal/model"
)

// defaultMinConfidence is the suggestion threshold when the caller sends none.
const defaultMinConfidence = 0.5

type inferRequest struct {
	Headers       []string         `json:"headers"`
	SampleRows    []map[string]any `json:"sampleRows"`
	MinConfidence *float64         `json:"minConfidence"`
}

type inferResponse struct {
	Results map[string]headers.Result       `json:"results"`
	Mapping map[string]model.CanonicalField `json:"mapping"`
}

// handleInfer scores headers against the canonical fields. It reads nothing
// from the store.
func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	samples := make([]map[string]string, len(req.SampleRows))
	for i, row := range req.SampleRows {
		samples[i] = make(map[string]string, len(row))
		for k, v := range row {
			samples[i][k] = stringify(v)
		}
	}

	hdrs := req.Headers
	if len(hdrs) == 0 {
		hdrs = sampleHeaders(samples)
	}
	if len(hdrs) == 0 {
		writeError(w, http.StatusBadRequest, "headers are required")
		return
	}

	minConf := defaultMinConfidence
	if req.MinConfidence != nil {
		minConf = *req.MinConfidence
	}

	writeJSON(w, http.StatusOK, inferResponse{
		Results: s.engine.Infer(hdrs, samples),
		Mapping: s.engine.SuggestMapping(hdrs, samples, minConf),
	})
}

// sampleHeaders returns the sorted union of keys across sample rows.
func sampleHeaders(rows []map[string]string) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
