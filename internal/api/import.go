package api

import (
	"net/http"

	"github.com/sells-group/claimant-intake/internal/ingest"
)

// handleImport runs a direct import: resolve, deduplicate and create each
// row, reporting per-row errors and duplicates.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	f, err := s.readForm(w, r)
	if err != nil {
		status, msg := statusFor(r, err)
		writeError(w, status, msg)
		return
	}

	res, err := s.runImport(r, f)
	if err != nil {
		status, msg := statusFor(r, err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) runImport(r *http.Request, f *form) (*ingest.Result, error) {
	rows, opts, err := s.batchRows(r, f)
	if err != nil {
		return nil, err
	}
	if err := s.importer.CheckCap(len(rows)); err != nil {
		return nil, err
	}

	org := s.org(f.Org)
	existing, err := s.store.ListClaimants(r.Context(), org)
	if err != nil {
		return nil, err
	}
	return s.importer.Run(r.Context(), ingest.Batch{Org: org, Rows: rows, Options: opts}, existing)
}
