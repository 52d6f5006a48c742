package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/claimant-intake/internal/staging"
)

// Upload actions.
const (
	actionPreview = "preview"
	actionImport  = "import"
	actionConfirm = "confirm"
)

type uploadResponse struct {
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Duplicates int    `json:"duplicates"`
	Fresh      int    `json:"fresh"`
	Invalid    int    `json:"invalid,omitempty"`
	StagingID  string `json:"stagingId,omitempty"`
	Imported   *int   `json:"imported,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	resp, err := s.upload(w, r)
	if err != nil {
		status, msg := statusFor(r, err)
		writeJSON(w, status, uploadResponse{Error: msg})
		return
	}
	resp.Success = true
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) (*uploadResponse, error) {
	f, err := s.readForm(w, r)
	if err != nil {
		return nil, err
	}

	action := strings.ToLower(strings.TrimSpace(f.Action))
	switch action {
	case actionConfirm:
		res, err := s.staging.Confirm(r.Context(), f.StagingID)
		if err != nil {
			return nil, err
		}
		return &uploadResponse{StagingID: res.StagingID, Imported: &res.Imported}, nil

	case actionPreview, actionImport:
		rows, opts, err := s.batchRows(r, f)
		if err != nil {
			return nil, err
		}
		req := staging.Request{Org: s.org(f.Org), Filename: f.Filename, Rows: rows, Options: opts}

		var sum *staging.Summary
		if action == actionPreview {
			sum, err = s.staging.Preview(r.Context(), req)
		} else {
			sum, err = s.staging.Stage(r.Context(), req)
		}
		if err != nil {
			return nil, err
		}
		return &uploadResponse{
			Total:      sum.Total,
			Duplicates: sum.Duplicates,
			Fresh:      sum.Fresh,
			Invalid:    sum.Invalid,
			StagingID:  sum.StagingID,
		}, nil

	case "":
		return nil, badRequest("action is required")
	default:
		return nil, badRequest("unknown action: " + action)
	}
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	b, err := s.staging.Batch(r.Context(), chi.URLParam(r, "stagingID"))
	if err != nil {
		status, msg := statusFor(r, err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
