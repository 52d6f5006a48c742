package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimant-intake/internal/model"
	"github.com/sells-group/claimant-intake/internal/store"
)

func (s *Server) handleListClaimants(w http.ResponseWriter, r *http.Request) {
	org := s.org(r.URL.Query().Get("org"))
	list, err := s.store.ListClaimants(r.Context(), org)
	if err != nil {
		status, msg := statusFor(r, err)
		writeError(w, status, msg)
		return
	}
	if list == nil {
		list = []model.Claimant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"org": org, "claimants": list})
}

func (s *Server) handleGetClaimant(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetClaimant(r.Context(), s.org(r.URL.Query().Get("org")), chi.URLParam(r, "id"))
	if err != nil {
		status, msg := statusFor(r, err)
		writeError(w, status, msg)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "claimant not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteClaimant(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteClaimant(r.Context(), s.org(r.URL.Query().Get("org")), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "claimant not found")
		return
	}
	if err != nil {
		status, msg := statusFor(r, err)
		writeError(w, status, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
