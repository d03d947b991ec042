package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/visualedit/internal/logging"
)

// handleLookup answers a linked-record editor's lookup. Without a term the
// full list is returned.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	ds := chi.URLParam(r, "dataset")
	cands, err := s.lookups.Search(r.Context(), ds, r.URL.Query().Get("term"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cands)
}

// handleLabel returns the label of one linked row.
func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	ds := chi.URLParam(r, "dataset")
	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, r, fmt.Errorf("%w: key is required", errBadRequest))
		return
	}
	label, err := s.lookups.Label(r.Context(), ds, key)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "label": label})
}

// handleOpenEditor opens a linked-record editor on a row's cell and returns
// its initial options. It blocks until the first lookup completes.
func (s *Server) handleOpenEditor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RowID string `json:"rowId"`
		Field string `json:"field"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.RowID == "" || req.Field == "" {
		respondError(w, r, fmt.Errorf("%w: rowId and field are required", errBadRequest))
		return
	}

	c := controllerFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeID")
	opts, err := c.OpenLinkedEditor(r.Context(), nodeID, req.RowID, req.Field)
	if err != nil {
		respondError(w, r, lookupError(err))
		return
	}

	logging.WithFields(r.Context(), "grid", c.ID(), "node", nodeID).
		Debug("editor opened", "field", req.Field, "candidates", len(opts.Values))
	writeJSON(w, http.StatusOK, opts)
}

// handleTypeInEditor records the editor's search term. The lookup chain
// picks it up on its next tick.
func (s *Server) handleTypeInEditor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term string `json:"term"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	err := controllerFromContext(r.Context()).TypeInEditor(chi.URLParam(r, "nodeID"), strings.TrimRight(req.Term, "\r\n"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditorCandidates(w http.ResponseWriter, r *http.Request) {
	cands, err := controllerFromContext(r.Context()).EditorCandidates(chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cands)
}

func (s *Server) handleCloseEditor(w http.ResponseWriter, r *http.Request) {
	controllerFromContext(r.Context()).CloseLinkedEditor(chi.URLParam(r, "nodeID"))
	w.WriteHeader(http.StatusNoContent)
}

// lookupError marks failures without a known cause as lookup failures.
func lookupError(err error) error {
	if _, status := MapError(err); status != http.StatusInternalServerError {
		return err
	}
	return fmt.Errorf("%w: %w", errLookupFailed, err)
}
