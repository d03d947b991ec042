package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/logging"
)

// GridSummary describes a served grid.
type GridSummary struct {
	ID      string `json:"id"`
	Dataset string `json:"dataset"`
	Mounted bool   `json:"mounted"`
	GroupBy string `json:"groupBy,omitempty"`
}

func summarize(c *grid.Controller) GridSummary {
	sum := GridSummary{ID: c.ID(), Dataset: c.Dataset(), Mounted: c.Mounted()}
	if sum.Mounted {
		sum.GroupBy = c.Grid().GroupBy()
	}
	return sum
}

// handleListGrids lists the grids of the catalog.
func (s *Server) handleListGrids(w http.ResponseWriter, r *http.Request) {
	out := make([]GridSummary, 0)
	for _, id := range s.catalog.IDs() {
		if c, ok := s.catalog.Get(id); ok {
			out = append(out, summarize(c))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, summarize(controllerFromContext(r.Context())))
}

// columnView is a resolved column as the host sees it: declarative props
// plus view state.
type columnView struct {
	Definition map[string]any `json:"definition"`
	Hidden     bool           `json:"hidden"`
}

// handleColumns returns the mounted grid's columns.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	c := controllerFromContext(r.Context())
	if !c.Mounted() {
		respondError(w, r, grid.ErrNotMounted)
		return
	}

	cols := c.Columns()
	out := make([]columnView, len(cols))
	for i, d := range cols {
		out[i] = columnView{Definition: d.Map(), Hidden: c.Grid().Hidden(d.Field())}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleToggleColumn runs the header menu's hide action on a column.
func (s *Server) handleToggleColumn(w http.ResponseWriter, r *http.Request) {
	c := controllerFromContext(r.Context())
	field := chi.URLParam(r, "field")
	if err := c.ToggleColumn(field); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"field": field, "hidden": c.Grid().Hidden(field)})
}

// handleGroupBy sets the grouping column. An empty field clears it.
func (s *Server) handleGroupBy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c := controllerFromContext(r.Context())
	if err := c.SetGroupBy(req.Field); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"groupBy": c.Grid().GroupBy()})
}

// handleRows returns the rows passing the active filters.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	rows, err := controllerFromContext(r.Context()).Rows()
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleReload reloads the grid's rows from the database.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	c := controllerFromContext(r.Context())
	if err := c.Reload(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMessage feeds a cross-frame filter message to the grid. Malformed
// messages are ignored, not rejected; the outcome says what happened.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	c := controllerFromContext(r.Context())
	outcome := c.HandleMessage(raw)
	logging.WithFields(r.Context(), "grid", c.ID()).Debug("filter message", "outcome", outcome.String())
	writeJSON(w, http.StatusOK, map[string]string{"outcome": outcome.String()})
}

type editRequest struct {
	RowID  string `json:"rowId"`
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// handleEdit applies a cell edit and returns the edit notification.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.RowID == "" || req.Column == "" {
		respondError(w, r, fmt.Errorf("%w: rowId and column are required", errBadRequest))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := controllerFromContext(ctx).EditCell(ctx, req.RowID, req.Column, req.Value)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEditLog returns the grid's most recent edits.
func (s *Server) handleEditLog(w http.ResponseWriter, r *http.Request) {
	if s.edits == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := parseIntParam(r, "limit", 0)
	entries, err := s.edits.EditLog(r.Context(), controllerFromContext(r.Context()).ID(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// decodeBody decodes a size-limited JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseIntParam parses a positive integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// declarative renders resolved columns in their declarative form.
func declarative(cols []columns.Definition) []map[string]any {
	out := make([]map[string]any, len(cols))
	for i, d := range cols {
		out[i] = d.Map()
	}
	return out
}
