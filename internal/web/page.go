package web

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/visualedit/internal/web/templates"
)

// handleGridPage serves the mount page of a mounted grid and reports the
// render. The host's grid widget reads the column definitions and API base
// from the page's data attributes.
func (s *Server) handleGridPage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.catalog.Get(chi.URLParam(r, "gridID"))
	if !ok {
		respondError(w, r, errGridNotFound)
		return
	}
	// Each page view is a table render.
	if err := c.Render(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}

	sum := summarize(c)
	colsJSON, err := templ.JSONString(declarative(c.Columns()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	templ.Handler(templates.GridPage(templates.GridPageParams{
		ID:          sum.ID,
		Dataset:     sum.Dataset,
		APIBase:     "/api/grids/" + sum.ID,
		ColumnsJSON: colsJSON,
	})).ServeHTTP(w, r)
}
